package connections

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/parley/pkg/parley/auth"
	"github.com/mikepea/parley/pkg/parley/models"
	"github.com/mikepea/parley/pkg/parley/respond"
	"github.com/mikepea/parley/pkg/parley/users"
)

// Handler handles connection-related requests
type Handler struct {
	db      *gorm.DB
	service *Service
}

// NewHandler creates a new connections handler
func NewHandler(db *gorm.DB, service *Service) *Handler {
	return &Handler{db: db, service: service}
}

// SendRequestRequest represents the request to connect with a user
type SendRequestRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// SendRequest sends a connection request
// @Summary Send connection request
// @Tags connections
// @Accept json
// @Produce json
// @Param request body SendRequestRequest true "Target user"
// @Success 201 {object} models.ConnectionRequest
// @Failure 400 {object} respond.Result "Cannot send request to yourself"
// @Failure 404 {object} respond.Result "User not found"
// @Failure 409 {object} respond.Result "Request already exists"
// @Security BearerAuth
// @Router /connections/requests [post]
func (h *Handler) SendRequest(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req SendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	request, err := h.service.SendRequest(c.Request.Context(), userID, req.UserID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusCreated, "Connection request sent successfully", request)
}

// ListRequests returns pending requests addressed to the caller
// @Summary List incoming requests
// @Tags connections
// @Produce json
// @Success 200 {array} models.ConnectionRequest
// @Security BearerAuth
// @Router /connections/requests [get]
func (h *Handler) ListRequests(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	requests, err := h.service.ListIncomingRequests(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Requests fetched successfully", requests)
}

// ReviewRequest accepts or rejects a request
// @Summary Review connection request
// @Tags connections
// @Produce json
// @Param id path int true "Request ID"
// @Param decision path string true "accepted or rejected"
// @Success 200 {object} models.ConnectionRequest
// @Failure 404 {object} respond.Result "Request not found"
// @Security BearerAuth
// @Router /connections/requests/{id}/review/{decision} [post]
func (h *Handler) ReviewRequest(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	requestID, ok := respond.ParamID(c, "id", "request")
	if !ok {
		return
	}
	decision, ok := models.ParseDecision(c.Param("decision"))
	if !ok {
		respond.Fail(c, http.StatusBadRequest, "Invalid status value")
		return
	}

	request, err := h.service.ReviewRequest(c.Request.Context(), userID, requestID, decision)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Request "+string(decision)+" successfully", request)
}

// ListConnections returns the users the caller is connected to
// @Summary List connections
// @Tags connections
// @Produce json
// @Success 200 {array} users.Summary
// @Security BearerAuth
// @Router /connections [get]
func (h *Handler) ListConnections(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	peers, err := h.service.ListConnections(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	summaries, err := users.Summaries(c.Request.Context(), h.db, peers)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Connections fetched successfully", summaries)
}

// RemoveConnection removes the connection with another user
// @Summary Remove connection
// @Tags connections
// @Produce json
// @Param userId path int true "Connected user ID"
// @Success 200 {object} respond.Result
// @Failure 404 {object} respond.Result "Connection not found"
// @Security BearerAuth
// @Router /connections/{userId} [delete]
func (h *Handler) RemoveConnection(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	otherID, ok := respond.ParamID(c, "userId", "user")
	if !ok {
		return
	}

	if err := h.service.RemoveConnection(c.Request.Context(), userID, otherID); err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Connection removed successfully", nil)
}

// Explore returns users the caller has no request with
// @Summary Explore users
// @Tags connections
// @Produce json
// @Success 200 {array} users.Summary
// @Security BearerAuth
// @Router /connections/explore [get]
func (h *Handler) Explore(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	ids, err := h.service.ExploreCandidates(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	summaries, err := users.Summaries(c.Request.Context(), h.db, ids)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "New users fetched", summaries)
}

// RegisterRoutes registers connection routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListConnections)
	rg.GET("/explore", h.Explore)
	rg.DELETE("/:userId", h.RemoveConnection)
	rg.POST("/requests", h.SendRequest)
	rg.GET("/requests", h.ListRequests)
	rg.POST("/requests/:id/review/:decision", h.ReviewRequest)
}
