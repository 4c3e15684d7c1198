package messages

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/parley/pkg/parley/auth"
	"github.com/mikepea/parley/pkg/parley/respond"
)

// Handler handles message requests
type Handler struct {
	service *Service
}

// NewHandler creates a new messages handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// SendMessageRequest represents a new message. Image is a data URI or
// base64 image.
type SendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// UnreadResponse carries an unread counter
type UnreadResponse struct {
	Count int64 `json:"count"`
}

// SendDirect sends a message to another user
// @Summary Send direct message
// @Tags messages
// @Accept json
// @Produce json
// @Param userId path int true "Receiver ID"
// @Param request body SendMessageRequest true "Message"
// @Success 201 {object} models.DirectMessage
// @Failure 400 {object} respond.Result "Empty message"
// @Failure 404 {object} respond.Result "User not found"
// @Security BearerAuth
// @Router /messages/{userId} [post]
func (h *Handler) SendDirect(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	receiverID, ok := respond.ParamID(c, "userId", "user")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.SendDirect(c.Request.Context(), userID, receiverID, Content{Text: req.Text, Image: req.Image})
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusCreated, "Message sent successfully", msg)
}

// FetchThread returns the conversation with another user and marks it read
// @Summary Fetch direct messages
// @Tags messages
// @Produce json
// @Param userId path int true "Peer ID"
// @Success 200 {array} models.DirectMessage
// @Security BearerAuth
// @Router /messages/{userId} [get]
func (h *Handler) FetchThread(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	peerID, ok := respond.ParamID(c, "userId", "user")
	if !ok {
		return
	}

	thread, err := h.service.FetchThread(c.Request.Context(), userID, peerID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Messages fetched successfully", thread)
}

// Unread returns the number of unread messages from another user
func (h *Handler) Unread(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	peerID, ok := respond.ParamID(c, "userId", "user")
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID, peerID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Unread count fetched successfully", UnreadResponse{Count: count})
}

// SendGroup posts a message to a group
// @Summary Send group message
// @Tags messages
// @Accept json
// @Produce json
// @Param groupId path int true "Group ID"
// @Param request body SendMessageRequest true "Message"
// @Success 201 {object} models.GroupMessage
// @Failure 403 {object} respond.Result "Not a member"
// @Security BearerAuth
// @Router /group-messages/{groupId} [post]
func (h *Handler) SendGroup(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "groupId", "group")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.SendGroup(c.Request.Context(), userID, groupID, Content{Text: req.Text, Image: req.Image})
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusCreated, "Message sent successfully", msg)
}

// FetchGroupThread returns a group's messages and marks them read
// @Summary Fetch group messages
// @Tags messages
// @Produce json
// @Param groupId path int true "Group ID"
// @Success 200 {array} models.GroupMessage
// @Failure 403 {object} respond.Result "Not a member"
// @Security BearerAuth
// @Router /group-messages/{groupId} [get]
func (h *Handler) FetchGroupThread(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "groupId", "group")
	if !ok {
		return
	}

	thread, err := h.service.FetchGroupThread(c.Request.Context(), userID, groupID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Messages fetched successfully", thread)
}

// UnreadGroup returns the number of group messages the user has not fetched
func (h *Handler) UnreadGroup(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "groupId", "group")
	if !ok {
		return
	}

	count, err := h.service.UnreadGroupCount(c.Request.Context(), userID, groupID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Unread count fetched successfully", UnreadResponse{Count: count})
}

// RegisterRoutes registers direct message routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:userId", h.SendDirect)
	rg.GET("/:userId", h.FetchThread)
	rg.GET("/:userId/unread", h.Unread)
}

// RegisterGroupRoutes registers group message routes
func (h *Handler) RegisterGroupRoutes(rg *gin.RouterGroup) {
	rg.POST("/:groupId", h.SendGroup)
	rg.GET("/:groupId", h.FetchGroupThread)
	rg.GET("/:groupId/unread", h.UnreadGroup)
}
