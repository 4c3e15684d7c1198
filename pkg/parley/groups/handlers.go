package groups

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/parley/pkg/parley/auth"
	"github.com/mikepea/parley/pkg/parley/models"
	"github.com/mikepea/parley/pkg/parley/respond"
	"github.com/mikepea/parley/pkg/parley/users"
)

// Handler handles group-related requests
type Handler struct {
	db      *gorm.DB
	service *Service
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB, service *Service) *Handler {
	return &Handler{db: db, service: service}
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description" binding:"max=200"`
	Visibility  string `json:"visibility" binding:"omitempty,oneof=public private"`
}

// UpdateGroupRequest represents the request to update a group.
// Photo is a data URI or base64 image.
type UpdateGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Photo       *string `json:"photo"`
	Visibility  *string `json:"visibility"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	ID          uint              `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Photo       string            `json:"photo"`
	AdminID     uint              `json:"admin_id"`
	Visibility  models.Visibility `json:"visibility"`
	CreatedAt   time.Time         `json:"created_at"`
	Role        string            `json:"role,omitempty"` // User's role in this group
	Members     []users.Summary   `json:"members,omitempty"`
}

func newGroupResponse(g models.Group, userID uint, member bool) GroupResponse {
	resp := GroupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Photo:       g.Photo,
		AdminID:     g.AdminID,
		Visibility:  g.Visibility,
		CreatedAt:   g.CreatedAt,
	}
	switch {
	case g.AdminID == userID:
		resp.Role = "admin"
	case member:
		resp.Role = "member"
	}
	return resp
}

// List returns all groups the current user is a member of
// @Summary List groups
// @Description Get all groups the current user is a member of
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Security BearerAuth
// @Router /groups [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	groups, err := h.service.ListGroups(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	resp := make([]GroupResponse, len(groups))
	for i, g := range groups {
		resp[i] = newGroupResponse(g, userID, true)
	}
	respond.OK(c, http.StatusOK, "Groups fetched successfully", resp)
}

// Explore returns public groups the current user has not joined
// @Summary Explore groups
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Security BearerAuth
// @Router /groups/explore [get]
func (h *Handler) Explore(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	groups, err := h.service.ExploreGroups(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	resp := make([]GroupResponse, len(groups))
	for i, g := range groups {
		resp[i] = newGroupResponse(g, userID, false)
	}
	respond.OK(c, http.StatusOK, "Groups fetched successfully", resp)
}

// Create creates a new group with the creator as admin
// @Summary Create a group
// @Description Create a new group. The creator becomes the admin and only member.
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupResponse
// @Failure 400 {object} respond.Result "Invalid request"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	group, err := h.service.CreateGroup(c.Request.Context(), userID, CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Visibility:  models.Visibility(req.Visibility),
	})
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusCreated, "Group created successfully", newGroupResponse(group, userID, true))
}

// Get returns a group with its members
// @Summary Get a group
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} GroupResponse
// @Failure 403 {object} respond.Result "Not a member"
// @Failure 404 {object} respond.Result "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "id", "group")
	if !ok {
		return
	}

	group, memberIDs, err := h.service.GetGroup(c.Request.Context(), userID, groupID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	members, err := users.Summaries(c.Request.Context(), h.db, memberIDs)
	if err != nil {
		respond.Error(c, err)
		return
	}

	resp := newGroupResponse(group, userID, true)
	resp.Members = members
	respond.OK(c, http.StatusOK, "Group fetched successfully", resp)
}

// Update changes a group's details (admin only)
// @Summary Update a group
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body UpdateGroupRequest true "Fields to change"
// @Success 200 {object} GroupResponse
// @Failure 403 {object} respond.Result "Admin access required"
// @Security BearerAuth
// @Router /groups/{id} [patch]
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "id", "group")
	if !ok {
		return
	}

	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	patch := Patch{Name: req.Name, Description: req.Description, Photo: req.Photo}
	if req.Visibility != nil {
		v := models.Visibility(*req.Visibility)
		patch.Visibility = &v
	}

	group, err := h.service.UpdateGroup(c.Request.Context(), userID, groupID, patch)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Group updated successfully", newGroupResponse(group, userID, true))
}

// Delete deletes a group (admin only)
// @Summary Delete a group
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} respond.Result
// @Failure 403 {object} respond.Result "Admin access required"
// @Security BearerAuth
// @Router /groups/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "id", "group")
	if !ok {
		return
	}

	if err := h.service.DeleteGroup(c.Request.Context(), userID, groupID); err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Group deleted successfully", nil)
}

// Join adds the current user to a public group
// @Summary Join a group
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} GroupResponse
// @Failure 403 {object} respond.Result "Group is private"
// @Failure 409 {object} respond.Result "Already a member"
// @Security BearerAuth
// @Router /groups/{id}/join [post]
func (h *Handler) Join(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "id", "group")
	if !ok {
		return
	}

	group, err := h.service.JoinGroup(c.Request.Context(), userID, groupID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Joined group successfully", newGroupResponse(group, userID, true))
}

// Exit removes the current user from a group
// @Summary Exit a group
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} respond.Result
// @Failure 403 {object} respond.Result "Admin cannot exit"
// @Failure 404 {object} respond.Result "Not a member"
// @Security BearerAuth
// @Router /groups/{id}/exit [post]
func (h *Handler) Exit(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "id", "group")
	if !ok {
		return
	}

	if err := h.service.ExitGroup(c.Request.Context(), userID, groupID); err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Exited group successfully", nil)
}

// RegisterRoutes registers group routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/explore", h.Explore)
	rg.GET("/:id", h.Get)
	rg.PATCH("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/join", h.Join)
	rg.POST("/:id/exit", h.Exit)
}
