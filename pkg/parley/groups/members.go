package groups

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/parley/pkg/parley/auth"
	"github.com/mikepea/parley/pkg/parley/respond"
	"github.com/mikepea/parley/pkg/parley/users"
)

// AddMemberRequest represents a request to add a member
type AddMemberRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// ListMembers returns all members of a group
func (h *Handler) ListMembers(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "id", "group")
	if !ok {
		return
	}

	memberIDs, err := h.service.ListMembers(c.Request.Context(), userID, groupID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	members, err := users.Summaries(c.Request.Context(), h.db, memberIDs)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Members fetched successfully", members)
}

// AddMember adds a user to a group (admin only)
func (h *Handler) AddMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "id", "group")
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.AddMember(c.Request.Context(), userID, groupID, req.UserID); err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusCreated, "Member added successfully", nil)
}

// RemoveMember removes a member from a group (admin only)
func (h *Handler) RemoveMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "id", "group")
	if !ok {
		return
	}
	memberID, ok := respond.ParamID(c, "userId", "user")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(c.Request.Context(), userID, groupID, memberID); err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Member removed successfully", nil)
}

// RegisterMemberRoutes registers member management and invite routes
func (h *Handler) RegisterMemberRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/members", h.ListMembers)
	rg.POST("/:id/members", h.AddMember)
	rg.DELETE("/:id/members/:userId", h.RemoveMember)
	rg.POST("/:id/invites", h.SendInvite)
}
