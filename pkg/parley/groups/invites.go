package groups

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/parley/pkg/parley/auth"
	"github.com/mikepea/parley/pkg/parley/models"
	"github.com/mikepea/parley/pkg/parley/respond"
)

// InviteRequest represents a request to invite a user to a group
type InviteRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// SendInvite invites a user to a group (admin only)
// @Summary Invite a user
// @Tags invites
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body InviteRequest true "User to invite"
// @Success 201 {object} models.GroupInvite
// @Failure 403 {object} respond.Result "Admin access required"
// @Failure 409 {object} respond.Result "Already a member or invited"
// @Security BearerAuth
// @Router /groups/{id}/invites [post]
func (h *Handler) SendInvite(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := respond.ParamID(c, "id", "group")
	if !ok {
		return
	}

	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, err.Error())
		return
	}

	invite, err := h.service.SendInvite(c.Request.Context(), userID, groupID, req.UserID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusCreated, "Invite sent successfully", invite)
}

// ListInvites returns the pending invites for the current user
// @Summary List invites
// @Tags invites
// @Produce json
// @Success 200 {array} models.GroupInvite
// @Security BearerAuth
// @Router /invites [get]
func (h *Handler) ListInvites(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	invites, err := h.service.ListInvites(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Invites fetched successfully", invites)
}

// ReviewInvite accepts or rejects an invite
// @Summary Review an invite
// @Tags invites
// @Produce json
// @Param id path int true "Invite ID"
// @Param decision path string true "accepted or rejected"
// @Success 200 {object} models.GroupInvite
// @Failure 403 {object} respond.Result "Invite addressed to another user"
// @Failure 404 {object} respond.Result "Invite not found"
// @Security BearerAuth
// @Router /invites/{id}/review/{decision} [post]
func (h *Handler) ReviewInvite(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	inviteID, ok := respond.ParamID(c, "id", "invite")
	if !ok {
		return
	}
	decision, ok := models.ParseDecision(c.Param("decision"))
	if !ok {
		respond.Fail(c, http.StatusBadRequest, "Invalid status value")
		return
	}

	invite, err := h.service.ReviewInvite(c.Request.Context(), userID, inviteID, decision)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "Invite "+string(decision)+" successfully", invite)
}

// RegisterInviteRoutes registers invite routes for the current user
func (h *Handler) RegisterInviteRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListInvites)
	rg.POST("/:id/review/:decision", h.ReviewInvite)
}
