// Package users serves the user directory and projects user ids into the
// display records returned by the API.
package users

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/parley/pkg/parley/auth"
	"github.com/mikepea/parley/pkg/parley/models"
	"github.com/mikepea/parley/pkg/parley/presence"
	"github.com/mikepea/parley/pkg/parley/respond"
)

// Summary is the public view of a user
type Summary struct {
	ID         uint   `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	ProfilePic string `json:"profile_pic"`
}

// NewSummary projects a user record
func NewSummary(u models.User) Summary {
	return Summary{ID: u.ID, Username: u.Username, FullName: u.FullName, ProfilePic: u.ProfilePic}
}

// Summaries loads the users in ids and returns them in the same order.
// Ids with no matching user are skipped.
func Summaries(ctx context.Context, db *gorm.DB, ids []uint) ([]Summary, error) {
	out := make([]Summary, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var found []models.User
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, NewSummary(u))
		}
	}
	return out, nil
}

// Handler handles user directory requests
type Handler struct {
	db       *gorm.DB
	registry *presence.Registry
}

// NewHandler creates a new users handler
func NewHandler(db *gorm.DB, registry *presence.Registry) *Handler {
	return &Handler{db: db, registry: registry}
}

// MeResponse is the authenticated user's own record
type MeResponse struct {
	Summary
	Email    string `json:"email"`
	Private  bool   `json:"private"`
	GroupIDs []uint `json:"group_ids"`
}

// Me returns the authenticated user
// @Summary Current user
// @Tags users
// @Produce json
// @Success 200 {object} MeResponse
// @Security BearerAuth
// @Router /users/me [get]
func (h *Handler) Me(c *gin.Context) {
	actor, _ := auth.GetActor(c)

	var groupIDs []uint
	if err := h.db.WithContext(c.Request.Context()).Model(&models.UserGroup{}).
		Where("user_id = ?", actor.ID).Order("group_id").Pluck("group_id", &groupIDs).Error; err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, "User fetched successfully", MeResponse{
		Summary:  NewSummary(actor),
		Email:    actor.Email,
		Private:  actor.Private,
		GroupIDs: groupIDs,
	})
}

// List returns every user except the caller, optionally filtered by name
// @Summary List users
// @Tags users
// @Produce json
// @Param q query string false "Filter by username or full name"
// @Success 200 {array} Summary
// @Security BearerAuth
// @Router /users [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	query := h.db.WithContext(c.Request.Context()).Where("id <> ?", userID).Order("full_name, id")
	if q := c.Query("q"); q != "" {
		like := "%" + q + "%"
		query = query.Where("username LIKE ? OR full_name LIKE ?", like, like)
	}

	var found []models.User
	if err := query.Find(&found).Error; err != nil {
		respond.Error(c, err)
		return
	}

	summaries := make([]Summary, len(found))
	for i, u := range found {
		summaries[i] = NewSummary(u)
	}
	respond.OK(c, http.StatusOK, "Users fetched successfully", summaries)
}

// Search finds a single user by exact username
// @Summary Search user by username
// @Tags users
// @Produce json
// @Param username path string true "Username"
// @Success 200 {object} Summary
// @Failure 404 {object} respond.Result "User not found"
// @Security BearerAuth
// @Router /users/search/{username} [get]
func (h *Handler) Search(c *gin.Context) {
	actor, _ := auth.GetActor(c)
	username := c.Param("username")

	if username == actor.Username {
		respond.Fail(c, http.StatusBadRequest, "You cannot search yourself")
		return
	}

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&user).Error; err != nil {
		respond.Fail(c, http.StatusNotFound, "User not found, please provide correct username")
		return
	}

	respond.OK(c, http.StatusOK, "User fetched successfully", NewSummary(user))
}

// Online returns the users that currently have a live channel
func (h *Handler) Online(c *gin.Context) {
	respond.OK(c, http.StatusOK, "Online users fetched successfully", h.registry.Online())
}

// RegisterRoutes registers user routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/me", h.Me)
	rg.GET("/online", h.Online)
	rg.GET("/search/:username", h.Search)
}
