package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/mikepea/parley/pkg/parley/models"
	"github.com/mikepea/parley/pkg/parley/respond"
)

const (
	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeyActor is the key for the authenticated user record in gin context
	ContextKeyActor = "actor"
)

// Authenticator turns a bearer token into an actor record
type Authenticator struct {
	secret []byte
	db     *gorm.DB
	actors *cache.Cache
}

// NewAuthenticator creates an authenticator. Actor records are cached for
// ttl to spare a user lookup on every request.
func NewAuthenticator(db *gorm.DB, secret string, ttl time.Duration) *Authenticator {
	if secret == "" {
		secret = defaultSecret
	}
	return &Authenticator{
		secret: []byte(secret),
		db:     db,
		actors: cache.New(ttl, 2*ttl),
	}
}

// Middleware validates the token and sets the actor in context.
// The token is read from the Authorization header, or from the token query
// parameter for websocket upgrades where browsers cannot set headers.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, problem := bearerToken(c)
		if problem != "" {
			respond.Fail(c, http.StatusUnauthorized, problem)
			c.Abort()
			return
		}

		claims, err := a.ValidateToken(tokenString)
		if err != nil {
			if err == ErrExpiredToken {
				respond.Fail(c, http.StatusUnauthorized, "Token has expired")
			} else {
				respond.Fail(c, http.StatusUnauthorized, "Invalid token")
			}
			c.Abort()
			return
		}

		actor, err := a.loadActor(claims.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				respond.Fail(c, http.StatusUnauthorized, "Unauthorized - user not found")
			} else {
				respond.Fail(c, http.StatusInternalServerError, "Internal server error")
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, actor.ID)
		c.Set(ContextKeyActor, actor)

		c.Next()
	}
}

// Forget drops a cached actor record
func (a *Authenticator) Forget(userID uint) {
	a.actors.Delete(strconv.FormatUint(uint64(userID), 10))
}

func (a *Authenticator) loadActor(userID uint) (models.User, error) {
	key := strconv.FormatUint(uint64(userID), 10)
	if cached, ok := a.actors.Get(key); ok {
		return cached.(models.User), nil
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		return user, err
	}
	a.actors.SetDefault(key, user)
	return user, nil
}

// bearerToken returns the token, or a message describing why there is none
func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, ""
		}
		return "", "Authorization header required"
	}

	// Expect "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", "Invalid authorization header format"
	}
	return parts[1], ""
}

// GetUserID returns the user ID from the gin context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	return userID.(uint), true
}

// GetActor returns the authenticated user from the gin context
func GetActor(c *gin.Context) (models.User, bool) {
	actor, exists := c.Get(ContextKeyActor)
	if !exists {
		return models.User{}, false
	}
	return actor.(models.User), true
}
