// Package server assembles the HTTP API from the component packages.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mikepea/parley/pkg/parley/auth"
	"github.com/mikepea/parley/pkg/parley/config"
	"github.com/mikepea/parley/pkg/parley/connections"
	"github.com/mikepea/parley/pkg/parley/groups"
	"github.com/mikepea/parley/pkg/parley/media"
	"github.com/mikepea/parley/pkg/parley/messages"
	"github.com/mikepea/parley/pkg/parley/presence"
	"github.com/mikepea/parley/pkg/parley/users"
)

// Server holds the router and the live-delivery state behind it
type Server struct {
	config   config.Config
	engine   *gin.Engine
	hub      *presence.Hub
	registry *presence.Registry
}

// New builds the server. When rdb is non-nil presence is shared through redis,
// events are published there and the caller is expected to run Hub().Relay;
// otherwise the hub delivers directly to its own sockets.
func New(db *gorm.DB, cfg config.Config, rdb *redis.Client) (*Server, error) {
	files, err := media.NewFileStore(cfg.Media.Dir, cfg.Server.BaseURL)
	if err != nil {
		return nil, err
	}

	registry := presence.NewRegistry()
	if rdb != nil {
		registry = presence.NewSharedRegistry(rdb)
	}
	hub := presence.NewHub(registry)
	var transport presence.Transport = hub
	if rdb != nil {
		transport = presence.NewRedisTransport(rdb)
	}
	notifier := presence.NewNotifier(registry, transport)

	authn := auth.NewAuthenticator(db, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.ActorCacheTTL)*time.Second)

	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Uploaded images
	r.Static("/media", files.Dir())

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":      "ok",
				"service":     "parley",
				"connections": hub.Connections(),
			})
		})

		protected := api.Group("", authn.Middleware())

		// Live channel
		protected.GET("/ws", hub.Handle)

		usersHandler := users.NewHandler(db, registry)
		usersHandler.RegisterRoutes(protected.Group("/users"))

		connectionsHandler := connections.NewHandler(db, connections.NewService(db))
		connectionsHandler.RegisterRoutes(protected.Group("/connections"))

		groupsHandler := groups.NewHandler(db, groups.NewService(db, files))
		groupsGroup := protected.Group("/groups")
		groupsHandler.RegisterRoutes(groupsGroup)
		groupsHandler.RegisterMemberRoutes(groupsGroup)
		groupsHandler.RegisterInviteRoutes(protected.Group("/invites"))

		messagesHandler := messages.NewHandler(messages.NewService(db, files, notifier))
		messagesHandler.RegisterRoutes(protected.Group("/messages"))
		messagesHandler.RegisterGroupRoutes(protected.Group("/group-messages"))
	}

	return &Server{
		config:   cfg,
		engine:   r,
		hub:      hub,
		registry: registry,
	}, nil
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the websocket hub
func (s *Server) Hub() *presence.Hub {
	return s.hub
}

// Registry returns the presence registry
func (s *Server) Registry() *presence.Registry {
	return s.registry
}

// Run listens on the configured port
func (s *Server) Run() error {
	return s.engine.Run(":" + s.config.Server.Port)
}
