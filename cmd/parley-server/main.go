package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/mikepea/parley/pkg/parley/config"
	"github.com/mikepea/parley/pkg/parley/database"
	"github.com/mikepea/parley/pkg/parley/presence"
	"github.com/mikepea/parley/pkg/parley/server"
	"github.com/mikepea/parley/pkg/parley/store"
)

// @title Parley API
// @version 1.0
// @description Social messaging backend: connections, groups, direct and group chat with live delivery.

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load(os.Getenv("PARLEY_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run auto-migrations
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Report membership rows written on one side only
	drift, err := store.VerifyProjections(ctx, db)
	if err != nil {
		log.Printf("Warning: failed to verify membership projections: %v", err)
	}
	for _, d := range drift {
		log.Printf("Warning: membership drift: %s", d)
	}

	var rdb *redis.Client
	switch cfg.Presence.Transport {
	case "", "websocket":
	case "redis":
		rdb = presence.NewRedis(cfg.Presence.RedisAddr, cfg.Presence.RedisPassword, cfg.Presence.RedisDB)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
	default:
		log.Fatalf("Unknown presence transport %q", cfg.Presence.Transport)
	}

	srv, err := server.New(db, cfg, rdb)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	if rdb != nil {
		go func() {
			if err := srv.Hub().Relay(ctx, rdb); err != nil {
				log.Fatalf("Redis relay stopped: %v", err)
			}
		}()
		log.Printf("Relaying live events through redis at %s", cfg.Presence.RedisAddr)
	}

	log.Printf("Starting Parley server on :%s", cfg.Server.Port)
	if err := srv.Run(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
