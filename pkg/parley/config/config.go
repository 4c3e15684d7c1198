// Package config loads server settings from an optional YAML file and the environment.
package config

import (
	"os"
	"strconv"

	"github.com/go-yaml/yaml"
)

// Config holds the server configuration
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Auth     Auth     `yaml:"auth"`
	Media    Media    `yaml:"media"`
	Presence Presence `yaml:"presence"`
}

type Server struct {
	Port    string `yaml:"port"`
	BaseURL string `yaml:"baseURL"`
}

type Database struct {
	Driver string `yaml:"driver"` // sqlite, postgres
	DSN    string `yaml:"dsn"`
}

type Auth struct {
	JWTSecret     string `yaml:"jwtSecret"`
	ActorCacheTTL int    `yaml:"actorCacheTTL"` // seconds
}

type Media struct {
	Dir string `yaml:"dir"`
}

type Presence struct {
	Transport     string `yaml:"transport"` // websocket, redis
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Server:   Server{Port: "8080", BaseURL: "http://localhost:8080"},
		Database: Database{Driver: "sqlite", DSN: "parley.db"},
		Auth:     Auth{ActorCacheTTL: 30},
		Media:    Media{Dir: "./media"},
		Presence: Presence{Transport: "websocket", RedisAddr: "localhost:6379"},
	}
}

// Load reads the YAML file at path (if non-empty) over the defaults and then
// applies environment overrides.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&config)
	return config, nil
}

func applyEnv(config *Config) {
	setString(&config.Server.Port, "PORT")
	setString(&config.Server.BaseURL, "PARLEY_BASE_URL")
	setString(&config.Database.Driver, "PARLEY_DB_DRIVER")
	setString(&config.Database.DSN, "PARLEY_DB_DSN")
	setString(&config.Auth.JWTSecret, "JWT_SECRET")
	setString(&config.Media.Dir, "PARLEY_MEDIA_DIR")
	setString(&config.Presence.Transport, "PARLEY_TRANSPORT")
	setString(&config.Presence.RedisAddr, "PARLEY_REDIS_ADDR")
	setString(&config.Presence.RedisPassword, "PARLEY_REDIS_PASSWORD")

	if v := os.Getenv("PARLEY_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Presence.RedisDB = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
