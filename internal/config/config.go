package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	PlayerID string `env:"PLAYER_ID"`

	GradeTimeout    time.Duration `env:"GRADE_TIMEOUT" envDefault:"10s"`
	EpilogueTimeout time.Duration `env:"EPILOGUE_TIMEOUT" envDefault:"20s"`

	Store Store
}

// Store selects and configures the save backend.
type Store struct {
	Backend string `env:"STORE" envDefault:"file"`
	Dir     string `env:"SAVE_DIR" envDefault:".saves"`

	SQLitePath    string `env:"SQLITE_PATH"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"money_adventure"`
}

// Backends lists the accepted STORE values.
var Backends = []string{"file", "sqlite", "redis", "mongo", "memory"}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	known := false
	for _, b := range Backends {
		known = known || b == c.Store.Backend
	}
	if !known {
		return fmt.Errorf("STORE must be one of %s, got %q", strings.Join(Backends, ", "), c.Store.Backend)
	}
	if c.Store.Backend == "mongo" && c.Store.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required when STORE=mongo")
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = filepath.Join(c.Store.Dir, "saves.db")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.GradeTimeout <= 0 || c.EpilogueTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// Level is the parsed log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// HasGemini reports whether an API key is configured. Without one the game
// still runs, with canned feedback in place of graded answers.
func (c *Config) HasGemini() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}
