// Package config provides configuration loading for townsq.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/townsq/internal/embeddings"
)

// Config is the root configuration for the daemon.
type Config struct {
	// DataPath is the directory holding per-topic message tables.
	DataPath string `koanf:"data_path"`

	// MaxMessagesPerUser caps a user's messages across all topics.
	MaxMessagesPerUser int `koanf:"max_messages_per_user"`

	Embedding embeddings.Config `koanf:"embedding"`
	Server    ServerConfig      `koanf:"server"`
	Log       LogConfig         `koanf:"log"`
	Search    SearchConfig      `koanf:"search"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// WriteRatePerSecond throttles message posts per client IP. Zero
	// disables throttling.
	WriteRatePerSecond float64 `koanf:"write_rate_per_second"`
	WriteRateBurst     int     `koanf:"write_rate_burst"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SearchConfig holds the hybrid search tuning knobs.
type SearchConfig struct {
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	ExactMatchThreshold float64 `koanf:"exact_match_threshold"`
}

func applyDefaults(cfg *Config) {
	if cfg.DataPath == "" {
		cfg.DataPath = "data"
	}
	if cfg.MaxMessagesPerUser == 0 {
		cfg.MaxMessagesPerUser = 100
	}
	cfg.Embedding.ApplyDefaults()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.WriteRateBurst == 0 {
		cfg.Server.WriteRateBurst = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Search.SimilarityThreshold == 0 {
		cfg.Search.SimilarityThreshold = 0.1
	}
	if cfg.Search.ExactMatchThreshold == 0 {
		cfg.Search.ExactMatchThreshold = 0.8
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.MaxMessagesPerUser < 0 {
		return fmt.Errorf("max_messages_per_user must be non-negative, got %d", c.MaxMessagesPerUser)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %g", c.Search.SimilarityThreshold)
	}
	if c.Search.ExactMatchThreshold < 0 || c.Search.ExactMatchThreshold > 1 {
		return fmt.Errorf("exact_match_threshold must be in [0,1], got %g", c.Search.ExactMatchThreshold)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	return nil
}
