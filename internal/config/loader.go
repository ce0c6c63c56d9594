package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envPrefix namespaces townsq environment variables.
const envPrefix = "TOWNSQ_"

// Load reads configuration from the YAML file at configPath, then overrides
// with environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (TOWNSQ_SERVER_PORT, TOWNSQ_EMBEDDING_BACKEND, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// An empty configPath skips the file layer. Environment variables map to
// config keys by stripping the prefix, lowercasing, and splitting on the
// first underscore:
//
//	TOWNSQ_DATA_PATH             -> data_path
//	TOWNSQ_SERVER_PORT           -> server.port
//	TOWNSQ_EMBEDDING_BACKEND     -> embedding.backend
//	TOWNSQ_LOG_LEVEL             -> log.level
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if len(content) > maxConfigFileSize {
				return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// topLevelKeys are config keys that live at the root rather than inside a
// section, so the env transformer knows not to split them.
var topLevelKeys = map[string]bool{
	"data_path":             true,
	"max_messages_per_user": true,
}

func transformEnvKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if topLevelKeys[lower] {
		return lower
	}

	// section.field_name: split on the first underscore only.
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}
