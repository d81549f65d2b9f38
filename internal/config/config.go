// Package config loads runtime settings from defaults, an optional YAML
// file, optional extra providers (the SSM parameter overlay) and ADHERENCE_*
// environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ADHERENCE_"

// Context store kinds.
const (
	StoreDynamoDB = "dynamodb"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// MaxCallTimeout bounds every outbound call made during a turn.
const MaxCallTimeout = 3 * time.Second

type Config struct {
	ContextStore      string        `koanf:"context_store"`
	StateTable        string        `koanf:"state_table"`
	RedisAddr         string        `koanf:"redis_addr"`
	ContextTTL        time.Duration `koanf:"context_ttl"`
	CareAPIBaseURL    string        `koanf:"care_api_base_url"`
	CareAPIKey        string        `koanf:"care_api_key"`
	ParamPrefix       string        `koanf:"param_prefix"`
	CallTimeout       time.Duration `koanf:"call_timeout"`
	MaxRetries        int           `koanf:"max_retries"`
	MaxFallbacks      int           `koanf:"max_fallbacks"`
	PersistRetryDelay time.Duration `koanf:"persist_retry_delay"`
	VocabularyFile    string        `koanf:"vocabulary_file"`
}

func DefaultConfig() *Config {
	return &Config{
		ContextStore:      StoreDynamoDB,
		ContextTTL:        time.Hour,
		CallTimeout:       MaxCallTimeout,
		MaxRetries:        3,
		MaxFallbacks:      5,
		PersistRetryDelay: 250 * time.Millisecond,
	}
}

// Load reads configuration from path (skipped when empty or missing), then
// each overlay provider, then environment variables.
func Load(path string, overlays ...koanf.Provider) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: accessing %s: %w", path, err)
		}
	}

	for _, p := range overlays {
		if p == nil {
			continue
		}
		if err := k.Load(p, nil); err != nil {
			return nil, fmt.Errorf("config: loading overlay: %w", err)
		}
	}

	// ADHERENCE_MAX_RETRIES -> max_retries, etc.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// FilePath returns the config file named by ADHERENCE_CONFIG_FILE, if any.
func FilePath() string {
	return strings.TrimSpace(os.Getenv(envPrefix + "CONFIG_FILE"))
}

func (c *Config) normalize() {
	c.ContextStore = strings.ToLower(strings.TrimSpace(c.ContextStore))
	c.CareAPIBaseURL = strings.TrimRight(strings.TrimSpace(c.CareAPIBaseURL), "/")
	c.ParamPrefix = strings.TrimRight(strings.TrimSpace(c.ParamPrefix), "/")
}

// Validate checks that the configuration can run a conversation.
func (c *Config) Validate() error {
	switch c.ContextStore {
	case StoreDynamoDB:
		if strings.TrimSpace(c.StateTable) == "" {
			return errors.New("config: state_table is required for the dynamodb context store")
		}
	case StoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("config: redis_addr is required for the redis context store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: invalid context_store %q: must be one of dynamodb, redis, memory", c.ContextStore)
	}
	if c.CareAPIBaseURL == "" {
		return errors.New("config: care_api_base_url is required")
	}
	if c.CareAPIKey == "" && c.ParamPrefix == "" {
		return errors.New("config: either care_api_key or param_prefix is required")
	}
	if c.CallTimeout <= 0 || c.CallTimeout > MaxCallTimeout {
		return fmt.Errorf("config: call_timeout must be in (0, %s], got %s", MaxCallTimeout, c.CallTimeout)
	}
	if c.MaxRetries <= 0 {
		return errors.New("config: max_retries must be positive")
	}
	if c.MaxFallbacks <= 0 {
		return errors.New("config: max_fallbacks must be positive")
	}
	if c.PersistRetryDelay < 0 {
		return errors.New("config: persist_retry_delay must not be negative")
	}
	if c.ContextTTL <= 0 {
		return errors.New("config: context_ttl must be positive")
	}
	return nil
}

// CareAPIKeyParameter is the SSM parameter holding the care API key.
func (c *Config) CareAPIKeyParameter() string {
	return c.ParamPrefix + "/care-api-key"
}

// ConfigParameterPath is the SSM path whose parameters overlay the config.
func (c *Config) ConfigParameterPath() string {
	return c.ParamPrefix + "/config"
}
