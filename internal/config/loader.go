package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if PROSPECT_CONFIG is set
//  3. env (prefix PROSPECT_)
//
// List-valued keys such as provider_chain are best set via the YAML file;
// an env override supplies a single element.
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("PROSPECT_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: PROSPECT_ADDR, PROSPECT_QUEUE_SIZE, ...
	// Map env keys like PROSPECT_QUEUE_SIZE -> queue_size (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("PROSPECT_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "prospect_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field and cross-field consistency. Violations wrap
// ErrInvalidConfig so callers can test with errors.Is.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}

	if len(c.ProviderChain) == 0 {
		return fmt.Errorf("%w: provider_chain must not be empty", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.ProviderChain))
	for _, name := range c.ProviderChain {
		switch name {
		case ProviderRapidAPI, ProviderScrapfly, ProviderProxycurl:
		default:
			return fmt.Errorf("%w: unknown provider %q in provider_chain", ErrInvalidConfig, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate provider %q in provider_chain", ErrInvalidConfig, name)
		}
		seen[name] = true
	}

	switch c.RepositoryKind {
	case RepositoryREST:
		if c.RepositoryBaseURL == "" {
			return fmt.Errorf("%w: repository_base_url is required for the rest repository", ErrInvalidConfig)
		}
	case RepositorySQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path is required for the sqlite repository", ErrInvalidConfig)
		}
	case RepositoryMemory:
	default:
		return fmt.Errorf("%w: unknown repository_kind %q", ErrInvalidConfig, c.RepositoryKind)
	}

	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		return fmt.Errorf("%w: quality_threshold must be within [0, 100]", ErrInvalidConfig)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("%w: retry_max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("%w: worker_count must be at least 1", ErrInvalidConfig)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue_size must be at least 1", ErrInvalidConfig)
	}
	if c.BatchLimit < 1 || c.MaxBatchLimit < c.BatchLimit {
		return fmt.Errorf("%w: batch limits must satisfy 1 <= batch_limit <= max_batch_limit", ErrInvalidConfig)
	}
	if c.RedeliveryMax < 0 {
		return fmt.Errorf("%w: redelivery_max must not be negative", ErrInvalidConfig)
	}
	if c.DedupeSize < 1 {
		return fmt.Errorf("%w: dedupe_size must be at least 1", ErrInvalidConfig)
	}
	return nil
}
