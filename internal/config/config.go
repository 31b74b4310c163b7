// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat snake_case keys carried in koanf tags; env overrides use the
//   PROSPECT_ prefix and an optional YAML file is named by PROSPECT_CONFIG.
// - New() builds a Config with defaults; Load(ctx) layers file and env on top.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Repository kinds accepted by Validate.
const (
	RepositoryREST   = "rest"
	RepositorySQLite = "sqlite"
	RepositoryMemory = "memory"
)

// Provider names accepted in ProviderChain.
const (
	ProviderRapidAPI  = "rapidapi"
	ProviderScrapfly  = "scrapfly"
	ProviderProxycurl = "proxycurl"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ReadTimeoutMS and WriteTimeoutMS bound HTTP request handling. The
	// write timeout must outlast BatchBudgetMS or synchronous batch
	// responses get cut off mid-flight.
	ReadTimeoutMS  int `koanf:"read_timeout_ms"`
	WriteTimeoutMS int `koanf:"write_timeout_ms"`

	// ProviderChain lists fetch providers in fallback order.
	ProviderChain []string `koanf:"provider_chain"`

	// RequestTimeoutMS bounds a single provider fetch attempt.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// RetryMaxAttempts caps transient retries per provider. RetryBaseDelayMS
	// seeds the exponential backoff and RetryMaxDelayMS caps it.
	RetryMaxAttempts int `koanf:"retry_max_attempts"`
	RetryBaseDelayMS int `koanf:"retry_base_delay_ms"`
	RetryMaxDelayMS  int `koanf:"retry_max_delay_ms"`

	// Per-provider credentials and endpoints. Keys are opaque to the core;
	// a provider with no key reports itself unconfigured and the chain
	// skips it. Rates are sustained requests per second.
	RapidAPIKey     string  `koanf:"rapidapi_key"`
	RapidAPIHost    string  `koanf:"rapidapi_host"`
	RapidAPIBaseURL string  `koanf:"rapidapi_base_url"`
	RapidAPIRate    float64 `koanf:"rapidapi_rate"`

	ScrapflyKey     string  `koanf:"scrapfly_key"`
	ScrapflyBaseURL string  `koanf:"scrapfly_base_url"`
	ScrapflyRate    float64 `koanf:"scrapfly_rate"`

	ProxycurlKey     string  `koanf:"proxycurl_key"`
	ProxycurlBaseURL string  `koanf:"proxycurl_base_url"`
	ProxycurlRate    float64 `koanf:"proxycurl_rate"`

	// RateBurst is the token-bucket burst applied to every provider limiter.
	RateBurst int `koanf:"rate_burst"`

	// QualityThreshold is the minimum score a profile must reach before it
	// is persisted.
	QualityThreshold int `koanf:"quality_threshold"`

	// QualityRetries re-fetches payloads that score below the threshold;
	// QualityRetryDelayMS spaces those re-fetches.
	QualityRetries      int `koanf:"quality_retries"`
	QualityRetryDelayMS int `koanf:"quality_retry_delay_ms"`

	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`

	// BatchBudgetMS bounds one batch invocation end to end. Zero disables
	// the budget.
	BatchBudgetMS int `koanf:"batch_budget_ms"`

	// BatchLimit and MaxBatchLimit shape candidate resolution in batch mode.
	BatchLimit    int `koanf:"batch_limit"`
	MaxBatchLimit int `koanf:"max_batch_limit"`

	// RepositoryKind selects the node store backend: rest, sqlite or memory.
	RepositoryKind      string `koanf:"repository_kind"`
	RepositoryBaseURL   string `koanf:"repository_base_url"`
	RepositoryAPIKey    string `koanf:"repository_api_key"`
	RepositoryTimeoutMS int    `koanf:"repository_timeout_ms"`

	// SQLitePath locates the database file when RepositoryKind is sqlite.
	SQLitePath string `koanf:"sqlite_path"`

	// QueueSize bounds the in-memory node queue.
	QueueSize int `koanf:"queue_size"`

	// RedeliveryMax caps redeliveries of a failed queue message.
	RedeliveryMax int `koanf:"redelivery_max"`

	// DedupeSize sets the size of the deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`
}

// New creates a Config with defaults. Defaults mirror the component-level
// defaults so a zero-env Load behaves the same as wiring the components
// bare.
func New() *Config {
	c := &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		ReadTimeoutMS:       10_000,
		WriteTimeoutMS:      90_000,
		ProviderChain:       []string{ProviderRapidAPI, ProviderScrapfly, ProviderProxycurl},
		RequestTimeoutMS:    30_000,
		RetryMaxAttempts:    2,
		RetryBaseDelayMS:    5_000,
		RetryMaxDelayMS:     60_000,
		RapidAPIRate:        5.0,
		ScrapflyRate:        5.0,
		ProxycurlRate:       5.0,
		RateBurst:           5,
		QualityThreshold:    75,
		QualityRetries:      2,
		QualityRetryDelayMS: 2_000,
		WorkerCount:         runtime.NumCPU() * 2,
		BatchBudgetMS:       60_000,
		BatchLimit:          10,
		MaxBatchLimit:       100,
		RepositoryKind:      RepositoryMemory,
		RepositoryTimeoutMS: 10_000,
		SQLitePath:          "prospect.db",
		QueueSize:           10_000,
		RedeliveryMax:       3,
		DedupeSize:          50_000,
	}
	return c
}
