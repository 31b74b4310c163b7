package providers

import "errors"

// Sentinel errors for provider adapters.
var (
	// ErrNotConfigured indicates the provider has no usable credentials.
	ErrNotConfigured = errors.New("provider credentials not configured")
)
