package fallback

import "errors"

// Sentinel kinds for chain construction errors.
var (
	ErrNoProviders = errors.New("no providers configured")
)
