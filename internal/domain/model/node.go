// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Identifier names one record to process. It is built from the invocation
// payload, optionally enriched with a username hint, and consumed once per
// processing attempt.
type Identifier struct {
	NodeID       string
	UserID       string
	UsernameHint string
}

// Node is the stored record behind an Identifier, as the repository reports
// it. Fields mirror the repository document.
type Node struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	ProfileURL    string    `json:"profile_url"`
	APIScraped    bool      `json:"api_scraped"`
	Scraped       bool      `json:"scraped"`
	QualityScore  int       `json:"quality_score,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Processed reports whether this node's profile was already fetched and
// stored; processing such a node is a success-with-no-op.
func (n Node) Processed() bool {
	return n.APIScraped && n.Scraped
}

// BestUsername returns the stored username, falling back to the trailing
// path segment of the profile URL. Empty when neither is known.
func (n Node) BestUsername() string {
	if u := strings.TrimSpace(n.Username); u != "" {
		return u
	}
	raw := strings.TrimSpace(n.ProfileURL)
	if raw == "" {
		return ""
	}
	raw = strings.TrimSuffix(raw, "/")
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	// A bare scheme or host leaves nothing useful behind.
	if raw == "" || strings.Count(raw, ".") > 1 {
		return ""
	}
	return raw
}

// RawPayload is an unparsed provider document plus its origin.
type RawPayload struct {
	Provider string
	Body     []byte
}
