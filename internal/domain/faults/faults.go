// Package faults defines the closed error taxonomy shared by the fetch,
// transform, persistence and processing stages, plus the retry metadata
// attached to each kind.
package faults

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies one member of the closed fault taxonomy.
type Kind string

// Fetch faults originate from provider adapters and the fallback chain.
const (
	KindFetchConnection  Kind = "fetch_connection"
	KindFetchTimeout     Kind = "fetch_timeout"
	KindFetchRateLimited Kind = "fetch_rate_limited"
	KindFetchAuth        Kind = "fetch_auth"
	KindFetchBadRequest  Kind = "fetch_bad_request"
	KindFetchNotFound    Kind = "fetch_not_found"
)

// Transform faults are deterministic and never retried.
const (
	KindTransformInvalid      Kind = "transform_invalid"
	KindTransformMissingField Kind = "transform_missing_field"
)

// Persistence faults are reported by the node repository.
const (
	KindPersistConnection Kind = "persist_connection"
	KindPersistTimeout    Kind = "persist_timeout"
	KindPersistDuplicate  Kind = "persist_duplicate"
)

// Processing faults are raised by the batch pipeline itself.
const (
	KindProcessTimeout   Kind = "process_timeout"
	KindProcessExhausted Kind = "process_exhausted"
	KindProcessBadInput  Kind = "process_bad_input"
)

// Configuration faults abort the whole invocation.
const (
	KindConfigMissing Kind = "config_missing"
	KindConfigInvalid Kind = "config_invalid"
)

// KindUnknown is the catch-all for unclassifiable causes.
const KindUnknown Kind = "unknown"

// Severity labels a fault for reporting. It never drives control flow.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Action is the recommended operator/system reaction, reporting metadata only.
type Action string

const (
	ActionRetry        Action = "retry"
	ActionRetryBackoff Action = "retry_backoff"
	ActionFallback     Action = "fallback"
	ActionSkip         Action = "skip"
	ActionDeleteNode   Action = "delete_node"
	ActionMarkError    Action = "mark_error"
	ActionEscalate     Action = "escalate"
)

// meta holds the per-kind policy table. transient means the fallback chain
// retries the same provider with backoff before advancing; retryable means the
// identifier is surfaced to the invocation layer for redelivery.
type meta struct {
	severity  Severity
	action    Action
	transient bool
	retryable bool
}

var kindMeta = map[Kind]meta{
	KindFetchConnection:  {SeverityWarn, ActionRetryBackoff, true, true},
	KindFetchTimeout:     {SeverityWarn, ActionRetryBackoff, true, true},
	KindFetchRateLimited: {SeverityWarn, ActionRetryBackoff, true, true},
	KindFetchAuth:        {SeverityCritical, ActionFallback, false, false},
	KindFetchBadRequest:  {SeverityWarn, ActionFallback, false, false},
	KindFetchNotFound:    {SeverityInfo, ActionFallback, false, false},

	KindTransformInvalid:      {SeverityWarn, ActionMarkError, false, false},
	KindTransformMissingField: {SeverityWarn, ActionMarkError, false, false},

	KindPersistConnection: {SeverityCritical, ActionRetry, false, true},
	KindPersistTimeout:    {SeverityWarn, ActionRetry, false, true},
	KindPersistDuplicate:  {SeverityInfo, ActionSkip, false, false},

	KindProcessTimeout:   {SeverityWarn, ActionRetry, false, true},
	KindProcessExhausted: {SeverityCritical, ActionEscalate, false, false},
	KindProcessBadInput:  {SeverityWarn, ActionSkip, false, false},

	KindConfigMissing: {SeverityCritical, ActionEscalate, false, false},
	KindConfigInvalid: {SeverityCritical, ActionEscalate, false, false},

	KindUnknown: {SeverityWarn, ActionEscalate, false, false},
}

// Fault is one classified failure. Severity and Action are reporting
// metadata; control flow keys off Transient and Retryable only.
type Fault struct {
	Kind     Kind
	Severity Severity
	Action   Action
	Provider string
	NodeID   string
	Message  string
	Cause    error
	At       time.Time

	// RetryAfter carries a provider-supplied backoff hint for rate-limit
	// faults. Zero means no hint.
	RetryAfter time.Duration
}

// New builds a Fault of the given kind with its policy metadata filled in.
func New(kind Kind, message string) *Fault {
	m, ok := kindMeta[kind]
	if !ok {
		kind = KindUnknown
		m = kindMeta[KindUnknown]
	}
	return &Fault{
		Kind:     kind,
		Severity: m.severity,
		Action:   m.action,
		Message:  message,
		At:       time.Now().UTC(),
	}
}

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Fault {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap builds a Fault of the given kind around a causal error.
func Wrap(kind Kind, err error, message string) *Fault {
	f := New(kind, message)
	f.Cause = err
	return f
}

// WithProvider records which provider produced the fault.
func (f *Fault) WithProvider(name string) *Fault {
	f.Provider = name
	return f
}

// WithNode records which identifier the fault belongs to.
func (f *Fault) WithNode(id string) *Fault {
	f.NodeID = id
	return f
}

// WithRetryAfter attaches a provider-supplied backoff hint.
func (f *Fault) WithRetryAfter(d time.Duration) *Fault {
	if d > 0 {
		f.RetryAfter = d
	}
	return f
}

// Error implements the error interface.
func (f *Fault) Error() string {
	switch {
	case f.Provider != "" && f.Cause != nil:
		return fmt.Sprintf("%s (%s): %s: %v", f.Kind, f.Provider, f.Message, f.Cause)
	case f.Provider != "":
		return fmt.Sprintf("%s (%s): %s", f.Kind, f.Provider, f.Message)
	case f.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Cause)
	default:
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
}

// Unwrap exposes the causal error for errors.Is/As chains.
func (f *Fault) Unwrap() error { return f.Cause }

// Transient reports whether the same provider should be retried with backoff
// before the chain advances.
func (f *Fault) Transient() bool { return kindMeta[f.Kind].transient }

// Retryable reports whether the identifier is eligible for redelivery.
func (f *Fault) Retryable() bool { return kindMeta[f.Kind].retryable }

// Fatal reports whether the fault aborts the whole invocation rather than a
// single identifier. Only configuration faults qualify.
func (f *Fault) Fatal() bool {
	return f.Kind == KindConfigMissing || f.Kind == KindConfigInvalid
}

// MarshalJSON renders the fault for outcome reports. The causal error is
// folded into the message rather than serialized.
func (f *Fault) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind      Kind     `json:"kind"`
		Severity  Severity `json:"severity"`
		Action    Action   `json:"action"`
		Provider  string   `json:"provider,omitempty"`
		NodeID    string   `json:"node_id,omitempty"`
		Message   string   `json:"message"`
		Retryable bool     `json:"retryable"`
		At        string   `json:"at"`
	}{
		Kind:      f.Kind,
		Severity:  f.Severity,
		Action:    f.Action,
		Provider:  f.Provider,
		NodeID:    f.NodeID,
		Message:   f.Message,
		Retryable: f.Retryable(),
		At:        f.At.Format(time.RFC3339),
	}
	if f.Cause != nil {
		out.Message = fmt.Sprintf("%s: %v", f.Message, f.Cause)
	}
	return json.Marshal(out)
}
