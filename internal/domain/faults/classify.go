package faults

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// FetchKindFromStatus maps a provider HTTP status to a fetch fault kind.
// Success statuses are the caller's business and never reach this function.
func FetchKindFromStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindFetchRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindFetchAuth
	case status == http.StatusNotFound || status == http.StatusGone:
		return KindFetchNotFound
	case status == http.StatusRequestTimeout:
		return KindFetchTimeout
	case status >= 400 && status < 500:
		return KindFetchBadRequest
	case status >= 500:
		// Server-side trouble is indistinguishable from a flaky connection
		// for retry purposes.
		return KindFetchConnection
	default:
		return KindUnknown
	}
}

// PersistKindFromStatus maps a repository HTTP status to a persistence kind.
func PersistKindFromStatus(status int) Kind {
	switch {
	case status == http.StatusConflict:
		return KindPersistDuplicate
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindPersistTimeout
	default:
		return KindPersistConnection
	}
}

// FetchKindFromTransport classifies a transport-level error from an outbound
// request: deadline and timeout conditions map to fetch_timeout, everything
// else that smells like a broken pipe maps to fetch_connection.
func FetchKindFromTransport(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindFetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindFetchTimeout
	}
	return KindFetchConnection
}

// PersistKindFromTransport is FetchKindFromTransport for repository calls.
func PersistKindFromTransport(err error) Kind {
	if FetchKindFromTransport(err) == KindFetchTimeout {
		return KindPersistTimeout
	}
	return KindPersistConnection
}

// As extracts a *Fault from an error chain.
func As(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// KindOf returns the fault kind buried in err, or KindUnknown.
func KindOf(err error) Kind {
	if f, ok := As(err); ok {
		return f.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err should put its identifier on the
// redelivery list.
func IsRetryable(err error) bool {
	f, ok := As(err)
	return ok && f.Retryable()
}

// IsTransient reports whether err warrants a same-provider backoff retry.
func IsTransient(err error) bool {
	f, ok := As(err)
	return ok && f.Transient()
}

// IsNotFound reports whether err is a provider not-found fault.
func IsNotFound(err error) bool {
	return KindOf(err) == KindFetchNotFound
}

// IsDuplicate reports whether err is the persistence duplicate no-op.
func IsDuplicate(err error) bool {
	return KindOf(err) == KindPersistDuplicate
}

// IsRateLimited reports whether err is a provider rate-limit fault.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindFetchRateLimited
}
