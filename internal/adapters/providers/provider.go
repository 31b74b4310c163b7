// Package providers implements the external profile API adapters.
//
// Each provider wraps one third-party profile data service behind the
// fallback.Fetcher contract and reports its availability for the status
// endpoint.
package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/pkg/logger"
	"github.com/avetra/prospect/pkg/metrics"
)

// Shared provider configuration constants.
const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "prospect/1.0"
	maxResponseBytes = 4 << 20 // cap on provider response bodies

	defaultRequestsPerSecond = 5.0
	defaultBurst             = 5
)

// Status reports the outcome of a provider probe.
type Status struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Healthy    bool   `json:"healthy"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// Prober reports provider availability for the status endpoint.
type Prober interface {
	Name() string
	Ping(ctx context.Context) Status
}

// client carries the HTTP plumbing shared by all providers.
type client struct {
	name      string
	baseURL   string
	userAgent string
	httpc     *http.Client
	limiter   *Limiter
	log       logger.Logger
}

func newClient(name string, opts ...Option) client {
	c := client{
		name:      name,
		userAgent: defaultUserAgent,
		httpc:     &http.Client{Timeout: defaultTimeout},
		limiter:   NewLimiter(defaultRequestsPerSecond, defaultBurst),
	}

	for _, opt := range opts {
		opt(&c)
	}

	c.log = logger.Get().Named(name)

	return c
}

// get issues one GET against the provider and classifies every failure as a
// fault carrying the provider and node context.
func (c *client) get(ctx context.Context, nodeID, reqURL string, header http.Header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, faults.Wrap(faults.FetchKindFromTransport(err), err, "rate limit wait").
			WithProvider(c.name).WithNode(nodeID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, faults.Wrap(faults.KindFetchBadRequest, err, "build request").
			WithProvider(c.name).WithNode(nodeID)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpc.Do(req)
	metrics.RecordProviderFetchLatency(c.name, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordProviderFetch(c.name, "transport_error")
		c.log.Warn(ctx, "provider request failed",
			logger.String("node_id", nodeID),
			logger.Error(err),
		)
		return nil, faults.Wrap(faults.FetchKindFromTransport(err), err, "request failed").
			WithProvider(c.name).WithNode(nodeID)
	}
	defer func() { _ = resp.Body.Close() }()

	c.limiter.Observe(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.RecordProviderFetch(c.name, "transport_error")
		return nil, faults.Wrap(faults.KindFetchConnection, err, "read response").
			WithProvider(c.name).WithNode(nodeID)
	}

	if resp.StatusCode != http.StatusOK {
		kind := faults.FetchKindFromStatus(resp.StatusCode)
		f := faults.Newf(kind, "unexpected status %d", resp.StatusCode).
			WithProvider(c.name).WithNode(nodeID)
		if kind == faults.KindFetchRateLimited {
			f = f.WithRetryAfter(c.limiter.RetryAfter())
			metrics.RecordProviderRateLimited(c.name)
		}
		metrics.RecordProviderFetch(c.name, "http_error")
		c.log.Warn(ctx, "provider returned an error status",
			logger.String("node_id", nodeID),
			logger.Int("status", resp.StatusCode),
		)
		return nil, f
	}

	return body, nil
}

// probe issues a credential-check request. Any response below 500 means the
// provider is reachable and the credentials are at least recognized.
func (c *client) probe(ctx context.Context, reqURL string, header http.Header) Status {
	st := Status{Name: c.name, Configured: true}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpc.Do(req)
	st.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		st.Error = err.Error()
		return st
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < http.StatusInternalServerError {
		st.Healthy = true
	} else {
		st.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return st
}

// hostOf extracts the host from a URL for display without credentials or
// paths. Unparseable input yields an empty string.
func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// fixDoubleEncoding repairs usernames whose UTF-8 bytes were decoded as
// latin-1 somewhere upstream (mojibake such as "JosÃ©" for "José"). Names
// that do not round-trip cleanly are returned unchanged.
func fixDoubleEncoding(s string) string {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return s
		}
		buf = append(buf, byte(r))
	}
	if !utf8.Valid(buf) {
		return s
	}
	return string(buf)
}
