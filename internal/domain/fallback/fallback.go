// Package fallback walks an ordered provider chain until one yields a usable
// payload, retrying transient failures per provider with exponential backoff.
package fallback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
)

// Fetcher is one provider in the chain. Implementations classify their own
// failures into faults; anything else is treated as a transport error.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, id model.Identifier) (model.RawPayload, error)
}

// Chain tries fetchers strictly in configured order. The order is fixed at
// construction and never reprioritized at runtime.
type Chain struct {
	fetchers       []Fetcher
	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	attemptTimeout time.Duration
}

// New builds a chain over the given fetchers, in order.
func New(fetchers []Fetcher, opts ...Option) (*Chain, error) {
	if len(fetchers) == 0 {
		return nil, ErrNoProviders
	}
	c := &Chain{
		fetchers:       fetchers,
		maxAttempts:    defaultMaxAttempts,
		baseDelay:      defaultBaseDelay,
		maxDelay:       defaultMaxDelay,
		attemptTimeout: defaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Names returns the provider names in chain order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.fetchers))
	for i, f := range c.fetchers {
		names[i] = f.Name()
	}
	return names
}

// Providers returns the fetchers in chain order.
func (c *Chain) Providers() []Fetcher {
	out := make([]Fetcher, len(c.fetchers))
	copy(out, c.fetchers)
	return out
}

// Fetch walks the chain for one identifier. It returns the first structurally
// valid payload together with the per-provider attempt log, or an
// ExhaustedError carrying one classified failure per provider attempted.
// The attempt log is returned in both cases.
func (c *Chain) Fetch(ctx context.Context, id model.Identifier) (model.RawPayload, []model.ProviderAttempt, error) {
	attempts := make([]model.ProviderAttempt, 0, len(c.fetchers))

	for _, fetcher := range c.fetchers {
		payload, attempt := c.tryProvider(ctx, fetcher, id)
		attempts = append(attempts, attempt)

		if attempt.OK {
			// First valid payload wins; no provider after this one is tried.
			return payload, attempts, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	return model.RawPayload{}, attempts, &ExhaustedError{NodeID: id.NodeID, Attempts: attempts}
}

// tryProvider runs one provider with its retry budget. Transient failures
// are retried with exponential backoff (base × 2^attempt, capped); anything
// else advances the chain immediately.
func (c *Chain) tryProvider(ctx context.Context, fetcher Fetcher, id model.Identifier) (model.RawPayload, model.ProviderAttempt) {
	start := time.Now()
	var lastFault *faults.Fault

	for try := 0; try < c.maxAttempts; try++ {
		payload, err := c.fetchOnce(ctx, fetcher, id)
		if err == nil {
			return payload, model.ProviderAttempt{
				Provider: fetcher.Name(),
				OK:       true,
				Elapsed:  time.Since(start),
			}
		}

		f, ok := faults.As(err)
		if !ok {
			f = faults.Wrap(faults.FetchKindFromTransport(err), err, "request failed").
				WithProvider(fetcher.Name()).WithNode(id.NodeID)
		}
		lastFault = f

		if !f.Transient() || try == c.maxAttempts-1 {
			break
		}
		if sleepErr := c.backoff(ctx, try, f.RetryAfter); sleepErr != nil {
			break
		}
	}

	return model.RawPayload{}, model.ProviderAttempt{
		Provider: fetcher.Name(),
		OK:       false,
		Elapsed:  time.Since(start),
		Err:      lastFault,
	}
}

// fetchOnce issues a single bounded request and validates the body.
func (c *Chain) fetchOnce(ctx context.Context, fetcher Fetcher, id model.Identifier) (model.RawPayload, error) {
	attemptCtx := ctx
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}

	payload, err := fetcher.Fetch(attemptCtx, id)
	if err != nil {
		return model.RawPayload{}, err
	}
	if len(payload.Body) == 0 {
		return model.RawPayload{}, faults.New(faults.KindFetchConnection, "provider returned an empty body").
			WithProvider(fetcher.Name()).WithNode(id.NodeID)
	}
	if payload.Provider == "" {
		payload.Provider = fetcher.Name()
	}
	return payload, nil
}

// backoff waits base × 2^try capped at the max delay. A provider-supplied
// retry-after hint overrides the computed delay.
func (c *Chain) backoff(ctx context.Context, try int, hint time.Duration) error {
	delay := c.baseDelay << uint(try)
	if delay > c.maxDelay || delay <= 0 {
		delay = c.maxDelay
	}
	if hint > 0 {
		delay = hint
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExhaustedError reports that every provider in the chain failed for one
// identifier. It is a reportable outcome, not a fatal error.
type ExhaustedError struct {
	NodeID   string
	Attempts []model.ProviderAttempt
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		kind := faults.KindUnknown
		if a.Err != nil {
			kind = a.Err.Kind
		}
		parts = append(parts, fmt.Sprintf("%s: %s", a.Provider, kind))
	}
	return fmt.Sprintf("all %d providers failed [%s]", len(e.Attempts), strings.Join(parts, ", "))
}

// Retryable reports whether at least one provider failed transiently, making
// the identifier worth redelivering.
func (e *ExhaustedError) Retryable() bool {
	for _, a := range e.Attempts {
		if a.Err != nil && a.Err.Transient() {
			return true
		}
	}
	return false
}

// AllNotFound reports whether every provider answered not-found, meaning the
// profile is unreachable rather than the chain unlucky.
func (e *ExhaustedError) AllNotFound() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if a.Err == nil || a.Err.Kind != faults.KindFetchNotFound {
			return false
		}
	}
	return true
}
