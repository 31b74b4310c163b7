// Package transform maps provider-specific payloads into the canonical
// profile schema. One mapping table exists per provider; unknown or missing
// source fields become empty canonical values, never placeholders.
package transform

import (
	"strings"
	"time"

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
)

// Provider names understood by the transformer.
const (
	ProviderRapidAPI  = "rapidapi"
	ProviderScrapfly  = "scrapfly"
	ProviderProxycurl = "proxycurl"
)

// Option applies a configuration option to the Transformer.
type Option func(*Transformer)

// WithClock overrides the transform timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) {
		if now != nil {
			t.now = now
		}
	}
}

// Transformer converts raw provider payloads into canonical profiles.
type Transformer struct {
	now     func() time.Time
	mappers map[string]mapper
}

type mapper func(t *Transformer, payload []byte) (model.Profile, error)

// New creates a Transformer with every provider mapping registered.
func New(opts ...Option) *Transformer {
	t := &Transformer{
		now: func() time.Time { return time.Now().UTC() },
	}
	t.mappers = map[string]mapper{
		ProviderRapidAPI:  (*Transformer).mapRapidAPI,
		ProviderScrapfly:  (*Transformer).mapScrapfly,
		ProviderProxycurl: (*Transformer).mapProxycurl,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Map converts a raw payload from the named provider into a canonical
// profile. The identifier-preservation step runs unconditionally last: a
// non-empty username hint always wins over whatever the payload carried.
func (t *Transformer) Map(provider string, payload []byte, id model.Identifier) (model.Profile, error) {
	m, ok := t.mappers[provider]
	if !ok {
		return model.Profile{}, faults.Newf(faults.KindTransformInvalid, "no mapping for provider %q", provider).
			WithProvider(provider).WithNode(id.NodeID)
	}
	if len(payload) == 0 {
		return model.Profile{}, faults.New(faults.KindTransformInvalid, "empty payload").
			WithProvider(provider).WithNode(id.NodeID)
	}

	profile, err := m(t, payload)
	if err != nil {
		if f, ok := faults.As(err); ok {
			f.WithProvider(provider).WithNode(id.NodeID)
		}
		return model.Profile{}, err
	}

	profile.Provenance.Provider = provider
	profile.Provenance.TransformedAt = t.now()

	preserveIdentity(&profile, id)
	return profile, nil
}

// preserveIdentity enforces the identifier-preservation invariant. It runs
// after every other field assignment so nothing can overwrite the trusted
// hint with provider data.
func preserveIdentity(p *model.Profile, id model.Identifier) {
	if hint := strings.TrimSpace(id.UsernameHint); hint != "" {
		p.Username = hint
	}
}

// clean collapses internal whitespace runs in single-line fields.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanBlock trims a multi-line field without destroying its line structure.
func cleanBlock(s string) string {
	return strings.TrimSpace(s)
}

// dedupe keeps the first occurrence of each value, preserving order.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = clean(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
