package providers

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
	"github.com/avetra/prospect/internal/domain/transform"
	"github.com/avetra/prospect/pkg/metrics"
)

// Scrapfly API locations.
const (
	defaultScrapflyBaseURL = "https://api.scrapfly.io"
	scrapflyProfilePath    = "/linkedin/profile"
	scrapflyAccountPath    = "/account"
)

// Scrapfly fetches profiles through the Scrapfly extraction API. The key is
// passed as a query parameter, which is how Scrapfly authenticates.
type Scrapfly struct {
	client
	key string
}

// NewScrapfly creates the Scrapfly adapter.
func NewScrapfly(key string, opts ...Option) *Scrapfly {
	c := newClient(transform.ProviderScrapfly, opts...)
	if c.baseURL == "" {
		c.baseURL = defaultScrapflyBaseURL
	}
	return &Scrapfly{client: c, key: key}
}

// Name implements fallback.Fetcher.
func (s *Scrapfly) Name() string { return s.name }

// Ready reports whether credentials are present.
func (s *Scrapfly) Ready() bool { return s.key != "" }

// Host reports the upstream host requests go to.
func (s *Scrapfly) Host() string { return hostOf(s.baseURL) }

// Fetch implements fallback.Fetcher.
func (s *Scrapfly) Fetch(ctx context.Context, id model.Identifier) (model.RawPayload, error) {
	if s.key == "" {
		return model.RawPayload{}, faults.Wrap(faults.KindFetchAuth, ErrNotConfigured, "scrapfly key missing").
			WithProvider(s.name).WithNode(id.NodeID)
	}
	username := fixDoubleEncoding(id.UsernameHint)
	if username == "" {
		return model.RawPayload{}, faults.New(faults.KindFetchBadRequest, "no username to fetch").
			WithProvider(s.name).WithNode(id.NodeID)
	}

	q := url.Values{}
	q.Set("key", s.key)
	q.Set("username", username)

	body, err := s.get(ctx, id.NodeID, s.baseURL+scrapflyProfilePath+"?"+q.Encode(), nil)
	if err != nil {
		return model.RawPayload{}, err
	}

	var peek struct {
		Profile json.RawMessage `json:"profile"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		metrics.RecordProviderFetch(s.name, "invalid_payload")
		return model.RawPayload{}, faults.Wrap(faults.KindFetchBadRequest, err, "malformed response").
			WithProvider(s.name).WithNode(id.NodeID)
	}
	if len(peek.Profile) == 0 || string(peek.Profile) == "null" {
		metrics.RecordProviderFetch(s.name, "invalid_payload")
		return model.RawPayload{}, faults.New(faults.KindFetchNotFound, "empty profile data").
			WithProvider(s.name).WithNode(id.NodeID)
	}

	metrics.RecordProviderFetch(s.name, "success")
	return model.RawPayload{Provider: s.name, Body: body}, nil
}

// Ping implements Prober against the account endpoint, which answers with
// quota details for a valid key.
func (s *Scrapfly) Ping(ctx context.Context) Status {
	if s.key == "" {
		return Status{Name: s.name, Error: ErrNotConfigured.Error()}
	}

	q := url.Values{}
	q.Set("key", s.key)

	return s.probe(ctx, s.baseURL+scrapflyAccountPath+"?"+q.Encode(), nil)
}
