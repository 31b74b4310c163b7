package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
	"github.com/avetra/prospect/internal/domain/transform"
	"github.com/avetra/prospect/pkg/metrics"
)

// Proxycurl API locations.
const (
	defaultProxycurlBaseURL = "https://nubela.co/proxycurl"
	proxycurlProfilePath    = "/api/v2/linkedin"
	proxycurlBalancePath    = "/api/credit-balance"

	publicProfileURLPrefix = "https://www.linkedin.com/in/"
)

// Proxycurl fetches profiles through the Proxycurl person API, which keys
// lookups on the public profile URL and authenticates with a bearer token.
type Proxycurl struct {
	client
	key string
}

// NewProxycurl creates the Proxycurl adapter.
func NewProxycurl(key string, opts ...Option) *Proxycurl {
	c := newClient(transform.ProviderProxycurl, opts...)
	if c.baseURL == "" {
		c.baseURL = defaultProxycurlBaseURL
	}
	return &Proxycurl{client: c, key: key}
}

// Name implements fallback.Fetcher.
func (p *Proxycurl) Name() string { return p.name }

// Ready reports whether credentials are present.
func (p *Proxycurl) Ready() bool { return p.key != "" }

// Host reports the upstream host requests go to.
func (p *Proxycurl) Host() string { return hostOf(p.baseURL) }

// Fetch implements fallback.Fetcher.
func (p *Proxycurl) Fetch(ctx context.Context, id model.Identifier) (model.RawPayload, error) {
	if p.key == "" {
		return model.RawPayload{}, faults.Wrap(faults.KindFetchAuth, ErrNotConfigured, "proxycurl key missing").
			WithProvider(p.name).WithNode(id.NodeID)
	}
	username := fixDoubleEncoding(id.UsernameHint)
	if username == "" {
		return model.RawPayload{}, faults.New(faults.KindFetchBadRequest, "no username to fetch").
			WithProvider(p.name).WithNode(id.NodeID)
	}

	q := url.Values{}
	q.Set("url", publicProfileURLPrefix+username)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.key)

	body, err := p.get(ctx, id.NodeID, p.baseURL+proxycurlProfilePath+"?"+q.Encode(), header)
	if err != nil {
		return model.RawPayload{}, err
	}

	var peek struct {
		PublicIdentifier string `json:"public_identifier"`
		Headline         string `json:"headline"`
		Occupation       string `json:"occupation"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		metrics.RecordProviderFetch(p.name, "invalid_payload")
		return model.RawPayload{}, faults.Wrap(faults.KindFetchBadRequest, err, "malformed response").
			WithProvider(p.name).WithNode(id.NodeID)
	}
	if peek.PublicIdentifier == "" && peek.Headline == "" && peek.Occupation == "" {
		metrics.RecordProviderFetch(p.name, "invalid_payload")
		return model.RawPayload{}, faults.New(faults.KindFetchNotFound, "empty profile data").
			WithProvider(p.name).WithNode(id.NodeID)
	}

	metrics.RecordProviderFetch(p.name, "success")
	return model.RawPayload{Provider: p.name, Body: body}, nil
}

// Ping implements Prober against the credit balance endpoint.
func (p *Proxycurl) Ping(ctx context.Context) Status {
	if p.key == "" {
		return Status{Name: p.name, Error: ErrNotConfigured.Error()}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.key)

	return p.probe(ctx, p.baseURL+proxycurlBalancePath, header)
}
