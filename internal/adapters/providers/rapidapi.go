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

// RapidAPI request headers.
const (
	headerRapidAPIKey  = "x-rapidapi-key"
	headerRapidAPIHost = "x-rapidapi-host"
)

// RapidAPI fetches profiles from a RapidAPI-hosted profile data service.
// The host selects which marketplace listing answers the requests.
type RapidAPI struct {
	client
	key  string
	host string
}

// NewRapidAPI creates the RapidAPI adapter.
func NewRapidAPI(key, host string, opts ...Option) *RapidAPI {
	return &RapidAPI{
		client: newClient(transform.ProviderRapidAPI, opts...),
		key:    key,
		host:   host,
	}
}

// Name implements fallback.Fetcher.
func (r *RapidAPI) Name() string { return r.name }

// Ready reports whether credentials are present.
func (r *RapidAPI) Ready() bool { return r.key != "" && r.host != "" }

// Host reports the upstream host requests go to.
func (r *RapidAPI) Host() string {
	if r.baseURL != "" {
		return hostOf(r.baseURL)
	}
	return r.host
}

// Fetch implements fallback.Fetcher.
func (r *RapidAPI) Fetch(ctx context.Context, id model.Identifier) (model.RawPayload, error) {
	if r.key == "" || r.host == "" {
		return model.RawPayload{}, faults.Wrap(faults.KindFetchAuth, ErrNotConfigured, "rapidapi credentials missing").
			WithProvider(r.name).WithNode(id.NodeID)
	}
	username := fixDoubleEncoding(id.UsernameHint)
	if username == "" {
		return model.RawPayload{}, faults.New(faults.KindFetchBadRequest, "no username to fetch").
			WithProvider(r.name).WithNode(id.NodeID)
	}

	header := http.Header{}
	header.Set(headerRapidAPIKey, r.key)
	header.Set(headerRapidAPIHost, r.host)

	body, err := r.get(ctx, id.NodeID, r.endpoint("/?username="+url.QueryEscape(username)), header)
	if err != nil {
		return model.RawPayload{}, err
	}

	if err := r.vet(body, id.NodeID); err != nil {
		metrics.RecordProviderFetch(r.name, "invalid_payload")
		return model.RawPayload{}, err
	}

	metrics.RecordProviderFetch(r.name, "success")
	return model.RawPayload{Provider: r.name, Body: body}, nil
}

// Ping implements Prober with a cheap request for a throwaway username.
func (r *RapidAPI) Ping(ctx context.Context) Status {
	if r.key == "" || r.host == "" {
		return Status{Name: r.name, Error: ErrNotConfigured.Error()}
	}

	header := http.Header{}
	header.Set(headerRapidAPIKey, r.key)
	header.Set(headerRapidAPIHost, r.host)

	return r.probe(ctx, r.endpoint("/?username=test"), header)
}

// endpoint builds the request URL, honoring a base override for tests and
// gateways.
func (r *RapidAPI) endpoint(path string) string {
	if r.baseURL != "" {
		return r.baseURL + path
	}
	return "https://" + r.host + path
}

// vet rejects bodies that are structured API errors or empty profiles
// delivered with a 200 status.
func (r *RapidAPI) vet(body []byte, nodeID string) error {
	var peek struct {
		Success  *bool  `json:"success"`
		Message  string `json:"message"`
		Username string `json:"username"`
		Headline string `json:"headline"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		return faults.Wrap(faults.KindFetchBadRequest, err, "malformed response").
			WithProvider(r.name).WithNode(nodeID)
	}
	if peek.Success != nil && !*peek.Success {
		msg := peek.Message
		if msg == "" {
			msg = "provider reported failure"
		}
		return faults.New(faults.KindFetchBadRequest, msg).
			WithProvider(r.name).WithNode(nodeID)
	}
	if peek.Username == "" && peek.Headline == "" {
		return faults.New(faults.KindFetchNotFound, "empty profile data").
			WithProvider(r.name).WithNode(nodeID)
	}
	return nil
}
