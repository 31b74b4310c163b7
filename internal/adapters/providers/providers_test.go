package providers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	providers "github.com/avetra/prospect/internal/adapters/providers"
	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
	logging "github.com/avetra/prospect/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// capture records what a fake provider server saw.
type capture struct {
	mu     sync.Mutex
	header http.Header
	query  map[string]string
	hits   int
}

func (c *capture) observe(r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits++
	c.header = r.Header.Clone()
	c.query = map[string]string{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			c.query[key] = values[0]
		}
	}
}

func (c *capture) hitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

func fakeProvider(t *testing.T, status int, body string, seen *capture) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			seen.observe(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

// wideOpen keeps the token bucket out of the way in tests.
var wideOpen = providers.WithRateLimit(1000, 1000)

func TestRapidAPIFetch(t *testing.T) {
	convey.Convey("Given a RapidAPI adapter", t, func() {
		_ = logging.Init()
		id := model.Identifier{NodeID: "n-1", UsernameHint: "alice"}

		convey.Convey("When the service answers with a profile", func() {
			seen := &capture{}
			srv := fakeProvider(t, http.StatusOK, `{"username":"alice","headline":"Engineer"}`, seen)
			defer srv.Close()

			p := providers.NewRapidAPI("secret", "profiles.example.test", providers.WithBaseURL(srv.URL), wideOpen)
			payload, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the payload carries the provider name and body", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(payload.Provider, convey.ShouldEqual, "rapidapi")
				convey.So(string(payload.Body), convey.ShouldContainSubstring, `"headline"`)
			})

			convey.Convey("Then the marketplace headers and username are sent", func() {
				convey.So(seen.header.Get("x-rapidapi-key"), convey.ShouldEqual, "secret")
				convey.So(seen.header.Get("x-rapidapi-host"), convey.ShouldEqual, "profiles.example.test")
				convey.So(seen.header.Get("Accept"), convey.ShouldEqual, "application/json")
				convey.So(seen.header.Get("User-Agent"), convey.ShouldNotBeEmpty)
				convey.So(seen.query["username"], convey.ShouldEqual, "alice")
			})
		})

		convey.Convey("When the username hint is mojibake", func() {
			seen := &capture{}
			srv := fakeProvider(t, http.StatusOK, `{"username":"jose","headline":"x"}`, seen)
			defer srv.Close()

			p := providers.NewRapidAPI("secret", "profiles.example.test", providers.WithBaseURL(srv.URL), wideOpen)
			_, err := p.Fetch(context.Background(), model.Identifier{NodeID: "n-2", UsernameHint: "JosÃ©"})

			convey.Convey("Then the double encoding is repaired before the request", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(seen.query["username"], convey.ShouldEqual, "José")
			})
		})

		convey.Convey("When the service answers 404", func() {
			srv := fakeProvider(t, http.StatusNotFound, `{}`, nil)
			defer srv.Close()

			p := providers.NewRapidAPI("secret", "h", providers.WithBaseURL(srv.URL), wideOpen)
			_, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the fault marks the profile missing", func() {
				f, ok := faults.As(err)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(f.Kind, convey.ShouldEqual, faults.KindFetchNotFound)
				convey.So(f.Transient(), convey.ShouldBeFalse)
				convey.So(f.Provider, convey.ShouldEqual, "rapidapi")
				convey.So(f.NodeID, convey.ShouldEqual, "n-1")
			})
		})

		convey.Convey("When the service answers 429 with a retry hint", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(http.StatusTooManyRequests)
			}))
			defer srv.Close()

			p := providers.NewRapidAPI("secret", "h", providers.WithBaseURL(srv.URL), wideOpen)
			_, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the fault is transient and carries the backoff", func() {
				f, ok := faults.As(err)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(f.Kind, convey.ShouldEqual, faults.KindFetchRateLimited)
				convey.So(f.Transient(), convey.ShouldBeTrue)
				convey.So(f.RetryAfter, convey.ShouldBeGreaterThan, 0)
				convey.So(f.RetryAfter, convey.ShouldBeLessThanOrEqualTo, 2*time.Second)
			})
		})

		convey.Convey("When the service answers 500", func() {
			srv := fakeProvider(t, http.StatusInternalServerError, `oops`, nil)
			defer srv.Close()

			p := providers.NewRapidAPI("secret", "h", providers.WithBaseURL(srv.URL), wideOpen)
			_, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the fault is a transient connection failure", func() {
				convey.So(faults.KindOf(err), convey.ShouldEqual, faults.KindFetchConnection)
				convey.So(faults.IsTransient(err), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the service reports a structured error with status 200", func() {
			srv := fakeProvider(t, http.StatusOK, `{"success":false,"message":"profile is private"}`, nil)
			defer srv.Close()

			p := providers.NewRapidAPI("secret", "h", providers.WithBaseURL(srv.URL), wideOpen)
			_, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the body error becomes a bad request fault", func() {
				convey.So(faults.KindOf(err), convey.ShouldEqual, faults.KindFetchBadRequest)
				convey.So(err.Error(), convey.ShouldContainSubstring, "profile is private")
			})
		})

		convey.Convey("When the service returns an empty profile with status 200", func() {
			srv := fakeProvider(t, http.StatusOK, `{}`, nil)
			defer srv.Close()

			p := providers.NewRapidAPI("secret", "h", providers.WithBaseURL(srv.URL), wideOpen)
			_, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the payload counts as missing", func() {
				convey.So(faults.KindOf(err), convey.ShouldEqual, faults.KindFetchNotFound)
			})
		})

		convey.Convey("When credentials are missing", func() {
			seen := &capture{}
			srv := fakeProvider(t, http.StatusOK, `{}`, seen)
			defer srv.Close()

			p := providers.NewRapidAPI("", "", providers.WithBaseURL(srv.URL), wideOpen)
			_, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the adapter fails without calling the service", func() {
				convey.So(faults.KindOf(err), convey.ShouldEqual, faults.KindFetchAuth)
				convey.So(seen.hitCount(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When there is no username to fetch", func() {
			p := providers.NewRapidAPI("secret", "h", wideOpen)
			_, err := p.Fetch(context.Background(), model.Identifier{NodeID: "n-3"})

			convey.Convey("Then the adapter rejects the request", func() {
				convey.So(faults.KindOf(err), convey.ShouldEqual, faults.KindFetchBadRequest)
			})
		})
	})
}

func TestScrapflyFetch(t *testing.T) {
	convey.Convey("Given a Scrapfly adapter", t, func() {
		_ = logging.Init()
		id := model.Identifier{NodeID: "n-1", UsernameHint: "alice"}

		convey.Convey("When the service answers with a wrapped profile", func() {
			seen := &capture{}
			srv := fakeProvider(t, http.StatusOK, `{"profile":{"public_id":"alice","title":"Engineer"}}`, seen)
			defer srv.Close()

			p := providers.NewScrapfly("sk-test", providers.WithBaseURL(srv.URL), wideOpen)
			payload, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the payload is returned and the key travels as a query parameter", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(payload.Provider, convey.ShouldEqual, "scrapfly")
				convey.So(seen.query["key"], convey.ShouldEqual, "sk-test")
				convey.So(seen.query["username"], convey.ShouldEqual, "alice")
			})
		})

		convey.Convey("When the profile object is null", func() {
			srv := fakeProvider(t, http.StatusOK, `{"profile":null}`, nil)
			defer srv.Close()

			p := providers.NewScrapfly("sk-test", providers.WithBaseURL(srv.URL), wideOpen)
			_, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the payload counts as missing", func() {
				convey.So(faults.KindOf(err), convey.ShouldEqual, faults.KindFetchNotFound)
			})
		})

		convey.Convey("When the key is missing", func() {
			p := providers.NewScrapfly("", wideOpen)
			_, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the adapter fails with an auth fault", func() {
				convey.So(faults.KindOf(err), convey.ShouldEqual, faults.KindFetchAuth)
			})
		})
	})
}

func TestProxycurlFetch(t *testing.T) {
	convey.Convey("Given a Proxycurl adapter", t, func() {
		_ = logging.Init()
		id := model.Identifier{NodeID: "n-1", UsernameHint: "alice"}

		convey.Convey("When the service answers with a profile", func() {
			seen := &capture{}
			srv := fakeProvider(t, http.StatusOK, `{"public_identifier":"alice","occupation":"Engineer"}`, seen)
			defer srv.Close()

			p := providers.NewProxycurl("pk-test", providers.WithBaseURL(srv.URL), wideOpen)
			payload, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the bearer token and profile URL are sent", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(payload.Provider, convey.ShouldEqual, "proxycurl")
				convey.So(seen.header.Get("Authorization"), convey.ShouldEqual, "Bearer pk-test")
				convey.So(seen.query["url"], convey.ShouldEqual, "https://www.linkedin.com/in/alice")
			})
		})

		convey.Convey("When the body has no identity fields", func() {
			srv := fakeProvider(t, http.StatusOK, `{"skills":["Go"]}`, nil)
			defer srv.Close()

			p := providers.NewProxycurl("pk-test", providers.WithBaseURL(srv.URL), wideOpen)
			_, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the payload counts as missing", func() {
				convey.So(faults.KindOf(err), convey.ShouldEqual, faults.KindFetchNotFound)
			})
		})

		convey.Convey("When the body is not JSON", func() {
			srv := fakeProvider(t, http.StatusOK, `<html>`, nil)
			defer srv.Close()

			p := providers.NewProxycurl("pk-test", providers.WithBaseURL(srv.URL), wideOpen)
			_, err := p.Fetch(context.Background(), id)

			convey.Convey("Then the payload is rejected as malformed", func() {
				convey.So(faults.KindOf(err), convey.ShouldEqual, faults.KindFetchBadRequest)
			})
		})
	})
}

func TestProviderPing(t *testing.T) {
	convey.Convey("Given provider probes", t, func() {
		_ = logging.Init()

		convey.Convey("When the service is reachable", func() {
			srv := fakeProvider(t, http.StatusForbidden, `{}`, nil)
			defer srv.Close()

			p := providers.NewRapidAPI("secret", "h", providers.WithBaseURL(srv.URL), wideOpen)
			st := p.Ping(context.Background())

			convey.Convey("Then any non-5xx answer counts as healthy", func() {
				convey.So(st.Name, convey.ShouldEqual, "rapidapi")
				convey.So(st.Configured, convey.ShouldBeTrue)
				convey.So(st.Healthy, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the service is failing", func() {
			srv := fakeProvider(t, http.StatusBadGateway, `{}`, nil)
			defer srv.Close()

			p := providers.NewScrapfly("sk", providers.WithBaseURL(srv.URL), wideOpen)
			st := p.Ping(context.Background())

			convey.Convey("Then the probe reports unhealthy with the status", func() {
				convey.So(st.Healthy, convey.ShouldBeFalse)
				convey.So(st.Error, convey.ShouldContainSubstring, "502")
			})
		})

		convey.Convey("When credentials are missing", func() {
			p := providers.NewProxycurl("", wideOpen)
			st := p.Ping(context.Background())

			convey.Convey("Then the probe reports unconfigured", func() {
				convey.So(st.Configured, convey.ShouldBeFalse)
				convey.So(st.Healthy, convey.ShouldBeFalse)
				convey.So(st.Error, convey.ShouldNotBeEmpty)
			})
		})
	})
}

func TestLimiter(t *testing.T) {
	convey.Convey("Given a provider rate limiter", t, func() {
		convey.Convey("When a throttled response carries a retry hint", func() {
			l := providers.NewLimiter(100, 100)
			resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
			resp.Header.Set("Retry-After", "2")

			l.Observe(resp)

			convey.Convey("Then the backoff window is armed", func() {
				convey.So(l.RetryAfter(), convey.ShouldBeGreaterThan, 0)
				convey.So(l.RetryAfter(), convey.ShouldBeLessThanOrEqualTo, 2*time.Second)
			})
		})

		convey.Convey("When a successful response carries quota headers", func() {
			l := providers.NewLimiter(100, 100)
			resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}
			resp.Header.Set("X-RateLimit-Remaining", "41")

			l.Observe(resp)

			convey.Convey("Then the remaining quota is tracked without arming backoff", func() {
				convey.So(l.Remaining(), convey.ShouldEqual, 41)
				convey.So(l.RetryAfter(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the context is already cancelled", func() {
			l := providers.NewLimiter(0.001, 1)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			// Drain the single burst token so Wait has to block.
			_ = l.Wait(context.Background())
			err := l.Wait(ctx)

			convey.Convey("Then Wait gives up immediately", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
