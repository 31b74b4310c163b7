package fallback_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avetra/prospect/internal/domain/fallback"
	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// scriptedFetcher returns its scripted results in call order, repeating the
// last one when the script runs out.
type scriptedFetcher struct {
	mu     sync.Mutex
	name   string
	script []func() (model.RawPayload, error)
	calls  int
}

func (s *scriptedFetcher) Name() string { return s.name }

func (s *scriptedFetcher) Fetch(_ context.Context, _ model.Identifier) (model.RawPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++
	return s.script[idx]()
}

func (s *scriptedFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func succeedWith(name, body string) func() (model.RawPayload, error) {
	return func() (model.RawPayload, error) {
		return model.RawPayload{Provider: name, Body: []byte(body)}, nil
	}
}

func failWith(kind faults.Kind) func() (model.RawPayload, error) {
	return func() (model.RawPayload, error) {
		return model.RawPayload{}, faults.New(kind, "scripted failure")
	}
}

func newFetcher(name string, steps ...func() (model.RawPayload, error)) *scriptedFetcher {
	return &scriptedFetcher{name: name, script: steps}
}

// fastOpts keeps backoff negligible in tests.
func fastOpts(extra ...fallback.Option) []fallback.Option {
	opts := []fallback.Option{
		fallback.WithBaseDelay(time.Millisecond),
		fallback.WithMaxDelay(5 * time.Millisecond),
		fallback.WithAttemptTimeout(time.Second),
	}
	return append(opts, extra...)
}

func TestChainOrdering(t *testing.T) {
	Convey("Given a chain of three providers where the first two fail transiently", t, func() {
		a := newFetcher("alpha", failWith(faults.KindFetchTimeout))
		b := newFetcher("beta", failWith(faults.KindFetchConnection))
		c := newFetcher("gamma", succeedWith("gamma", `{"ok":true}`))
		d := newFetcher("delta", succeedWith("delta", `{"ok":true}`))

		chain, err := fallback.New([]fallback.Fetcher{a, b, c, d}, fastOpts(fallback.WithMaxAttempts(2))...)
		So(err, ShouldBeNil)

		Convey("When fetching one identifier", func() {
			payload, attempts, fetchErr := chain.Fetch(context.Background(), model.Identifier{NodeID: "n-1", UsernameHint: "alice"})

			Convey("Then the third provider's payload is returned", func() {
				So(fetchErr, ShouldBeNil)
				So(payload.Provider, ShouldEqual, "gamma")
				So(string(payload.Body), ShouldEqual, `{"ok":true}`)
			})

			Convey("Then the attempt log reads [alpha-fail, beta-fail, gamma-success]", func() {
				So(attempts, ShouldHaveLength, 3)
				So(attempts[0].Provider, ShouldEqual, "alpha")
				So(attempts[0].OK, ShouldBeFalse)
				So(attempts[0].Err.Kind, ShouldEqual, faults.KindFetchTimeout)
				So(attempts[1].Provider, ShouldEqual, "beta")
				So(attempts[1].OK, ShouldBeFalse)
				So(attempts[2].Provider, ShouldEqual, "gamma")
				So(attempts[2].OK, ShouldBeTrue)
				So(attempts[2].Err, ShouldBeNil)
			})

			Convey("Then no provider after the winner is tried", func() {
				So(d.callCount(), ShouldEqual, 0)
			})

			Convey("Then transient providers consumed their full retry budget", func() {
				So(a.callCount(), ShouldEqual, 2)
				So(b.callCount(), ShouldEqual, 2)
				So(c.callCount(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a chain whose first provider succeeds", t, func() {
		a := newFetcher("alpha", succeedWith("alpha", `{"ok":true}`))
		b := newFetcher("beta", succeedWith("beta", `{"ok":true}`))
		chain, err := fallback.New([]fallback.Fetcher{a, b}, fastOpts()...)
		So(err, ShouldBeNil)

		Convey("When fetching", func() {
			payload, attempts, fetchErr := chain.Fetch(context.Background(), model.Identifier{NodeID: "n-2"})

			Convey("Then the chain stops immediately", func() {
				So(fetchErr, ShouldBeNil)
				So(payload.Provider, ShouldEqual, "alpha")
				So(attempts, ShouldHaveLength, 1)
				So(b.callCount(), ShouldEqual, 0)
			})
		})
	})
}

func TestChainRetryPolicy(t *testing.T) {
	Convey("Given a provider that fails transiently then recovers", t, func() {
		a := newFetcher("alpha",
			failWith(faults.KindFetchRateLimited),
			succeedWith("alpha", `{"ok":true}`),
		)
		chain, err := fallback.New([]fallback.Fetcher{a}, fastOpts(fallback.WithMaxAttempts(3))...)
		So(err, ShouldBeNil)

		Convey("When fetching", func() {
			payload, attempts, fetchErr := chain.Fetch(context.Background(), model.Identifier{NodeID: "n-3"})

			Convey("Then the retry within the same provider succeeds", func() {
				So(fetchErr, ShouldBeNil)
				So(payload.Provider, ShouldEqual, "alpha")
				So(a.callCount(), ShouldEqual, 2)
				So(attempts, ShouldHaveLength, 1)
				So(attempts[0].OK, ShouldBeTrue)
			})
		})
	})

	Convey("Given a provider failing with a non-transient fault", t, func() {
		a := newFetcher("alpha", failWith(faults.KindFetchAuth))
		b := newFetcher("beta", succeedWith("beta", `{"ok":true}`))
		chain, err := fallback.New([]fallback.Fetcher{a, b}, fastOpts(fallback.WithMaxAttempts(3))...)
		So(err, ShouldBeNil)

		Convey("When fetching", func() {
			_, attempts, fetchErr := chain.Fetch(context.Background(), model.Identifier{NodeID: "n-4"})

			Convey("Then the chain advances without retrying the provider", func() {
				So(fetchErr, ShouldBeNil)
				So(a.callCount(), ShouldEqual, 1)
				So(attempts[0].Err.Kind, ShouldEqual, faults.KindFetchAuth)
				So(attempts[1].OK, ShouldBeTrue)
			})
		})
	})

	Convey("Given a provider returning an unclassified error", t, func() {
		a := newFetcher("alpha", func() (model.RawPayload, error) {
			return model.RawPayload{}, errors.New("connection reset by peer")
		})
		chain, err := fallback.New([]fallback.Fetcher{a}, fastOpts(fallback.WithMaxAttempts(1))...)
		So(err, ShouldBeNil)

		Convey("When fetching", func() {
			_, attempts, fetchErr := chain.Fetch(context.Background(), model.Identifier{NodeID: "n-5"})

			Convey("Then the error is classified as a transport fault", func() {
				So(fetchErr, ShouldNotBeNil)
				So(attempts[0].Err.Kind, ShouldEqual, faults.KindFetchConnection)
				So(attempts[0].Err.Provider, ShouldEqual, "alpha")
			})
		})
	})

	Convey("Given a provider returning an empty body", t, func() {
		a := newFetcher("alpha", succeedWith("alpha", ""))
		chain, err := fallback.New([]fallback.Fetcher{a}, fastOpts(fallback.WithMaxAttempts(1))...)
		So(err, ShouldBeNil)

		Convey("When fetching", func() {
			_, attempts, fetchErr := chain.Fetch(context.Background(), model.Identifier{NodeID: "n-6"})

			Convey("Then the empty body counts as a failed attempt", func() {
				So(fetchErr, ShouldNotBeNil)
				So(attempts[0].OK, ShouldBeFalse)
				So(attempts[0].Err.Kind, ShouldEqual, faults.KindFetchConnection)
			})
		})
	})
}

func TestChainExhaustion(t *testing.T) {
	Convey("Given a chain where every provider fails", t, func() {
		a := newFetcher("alpha", failWith(faults.KindFetchTimeout))
		b := newFetcher("beta", failWith(faults.KindFetchAuth))
		c := newFetcher("gamma", failWith(faults.KindFetchConnection))
		chain, err := fallback.New([]fallback.Fetcher{a, b, c}, fastOpts(fallback.WithMaxAttempts(2))...)
		So(err, ShouldBeNil)

		Convey("When fetching", func() {
			_, attempts, fetchErr := chain.Fetch(context.Background(), model.Identifier{NodeID: "n-7"})

			Convey("Then an exhausted error aggregates one failure per provider in order", func() {
				var exhausted *fallback.ExhaustedError
				So(errors.As(fetchErr, &exhausted), ShouldBeTrue)
				So(exhausted.Attempts, ShouldHaveLength, 3)
				So(exhausted.Attempts[0].Provider, ShouldEqual, "alpha")
				So(exhausted.Attempts[1].Provider, ShouldEqual, "beta")
				So(exhausted.Attempts[2].Provider, ShouldEqual, "gamma")
				So(attempts, ShouldHaveLength, 3)
			})

			Convey("Then the aggregate is retryable because transient faults participated", func() {
				var exhausted *fallback.ExhaustedError
				So(errors.As(fetchErr, &exhausted), ShouldBeTrue)
				So(exhausted.Retryable(), ShouldBeTrue)
				So(exhausted.AllNotFound(), ShouldBeFalse)
			})
		})
	})

	Convey("Given a chain where every provider answers not-found", t, func() {
		a := newFetcher("alpha", failWith(faults.KindFetchNotFound))
		b := newFetcher("beta", failWith(faults.KindFetchNotFound))
		chain, err := fallback.New([]fallback.Fetcher{a, b}, fastOpts()...)
		So(err, ShouldBeNil)

		Convey("When fetching", func() {
			_, _, fetchErr := chain.Fetch(context.Background(), model.Identifier{NodeID: "n-8"})

			Convey("Then the aggregate marks the profile unreachable and non-retryable", func() {
				var exhausted *fallback.ExhaustedError
				So(errors.As(fetchErr, &exhausted), ShouldBeTrue)
				So(exhausted.AllNotFound(), ShouldBeTrue)
				So(exhausted.Retryable(), ShouldBeFalse)
			})
		})
	})

	Convey("Given auth-only failures", t, func() {
		a := newFetcher("alpha", failWith(faults.KindFetchAuth))
		chain, err := fallback.New([]fallback.Fetcher{a}, fastOpts()...)
		So(err, ShouldBeNil)

		Convey("When fetching", func() {
			_, _, fetchErr := chain.Fetch(context.Background(), model.Identifier{NodeID: "n-9"})

			Convey("Then the aggregate is neither retryable nor unreachable", func() {
				var exhausted *fallback.ExhaustedError
				So(errors.As(fetchErr, &exhausted), ShouldBeTrue)
				So(exhausted.Retryable(), ShouldBeFalse)
				So(exhausted.AllNotFound(), ShouldBeFalse)
				So(exhausted.Error(), ShouldContainSubstring, "fetch_auth")
			})
		})
	})
}

func TestChainConstruction(t *testing.T) {
	Convey("Given no providers", t, func() {
		Convey("When building a chain", func() {
			_, err := fallback.New(nil)

			Convey("Then construction fails", func() {
				So(errors.Is(err, fallback.ErrNoProviders), ShouldBeTrue)
			})
		})
	})

	Convey("Given a configured chain", t, func() {
		a := newFetcher("alpha", succeedWith("alpha", `{}`))
		b := newFetcher("beta", succeedWith("beta", `{}`))
		chain, err := fallback.New([]fallback.Fetcher{a, b})
		So(err, ShouldBeNil)

		Convey("When listing names", func() {
			Convey("Then chain order is preserved", func() {
				So(chain.Names(), ShouldResemble, []string{"alpha", "beta"})
			})
		})
	})
}

func TestChainCancellation(t *testing.T) {
	Convey("Given a cancelled context", t, func() {
		a := newFetcher("alpha", failWith(faults.KindFetchTimeout))
		b := newFetcher("beta", succeedWith("beta", `{}`))
		chain, err := fallback.New([]fallback.Fetcher{a, b}, fastOpts(fallback.WithMaxAttempts(2))...)
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("When fetching", func() {
			_, attempts, fetchErr := chain.Fetch(ctx, model.Identifier{NodeID: "n-10"})

			Convey("Then the chain stops after the first provider", func() {
				So(fetchErr, ShouldNotBeNil)
				So(len(attempts), ShouldBeLessThanOrEqualTo, 1)
				So(b.callCount(), ShouldEqual, 0)
			})
		})
	})
}
