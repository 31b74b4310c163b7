package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestKindPolicy(t *testing.T) {
	Convey("Given the fault taxonomy", t, func() {
		Convey("When inspecting fetch kinds", func() {
			Convey("Then connection, timeout and rate-limit are transient and retryable", func() {
				for _, k := range []Kind{KindFetchConnection, KindFetchTimeout, KindFetchRateLimited} {
					f := New(k, "boom")
					So(f.Transient(), ShouldBeTrue)
					So(f.Retryable(), ShouldBeTrue)
				}
			})

			Convey("Then auth, bad-request and not-found advance the chain without retry", func() {
				for _, k := range []Kind{KindFetchAuth, KindFetchBadRequest, KindFetchNotFound} {
					f := New(k, "boom")
					So(f.Transient(), ShouldBeFalse)
					So(f.Retryable(), ShouldBeFalse)
					So(f.Action, ShouldEqual, ActionFallback)
				}
			})
		})

		Convey("When inspecting transform kinds", func() {
			Convey("Then they are never transient nor retryable", func() {
				for _, k := range []Kind{KindTransformInvalid, KindTransformMissingField} {
					f := New(k, "bad payload")
					So(f.Transient(), ShouldBeFalse)
					So(f.Retryable(), ShouldBeFalse)
				}
			})
		})

		Convey("When inspecting persistence kinds", func() {
			Convey("Then connection and timeout are surfaced retryable", func() {
				So(New(KindPersistConnection, "down").Retryable(), ShouldBeTrue)
				So(New(KindPersistTimeout, "slow").Retryable(), ShouldBeTrue)
			})

			Convey("Then duplicate is a non-retryable no-op with skip action", func() {
				f := New(KindPersistDuplicate, "exists")
				So(f.Retryable(), ShouldBeFalse)
				So(f.Action, ShouldEqual, ActionSkip)
				So(f.Severity, ShouldEqual, SeverityInfo)
			})
		})

		Convey("When inspecting processing kinds", func() {
			Convey("Then only the budget timeout is retryable", func() {
				So(New(KindProcessTimeout, "budget gone").Retryable(), ShouldBeTrue)
				So(New(KindProcessExhausted, "oom").Retryable(), ShouldBeFalse)
				So(New(KindProcessBadInput, "no node").Retryable(), ShouldBeFalse)
			})
		})

		Convey("When inspecting config kinds", func() {
			Convey("Then they are fatal to the invocation", func() {
				So(New(KindConfigMissing, "no key").Fatal(), ShouldBeTrue)
				So(New(KindConfigInvalid, "bad chain").Fatal(), ShouldBeTrue)
				So(New(KindFetchTimeout, "slow").Fatal(), ShouldBeFalse)
			})
		})

		Convey("When building a fault of an unknown kind", func() {
			f := New(Kind("made_up"), "???")

			Convey("Then it degrades to the unknown kind", func() {
				So(f.Kind, ShouldEqual, KindUnknown)
				So(f.Retryable(), ShouldBeFalse)
			})
		})
	})
}

func TestStatusClassification(t *testing.T) {
	Convey("Given provider HTTP statuses", t, func() {
		cases := map[int]Kind{
			http.StatusTooManyRequests:     KindFetchRateLimited,
			http.StatusUnauthorized:        KindFetchAuth,
			http.StatusForbidden:           KindFetchAuth,
			http.StatusNotFound:            KindFetchNotFound,
			http.StatusGone:                KindFetchNotFound,
			http.StatusRequestTimeout:      KindFetchTimeout,
			http.StatusBadRequest:          KindFetchBadRequest,
			http.StatusInternalServerError: KindFetchConnection,
			http.StatusBadGateway:          KindFetchConnection,
			http.StatusServiceUnavailable:  KindFetchConnection,
		}

		Convey("When classifying each status", func() {
			Convey("Then every status maps to its taxonomy kind", func() {
				for status, want := range cases {
					So(FetchKindFromStatus(status), ShouldEqual, want)
				}
			})
		})
	})

	Convey("Given repository HTTP statuses", t, func() {
		Convey("When classifying them", func() {
			Convey("Then conflict means duplicate and timeouts stay timeouts", func() {
				So(PersistKindFromStatus(http.StatusConflict), ShouldEqual, KindPersistDuplicate)
				So(PersistKindFromStatus(http.StatusGatewayTimeout), ShouldEqual, KindPersistTimeout)
				So(PersistKindFromStatus(http.StatusInternalServerError), ShouldEqual, KindPersistConnection)
			})
		})
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestTransportClassification(t *testing.T) {
	Convey("Given transport-level errors", t, func() {
		Convey("When the context deadline was exceeded", func() {
			kind := FetchKindFromTransport(fmt.Errorf("do request: %w", context.DeadlineExceeded))

			Convey("Then it classifies as a fetch timeout", func() {
				So(kind, ShouldEqual, KindFetchTimeout)
			})
		})

		Convey("When a net.Error reports a timeout", func() {
			Convey("Then it classifies as a fetch timeout", func() {
				So(FetchKindFromTransport(timeoutErr{}), ShouldEqual, KindFetchTimeout)
			})
		})

		Convey("When the connection was refused", func() {
			Convey("Then it classifies as a fetch connection fault", func() {
				So(FetchKindFromTransport(errors.New("dial tcp: connect refused")), ShouldEqual, KindFetchConnection)
			})
		})

		Convey("When classifying for persistence", func() {
			Convey("Then timeouts become persist timeouts and the rest connections", func() {
				So(PersistKindFromTransport(timeoutErr{}), ShouldEqual, KindPersistTimeout)
				So(PersistKindFromTransport(errors.New("broken pipe")), ShouldEqual, KindPersistConnection)
			})
		})
	})
}

func TestFaultPredicates(t *testing.T) {
	Convey("Given faults wrapped in ordinary error chains", t, func() {
		rate := New(KindFetchRateLimited, "slow down").WithProvider("rapidapi").WithRetryAfter(30 * time.Second)
		wrapped := fmt.Errorf("fetch alice: %w", rate)

		Convey("When probing with the predicates", func() {
			Convey("Then the fault is found through the chain", func() {
				f, ok := As(wrapped)
				So(ok, ShouldBeTrue)
				So(f.Kind, ShouldEqual, KindFetchRateLimited)
				So(f.RetryAfter, ShouldEqual, 30*time.Second)
			})

			Convey("Then the kind predicates agree", func() {
				So(IsRateLimited(wrapped), ShouldBeTrue)
				So(IsTransient(wrapped), ShouldBeTrue)
				So(IsRetryable(wrapped), ShouldBeTrue)
				So(IsNotFound(wrapped), ShouldBeFalse)
				So(IsDuplicate(wrapped), ShouldBeFalse)
			})
		})

		Convey("When probing a plain error", func() {
			Convey("Then nothing matches", func() {
				So(IsRetryable(errors.New("nope")), ShouldBeFalse)
				So(KindOf(errors.New("nope")), ShouldEqual, KindUnknown)
			})
		})
	})
}

func TestFaultFormatting(t *testing.T) {
	Convey("Given faults with different contexts", t, func() {
		cause := errors.New("connection reset")

		Convey("When rendering the error string", func() {
			Convey("Then provider and cause appear when set", func() {
				f := Wrap(KindFetchConnection, cause, "fetch failed").WithProvider("scrapfly")
				So(f.Error(), ShouldContainSubstring, "fetch_connection")
				So(f.Error(), ShouldContainSubstring, "scrapfly")
				So(f.Error(), ShouldContainSubstring, "connection reset")
			})

			Convey("Then a bare fault still names its kind", func() {
				So(New(KindProcessBadInput, "node missing").Error(), ShouldEqual, "process_bad_input: node missing")
			})
		})

		Convey("When unwrapping", func() {
			f := Wrap(KindPersistConnection, cause, "save failed")

			Convey("Then errors.Is sees the cause", func() {
				So(errors.Is(f, cause), ShouldBeTrue)
			})
		})
	})
}
