package model_test

import (
	"testing"
	"time"

	"github.com/avetra/prospect/internal/domain/faults"
	model "github.com/avetra/prospect/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestNodeBestUsername(t *testing.T) {
	convey.Convey("Given nodes with different username sources", t, func() {
		convey.Convey("When the username is stored directly", func() {
			n := model.Node{Username: "alice123", ProfileURL: "https://profiles.example.com/in/ignored"}

			convey.Convey("Then the stored username wins", func() {
				convey.So(n.BestUsername(), convey.ShouldEqual, "alice123")
			})
		})

		convey.Convey("When only a profile URL is stored", func() {
			cases := map[string]string{
				"https://profiles.example.com/in/bob-smith":     "bob-smith",
				"https://profiles.example.com/in/bob-smith/":    "bob-smith",
				"https://profiles.example.com/in/carol?ref=abc": "carol",
				"https://profiles.example.com/in/dan.jones":     "dan.jones",
			}

			convey.Convey("Then the trailing path segment is used", func() {
				for url, want := range cases {
					n := model.Node{ProfileURL: url}
					convey.So(n.BestUsername(), convey.ShouldEqual, want)
				}
			})
		})

		convey.Convey("When the stored username is only whitespace", func() {
			n := model.Node{Username: "   ", ProfileURL: "https://profiles.example.com/in/erin"}

			convey.Convey("Then it falls back to the URL", func() {
				convey.So(n.BestUsername(), convey.ShouldEqual, "erin")
			})
		})

		convey.Convey("When nothing useful is stored", func() {
			convey.Convey("Then the result is empty", func() {
				convey.So(model.Node{}.BestUsername(), convey.ShouldEqual, "")
				convey.So(model.Node{ProfileURL: "https://profiles.example.com"}.BestUsername(), convey.ShouldEqual, "")
				convey.So(model.Node{ProfileURL: "/"}.BestUsername(), convey.ShouldEqual, "")
			})
		})
	})
}

func TestNodeProcessed(t *testing.T) {
	convey.Convey("Given stored nodes", t, func() {
		convey.Convey("When both scrape flags are set", func() {
			n := model.Node{APIScraped: true, Scraped: true}

			convey.Convey("Then the node counts as processed", func() {
				convey.So(n.Processed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When either flag is missing", func() {
			convey.Convey("Then the node is not processed", func() {
				convey.So(model.Node{APIScraped: true}.Processed(), convey.ShouldBeFalse)
				convey.So(model.Node{Scraped: true}.Processed(), convey.ShouldBeFalse)
				convey.So(model.Node{}.Processed(), convey.ShouldBeFalse)
			})
		})
	})
}

func TestOutcomeRetryable(t *testing.T) {
	convey.Convey("Given processing outcomes", t, func() {
		convey.Convey("When the outcome failed with a retryable fault", func() {
			o := model.Outcome{
				NodeID: "n-1",
				Fault:  faults.New(faults.KindPersistTimeout, "save timed out"),
			}

			convey.Convey("Then it is eligible for redelivery", func() {
				convey.So(o.Retryable(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the outcome failed with a terminal fault", func() {
			o := model.Outcome{
				NodeID: "n-2",
				Fault:  faults.New(faults.KindTransformInvalid, "bad payload"),
			}

			convey.Convey("Then it stays off the redelivery list", func() {
				convey.So(o.Retryable(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the outcome succeeded", func() {
			o := model.Outcome{NodeID: "n-3", Success: true, Attempted: true}

			convey.Convey("Then retryable is false even without a fault", func() {
				convey.So(o.Retryable(), convey.ShouldBeFalse)
			})
		})
	})
}

func TestProfileZeroValue(t *testing.T) {
	convey.Convey("Given a zero-value profile", t, func() {
		var p model.Profile

		convey.Convey("When inspecting its collections", func() {
			convey.Convey("Then everything is empty, never placeholder data", func() {
				convey.So(p.Headline, convey.ShouldEqual, "")
				convey.So(p.About, convey.ShouldEqual, "")
				convey.So(p.Experience, convey.ShouldBeNil)
				convey.So(p.Education, convey.ShouldBeNil)
				convey.So(p.Skills, convey.ShouldBeNil)
				convey.So(p.Provenance.FetchedAt, convey.ShouldEqual, time.Time{})
			})
		})
	})
}
