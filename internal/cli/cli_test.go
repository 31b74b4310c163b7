package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

// fakeService records the last request per path and answers with canned
// bodies.
type fakeService struct {
	mu        chan struct{}
	lastPath  string
	lastQuery string
	lastBody  []byte
	responses map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeService() *fakeService {
	f := &fakeService{
		mu:        make(chan struct{}, 1),
		responses: make(map[string]fakeResponse),
	}
	f.mu <- struct{}{}
	return f
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	<-f.mu
	defer func() { f.mu <- struct{}{} }()

	f.lastPath = r.URL.Path
	f.lastQuery = r.URL.RawQuery
	f.lastBody, _ = io.ReadAll(r.Body)

	resp, ok := f.responses[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

// runCommand executes the root command against the fake service and
// returns the combined output and error.
func runCommand(serverURL string, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"--url", serverURL}, args...))
	defer rootCmd.SetArgs(nil)

	err := Execute(context.Background())
	return buf.String(), err
}

func TestProcessCommand(t *testing.T) {
	convey.Convey("Given a service answering /v1/process", t, func() {
		fake := newFakeService()
		fake.responses["/v1/process"] = fakeResponse{
			status: http.StatusOK,
			body:   `{"statusCode":200,"body":{"processed":2,"succeeded":1,"failed":1,"profiles_scraped":1},"batchItemFailures":[{"itemIdentifier":"node-2"}]}`,
		}
		server := httptest.NewServer(fake)
		defer server.Close()

		convey.Convey("When processing a single node", func() {
			out, err := runCommand(server.URL, "process", "node-1")

			convey.Convey("Then it should post the node and print the envelope", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, `"processed"`)
				convey.So(out, convey.ShouldContainSubstring, `"batchItemFailures"`)

				var req map[string]string
				convey.So(json.Unmarshal(fake.lastBody, &req), convey.ShouldBeNil)
				convey.So(req["nodeId"], convey.ShouldEqual, "node-1")
			})
		})

		convey.Convey("When processing a single node with a username hint", func() {
			defer func() { processUsername = "" }()
			out, err := runCommand(server.URL, "process", "node-1", "--username", "alice")

			convey.Convey("Then it should carry the hint", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, `"processed"`)

				var req map[string]string
				convey.So(json.Unmarshal(fake.lastBody, &req), convey.ShouldBeNil)
				convey.So(req["username"], convey.ShouldEqual, "alice")
			})
		})

		convey.Convey("When processing multiple nodes", func() {
			out, err := runCommand(server.URL, "process", "node-1", "node-2")

			convey.Convey("Then it should post a nodeIds list", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, `"processed"`)

				var req map[string][]string
				convey.So(json.Unmarshal(fake.lastBody, &req), convey.ShouldBeNil)
				convey.So(req["nodeIds"], convey.ShouldResemble, []string{"node-1", "node-2"})
			})
		})

		convey.Convey("When a username hint accompanies multiple nodes", func() {
			defer func() { processUsername = "" }()
			_, err := runCommand(server.URL, "process", "node-1", "node-2", "--username", "alice")

			convey.Convey("Then it should refuse", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "single node")
			})
		})

		convey.Convey("When the service rejects the request", func() {
			fake.responses["/v1/process"] = fakeResponse{
				status: http.StatusBadRequest,
				body:   `{"code":"bad_request","message":"missing nodeId"}`,
			}

			_, err := runCommand(server.URL, "process", "node-1")

			convey.Convey("Then the service message should surface", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "missing nodeId")
			})
		})

		convey.Convey("When no node is given", func() {
			_, err := runCommand(server.URL, "process")

			convey.Convey("Then it should refuse", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestEnqueueCommand(t *testing.T) {
	convey.Convey("Given a service answering /v1/enqueue", t, func() {
		fake := newFakeService()
		server := httptest.NewServer(fake)
		defer server.Close()

		convey.Convey("When the node is accepted", func() {
			fake.responses["/v1/enqueue"] = fakeResponse{
				status: http.StatusAccepted,
				body:   `{"status":"accepted"}`,
			}

			out, err := runCommand(server.URL, "enqueue", "node-1")

			convey.Convey("Then it should report acceptance", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "node node-1 accepted")
			})
		})

		convey.Convey("When the node is a duplicate", func() {
			fake.responses["/v1/enqueue"] = fakeResponse{
				status: http.StatusOK,
				body:   `{"status":"duplicate","duplicate":true}`,
			}

			out, err := runCommand(server.URL, "enqueue", "node-1")

			convey.Convey("Then it should report the duplicate", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "already queued or processed")
			})
		})

		convey.Convey("When the queue is full", func() {
			fake.responses["/v1/enqueue"] = fakeResponse{
				status: http.StatusTooManyRequests,
				body:   `{"code":"backpressure","message":"queue is full"}`,
			}

			_, err := runCommand(server.URL, "enqueue", "node-1")

			convey.Convey("Then it should surface backpressure", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "queue is full")
			})
		})

		convey.Convey("When the service is not started", func() {
			fake.responses["/v1/enqueue"] = fakeResponse{
				status: http.StatusServiceUnavailable,
				body:   `{"code":"unavailable","message":"service not started"}`,
			}

			_, err := runCommand(server.URL, "enqueue", "node-1")

			convey.Convey("Then it should say so", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "not started")
			})
		})

		convey.Convey("When no node is given", func() {
			_, err := runCommand(server.URL, "enqueue")

			convey.Convey("Then it should refuse", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "accepts 1 arg")
			})
		})
	})
}

func TestBatchCommand(t *testing.T) {
	convey.Convey("Given a service answering /v1/process", t, func() {
		fake := newFakeService()
		fake.responses["/v1/process"] = fakeResponse{
			status: http.StatusOK,
			body:   `{"statusCode":200,"body":{"processed":5,"succeeded":5,"failed":0,"profiles_scraped":4},"batchItemFailures":[]}`,
		}
		server := httptest.NewServer(fake)
		defer server.Close()

		convey.Convey("When running a batch with a limit", func() {
			defer func() { batchLimit = 0 }()
			out, err := runCommand(server.URL, "batch", "--limit", "5")

			convey.Convey("Then it should post batch mode with the limit", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, `"processed"`)

				var req map[string]interface{}
				convey.So(json.Unmarshal(fake.lastBody, &req), convey.ShouldBeNil)
				convey.So(req["batch"], convey.ShouldBeTrue)
				convey.So(req["limit"], convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When running a batch without a limit", func() {
			out, err := runCommand(server.URL, "batch")

			convey.Convey("Then it should leave the limit to the service", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, `"processed"`)

				var req map[string]interface{}
				convey.So(json.Unmarshal(fake.lastBody, &req), convey.ShouldBeNil)
				convey.So(req["batch"], convey.ShouldBeTrue)
				_, hasLimit := req["limit"]
				convey.So(hasLimit, convey.ShouldBeFalse)
			})
		})
	})
}

func TestProvidersCommand(t *testing.T) {
	convey.Convey("Given a service answering /v1/providers", t, func() {
		fake := newFakeService()
		fake.responses["/v1/providers"] = fakeResponse{
			status: http.StatusOK,
			body:   `[{"name":"rapidapi","position":1,"configured":true,"host":"api.example.com"},{"name":"scrapfly","position":2,"configured":false}]`,
		}
		server := httptest.NewServer(fake)
		defer server.Close()

		convey.Convey("When listing providers", func() {
			out, err := runCommand(server.URL, "providers")

			convey.Convey("Then it should print the chain as a table", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "Provider chain:")
				convey.So(out, convey.ShouldContainSubstring, "rapidapi")
				convey.So(out, convey.ShouldContainSubstring, "configured")
				convey.So(out, convey.ShouldContainSubstring, "unconfigured")
				convey.So(fake.lastQuery, convey.ShouldEqual, "")
			})
		})

		convey.Convey("When probing providers", func() {
			defer func() { providersProbe = false }()
			out, err := runCommand(server.URL, "providers", "--probe")

			convey.Convey("Then it should pass the probe flag through", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "rapidapi")
				convey.So(fake.lastQuery, convey.ShouldEqual, "probe=true")
			})
		})

		convey.Convey("When requesting JSON output", func() {
			defer func() { providersJSON = false }()
			out, err := runCommand(server.URL, "providers", "--json")

			convey.Convey("Then it should print the raw listing", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, `"name": "rapidapi"`)
			})
		})
	})
}

func TestStatsCommand(t *testing.T) {
	convey.Convey("Given a service answering /v1/stats", t, func() {
		fake := newFakeService()
		fake.responses["/v1/stats"] = fakeResponse{
			status: http.StatusOK,
			body:   `{"started":true,"workers":8,"queue_depth":3}`,
		}
		server := httptest.NewServer(fake)
		defer server.Close()

		convey.Convey("When fetching stats", func() {
			out, err := runCommand(server.URL, "stats")

			convey.Convey("Then it should print the statistics", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, `"queue_depth"`)
				convey.So(out, convey.ShouldContainSubstring, `"workers"`)
			})
		})
	})
}

func TestVersionCommand(t *testing.T) {
	convey.Convey("Given the version command", t, func() {
		convey.Convey("When printing the version", func() {
			out, err := runCommand("http://localhost:0", "version")

			convey.Convey("Then it should include the version string", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "prospectctl version")
			})
		})
	})
}
