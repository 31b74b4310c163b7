package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating options", func() {
			namespaceOpt := WithNamespace("test-namespace")
			subsystemOpt := WithSubsystem("test-subsystem")
			metricPrefixOpt := WithMetricPrefix("test-prefix")
			histogramBucketsOpt := WithHistogramBuckets([]float64{0.1, 0.5, 1.0})
			metricsEnabledOpt := WithMetricsEnabled(true)
			refreshIntervalOpt := WithRefreshInterval(5 * time.Second)
			customLabelsOpt := WithCustomLabels(map[string]string{"env": "test"})

			Convey("Then they should be valid functions", func() {
				So(namespaceOpt, ShouldNotBeNil)
				So(subsystemOpt, ShouldNotBeNil)
				So(metricPrefixOpt, ShouldNotBeNil)
				So(histogramBucketsOpt, ShouldNotBeNil)
				So(metricsEnabledOpt, ShouldNotBeNil)
				So(refreshIntervalOpt, ShouldNotBeNil)
				So(customLabelsOpt, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithMetricPrefix("test-prefix"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(10*time.Second),
				WithCustomLabels(map[string]string{"env": "test", "version": "1.0"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given metrics recording", t, func() {
		Convey("When recording provider metrics", func() {
			Convey("Then it should record provider fetches", func() {
				So(func() {
					RecordProviderFetch("rapidapi", "success")
					RecordProviderFetch("scrapfly", "http_error")
					RecordProviderFetch("proxycurl", "transport_error")
				}, ShouldNotPanic)
			})

			Convey("And it should record provider fetch latency", func() {
				So(func() {
					RecordProviderFetchLatency("rapidapi", 120.0)
					RecordProviderFetchLatency("scrapfly", 450.0)
				}, ShouldNotPanic)
			})

			Convey("And it should record rate limits", func() {
				So(func() {
					RecordProviderRateLimited("rapidapi")
					RecordProviderRateLimited("rapidapi")
				}, ShouldNotPanic)
			})

			Convey("And it should record fallback exhaustion", func() {
				So(func() {
					RecordFallbackExhausted()
					RecordFallbackExhausted()
				}, ShouldNotPanic)
			})
		})

		Convey("When recording pipeline metrics", func() {
			Convey("Then it should record transform failures", func() {
				So(func() {
					RecordTransformFailure("rapidapi")
					RecordTransformFailure("scrapfly")
				}, ShouldNotPanic)
			})

			Convey("And it should record quality scores", func() {
				So(func() {
					RecordQualityScore(0)
					RecordQualityScore(75)
					RecordQualityScore(100)
				}, ShouldNotPanic)
			})

			Convey("And it should record below-threshold profiles", func() {
				So(func() {
					RecordBelowThreshold()
					RecordBelowThreshold()
				}, ShouldNotPanic)
			})
		})

		Convey("When recording outcome metrics", func() {
			Convey("Then it should record node outcomes", func() {
				So(func() {
					RecordNodeOutcome("success")
					RecordNodeOutcome("failed")
					RecordNodeOutcome("already_processed")
					RecordNodeOutcome("deleted")
					RecordNodeOutcome("abandoned")
				}, ShouldNotPanic)
			})

			Convey("And it should record scraped profiles", func() {
				So(func() {
					RecordProfileScraped()
					RecordProfileScraped()
				}, ShouldNotPanic)
			})

			Convey("And it should record duplicate submissions", func() {
				So(func() {
					RecordNodeDuplicate()
					RecordNodeDuplicate()
				}, ShouldNotPanic)
			})
		})

		Convey("When recording repository metrics", func() {
			Convey("Then it should record repository operations", func() {
				So(func() {
					RecordRepositoryOp("get", "success")
					RecordRepositoryOp("save", "duplicate")
					RecordRepositoryOp("delete", "not_found")
				}, ShouldNotPanic)
			})

			Convey("And it should record repository latency", func() {
				So(func() {
					RecordRepositoryLatency("get", 5.0)
					RecordRepositoryLatency("save", 12.0)
					RecordRepositoryLatency("candidates", 30.0)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording queue metrics", func() {
			Convey("Then it should update queue gauges", func() {
				So(func() {
					UpdateQueueSize(1000)
					UpdateQueueCapacity(10000)
					UpdateQueueUtilization(0.1)
				}, ShouldNotPanic)
			})

			Convey("And it should record queue traffic", func() {
				So(func() {
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordQueueProcessingLatency(20.0)
				}, ShouldNotPanic)
			})

			Convey("And it should record redelivery traffic", func() {
				So(func() {
					RecordQueueRedelivery()
					RecordQueueRedelivery()
					RecordQueueDropped()
				}, ShouldNotPanic)
			})
		})

		Convey("When recording worker metrics", func() {
			Convey("Then it should update worker gauges", func() {
				So(func() {
					UpdateWorkerActiveCount(4)
					UpdateWorkerMessagesPerSecond(120.0)
				}, ShouldNotPanic)
			})

			Convey("And it should record worker processing", func() {
				So(func() {
					RecordWorkerProcessingLatency(50.0)
					RecordWorkerError()
				}, ShouldNotPanic)
			})
		})

		Convey("When recording batch metrics", func() {
			Convey("Then it should record batch shape and duration", func() {
				So(func() {
					RecordBatchSize(1)
					RecordBatchSize(10)
					RecordBatchDuration(250.0)
					RecordBatchDuration(30000.0)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording HTTP metrics", func() {
			Convey("Then it should record HTTP requests", func() {
				So(func() {
					RecordHTTPRequest("healthz", "GET", "200")
					RecordHTTPRequest("process", "POST", "200")
					RecordHTTPRequest("enqueue", "POST", "202")
				}, ShouldNotPanic)
			})

			Convey("And it should record HTTP request duration", func() {
				So(func() {
					RecordHTTPRequestDuration("healthz", "GET", "200", 5.0)
					RecordHTTPRequestDuration("process", "POST", "200", 1500.0)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording error metrics", func() {
			Convey("Then it should record errors by component", func() {
				So(func() {
					RecordErrorByComponent("pipeline", "fetch_timeout")
					RecordErrorByComponent("repository", "persist_connection")
					RecordErrorByComponent("queue", "queue_full")
				}, ShouldNotPanic)
			})

			Convey("And it should record errors by type", func() {
				So(func() {
					RecordErrorByType("server_error", "high")
					RecordErrorByType("client_error", "medium")
				}, ShouldNotPanic)
			})

			Convey("And it should record errors by endpoint", func() {
				So(func() {
					RecordErrorByEndpoint("process", "POST", "server_error")
					RecordErrorByEndpoint("enqueue", "POST", "rate_limit")
				}, ShouldNotPanic)
			})

			Convey("And it should record error latency", func() {
				So(func() {
					RecordErrorLatency("http", "server_error", 100.0)
					RecordErrorLatency("pipeline", "fetch_timeout", 5000.0)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording system metrics", func() {
			Convey("Then it should update system gauges", func() {
				So(func() {
					UpdateSystemMemoryUsage(1024 * 1024 * 100)
					UpdateSystemGoroutineCount(100)
					RecordSystemGCPauseTime(1.5)
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsEdgeCases(t *testing.T) {
	Convey("Given metrics edge cases", t, func() {
		Convey("When recording metrics with edge values", func() {
			Convey("And using zero values", func() {
				So(func() {
					UpdateQueueSize(0)
					UpdateWorkerActiveCount(0)
					RecordQualityScore(0.0)
					RecordBatchSize(0)
					RecordHTTPRequestDuration("test", "GET", "200", 0.0)
				}, ShouldNotPanic)
			})

			Convey("And using negative values", func() {
				So(func() {
					UpdateQueueSize(-100)
					UpdateWorkerActiveCount(-10)
				}, ShouldNotPanic)
			})

			Convey("And using very large values", func() {
				So(func() {
					UpdateQueueSize(1000000)
					RecordBatchDuration(10000000.0)
					RecordProviderFetchLatency("rapidapi", 600000.0)
				}, ShouldNotPanic)
			})

			Convey("And using empty strings", func() {
				So(func() {
					RecordProviderFetch("", "")
					RecordRepositoryOp("", "")
					RecordHTTPRequest("", "", "200")
					RecordErrorByComponent("", "")
					RecordErrorByType("", "")
					RecordErrorByEndpoint("", "", "")
					RecordErrorLatency("", "", 10.0)
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics concurrency", t, func() {
		Convey("When recording metrics concurrently", func() {
			done := make(chan bool, 10)

			// Start multiple goroutines recording metrics
			for i := 0; i < 10; i++ {
				go func(id int) {
					for j := 0; j < 100; j++ {
						RecordNodeOutcome("success")
						UpdateQueueSize(1000 + j)
						RecordQualityScore(float64(j % 100))
						RecordHTTPRequest("process", "POST", "200")
					}
					done <- true
				}(i)
			}

			// Wait for all goroutines to complete
			for i := 0; i < 10; i++ {
				<-done
			}

			Convey("Then it should handle concurrent access without panics", func() {
				So(true, ShouldBeTrue) // If we get here, no panics occurred
			})
		})
	})
}

func TestMetricsOptionsValidation(t *testing.T) {
	Convey("Given metrics options validation", t, func() {
		Convey("When creating with empty namespace", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with nil histogram buckets", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with nil custom labels", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithCustomLabels(nil), WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with zero refresh interval", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRefreshInterval(0), WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When the registry rejects duplicate registration", func() {
			registry := prometheus.NewRegistry()

			Convey("Then building two managers on one registry should panic", func() {
				So(func() {
					NewManager(WithPrometheusRegistry(registry))
					NewManager(WithPrometheusRegistry(registry))
				}, ShouldPanic)
			})
		})
	})
}
