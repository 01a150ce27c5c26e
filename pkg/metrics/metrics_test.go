package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should register its collectors there", func() {
				So(manager, ShouldNotBeNil)
				manager.cacheHits.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the names carry namespace and subsystem", func() {
				manager.refreshes.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_refreshes_total")
			})
		})

		Convey("When empty options are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithConstLabels(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "rks")
				So(manager.subsystem, ShouldEqual, "rating")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global recorders", t, func() {
		Convey("When recording gateway events", func() {
			hits := testutil.ToFloat64(globalManager.cacheHits)
			misses := testutil.ToFloat64(globalManager.cacheMisses)
			refreshes := testutil.ToFloat64(globalManager.refreshes)
			RecordCacheHit()
			RecordCacheMiss()
			RecordCacheMiss()
			RecordRefresh(14.2)

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.cacheHits), ShouldEqual, hits+1)
				So(testutil.ToFloat64(globalManager.cacheMisses), ShouldEqual, misses+2)
				So(testutil.ToFloat64(globalManager.refreshes), ShouldEqual, refreshes+1)
			})
		})

		Convey("When recording remote fetch outcomes", func() {
			before := testutil.ToFloat64(globalManager.remoteFetches.WithLabelValues(OutcomeTimeout))
			err := RecordRemoteFetch(OutcomeTimeout, 12)

			Convey("Then known outcomes are counted", func() {
				So(err, ShouldBeNil)
				So(testutil.ToFloat64(globalManager.remoteFetches.WithLabelValues(OutcomeTimeout)), ShouldEqual, before+1)
			})

			Convey("And unknown outcomes are rejected", func() {
				err := RecordRemoteFetch("teapot", 1)
				So(errors.Is(err, ErrUnknownOutcome), ShouldBeTrue)
			})
		})

		Convey("When recording everything else", func() {
			Convey("Then nothing panics", func() {
				So(func() {
					RecordFallback()
					RecordSelectionLatency(0.3)
					RecordUnratable(4)
					RecordUnratable(0)
					UpdateIdentityLocks(3)
					UpdatePendingRefreshes(1)
					RecordHistoryWrite("snapshot")
					RecordHistoryReadLatency(0.5)
					RecordHistoryCorrupt()
					UpdateCatalogEntries(250)
					RecordCatalogReload("ok")
					UpdateQueueSize(3)
					UpdateQueueCapacity(100)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError("full")
					UpdateWorkerCount(4)
					RecordWorkerProcessingLatency(20)
					RecordWorkerError()
					RecordHTTPRequest("rating", "GET", "200", 1.5)
					RecordErrorByComponent("gateway", "remote")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(12)
					RecordSystemGCPauseTime(0.2)
				}, ShouldNotPanic)
			})
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
