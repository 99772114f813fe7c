package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a private registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("zone"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithConstLabels(map[string]string{"site": "prayagraj"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metrics are registered under the namespace", func() {
				m.readingsIngested.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_zone_readings_ingested_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "prayagraj")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When two managers share a registry registration panics", func() {
			NewManager(WithPrometheusRegistry(registry))
			So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Reading counters increase", func() {
			before := testutil.ToFloat64(globalManager.readingsIngested)
			RecordReadingIngested()
			So(testutil.ToFloat64(globalManager.readingsIngested), ShouldEqual, before+1)

			RecordReadingRejected("validation")
			So(testutil.ToFloat64(globalManager.readingsRejected.WithLabelValues("validation")), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("Zone gauges track and forget a zone", func() {
			UpdateZoneRisk("ghat-7", 0.62)
			UpdateZoneAlertLevel("ghat-7", 2)
			RecordAlertTransition("ghat-7", "yellow", "orange")

			So(testutil.ToFloat64(globalManager.zoneRisk.WithLabelValues("ghat-7")), ShouldEqual, 0.62)
			So(testutil.ToFloat64(globalManager.zoneAlertLevel.WithLabelValues("ghat-7")), ShouldEqual, 2)
			So(testutil.ToFloat64(globalManager.alertTransitions.WithLabelValues("ghat-7", "yellow", "orange")), ShouldEqual, 1)

			DeleteZone("ghat-7")
			So(testutil.CollectAndCount(globalManager.zoneRisk, "crowdews_ews_zone_risk"), ShouldEqual, 0)
		})

		Convey("Gauges accept updates without panicking", func() {
			So(func() {
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				UpdateQueueUtilization(0.3)
				UpdateWorkerCount(4)
				AddWorkerActive(1)
				AddWorkerActive(-1)
				UpdateZonesTracked(2)
				UpdateStoreRecords(12)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)
		})

		Convey("The registry exposes the service metrics", func() {
			RecordHTTPRequest("/status", "GET", "200")
			expected := `
# HELP crowdews_ews_queue_capacity Maximum queue capacity
# TYPE crowdews_ews_queue_capacity gauge
crowdews_ews_queue_capacity 10
`
			UpdateQueueCapacity(10)
			err := testutil.GatherAndCompare(GetRegistry(), strings.NewReader(expected), "crowdews_ews_queue_capacity")
			So(err, ShouldBeNil)
		})
	})
}
