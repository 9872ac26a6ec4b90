package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should register its collectors there", func() {
				So(manager, ShouldNotBeNil)
				manager.observations.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("wager"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metric names should use the namespace and subsystem", func() {
				manager.decisions.WithLabelValues("TiedRatings").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, f := range families {
					if f.GetName() == "test_wager_decisions_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording a decision", func() {
			before := testutil.ToFloat64(global().decisions.WithLabelValues("ZeroBalance"))
			RecordDecision("ZeroBalance")

			Convey("Then the labelled counter should increase by one", func() {
				So(testutil.ToFloat64(global().decisions.WithLabelValues("ZeroBalance")), ShouldEqual, before+1)
			})
		})

		Convey("When recording a placed wager", func() {
			before := testutil.ToFloat64(global().wagersPlaced.WithLabelValues("slot1"))
			RecordWagerPlaced("slot1", 519)

			Convey("Then the wager counter should increase", func() {
				So(testutil.ToFloat64(global().wagersPlaced.WithLabelValues("slot1")), ShouldEqual, before+1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(64)
			UpdateStreamClients("actor", 2)

			Convey("Then they should hold the last value", func() {
				So(testutil.ToFloat64(global().commandsQueued), ShouldEqual, 7)
				So(testutil.ToFloat64(global().queueCapacity), ShouldEqual, 64)
				So(testutil.ToFloat64(global().streamClients.WithLabelValues("actor")), ShouldEqual, 2)
			})
		})

		Convey("When recording the remaining helpers", func() {
			Convey("Then none of them should panic", func() {
				So(func() {
					RecordObservation()
					RecordMatchEvent("NewMatch")
					RecordPolicyUpdate()
					RecordRebet()
					RecordQueueRejected("full")
					RecordRatingFetch("found")
					RecordRatingLookupLatency(12)
					RecordExecutionError()
					RecordPublishError("redis")
					RecordPublishDropped("console")
					RecordHTTPRequest("status", "GET", "200")
					RecordHTTPRequestDuration("status", "GET", "200", 1.5)
					RecordErrorByComponent("engine", "stale")
				}, ShouldNotPanic)
				So(GetRegistry(), ShouldNotBeNil)
			})
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global manager reconfigured with a namespace and a deployment label", t, func() {
		Configure(
			WithNamespace("salty"),
			WithConstLabels(map[string]string{"deployment": "staging"}),
			WithHistogramBuckets([]float64{5, 50, 500}),
		)
		Reset(func() { Configure() })

		Convey("When a decision is recorded", func() {
			RecordDecision("TiedRatings")
			families, err := GetRegistry().Gather()

			Convey("Then the served registry carries the configured name and label", func() {
				So(err, ShouldBeNil)
				var names []string
				for _, f := range families {
					names = append(names, f.GetName())
					if f.GetName() == "salty_engine_decisions_total" {
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "deployment")
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "staging")
					}
				}
				So(names, ShouldContain, "salty_engine_decisions_total")
				So(names, ShouldNotContain, "saltyscope_engine_decisions_total")
			})
		})
	})
}
