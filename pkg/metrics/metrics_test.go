package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

// value reads the current value of a counter or gauge.
func value(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return -1
	}
	if out.Counter != nil {
		return out.GetCounter().GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.overtakes.Add(3)

			Convey("Then metrics are registered under the custom names", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_overtakes_total" {
						found = true
						So(f.GetMetric()[0].GetCounter().GetValue(), ShouldEqual, 3)
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording session metrics", func() {
			before := value(globalManager.sessionsActive)
			SessionOpened()
			SessionOpened()
			SessionClosed()

			Convey("Then the active gauge tracks open sessions", func() {
				So(value(globalManager.sessionsActive), ShouldEqual, before+1)
			})
		})

		Convey("When recording labelled counters", func() {
			RecordPayload("duplicate")
			RecordCommand("start", "state_error")
			RecordOracleFallback("timeout")
			RecordLapResolved("heuristic")

			Convey("Then each label set is counted", func() {
				So(value(globalManager.payloadOutcomes.WithLabelValues("duplicate")), ShouldBeGreaterThanOrEqualTo, 1)
				So(value(globalManager.commands.WithLabelValues("start", "state_error")), ShouldBeGreaterThanOrEqualTo, 1)
				So(value(globalManager.oracleFallbacks.WithLabelValues("timeout")), ShouldBeGreaterThanOrEqualTo, 1)
				So(value(globalManager.lapsResolved.WithLabelValues("heuristic")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording the remaining metrics", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordNarrationEvents(4)
					RecordRestartPrompt()
					AddMailboxDepth(1)
					AddMailboxDepth(-1)
					RecordOvertakes(2)
					RecordIncidents(1)
					RecordRaceFinished()
					RecordOracleLatency("ok", 12)
					UpdateQueueSize(3)
					UpdateQueueCapacity(10)
					UpdateQueueUtilization(0.3)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					UpdateWorkerCount(4)
					UpdateWorkerActiveCount(1)
					UpdateWorkerIdleCount(3)
					RecordWorkerProcessingLatency(8)
					RecordWorkerError()
					RecordHTTPRequest("/healthz", "GET", "200")
					RecordHTTPRequestDuration("/healthz", "GET", "200", 0.01)
					RecordErrorByComponent("ws", "write")
					RecordErrorByType("write", "error")
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(10)
					RecordSystemGCPauseTime(0.2)
				}, ShouldNotPanic)
			})
		})

		Convey("Then the custom registry exposes pitwall metrics", func() {
			RecordRaceFinished()
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "pitwall_race_races_finished_total")
		})
	})
}
