// Package metrics exposes the Prometheus collectors of the cone pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TriggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cones_triggers_total",
		Help: "Triggers received by the recompute controller",
	}, []string{"trigger"})
	RecomputesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cones_recomputes_total",
		Help: "Pipeline runs started, by the trigger that caused them",
	}, []string{"trigger"})
	DispatchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cones_dispatch_duration_ms",
		Help:    "Backend dispatch duration in milliseconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"pass", "backend"})
	DispatchErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cones_dispatch_errors_total",
		Help: "Failed dispatches, by the stage that failed",
	}, []string{"stage"})
	WithoutDisplay = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cones_without_display",
		Help: "Cones hidden because they have no elevation for the active year",
	})
	Cones = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cones_rows",
		Help: "Cones in the compute buffers",
	})
)

func init() {
	prometheus.MustRegister(TriggersTotal)
	prometheus.MustRegister(RecomputesTotal)
	prometheus.MustRegister(DispatchDurationMs)
	prometheus.MustRegister(DispatchErrorsTotal)
	prometheus.MustRegister(WithoutDisplay)
	prometheus.MustRegister(Cones)
}

// Handler serves every registered collector.
func Handler() http.Handler { return promhttp.Handler() }
