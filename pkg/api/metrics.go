package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/odvcencio/numify/pkg/session"
)

var (
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "numify",
		Name:      "sessions_active_total",
		Help:      "Number of scraping sessions currently running.",
	})
	metricOpenStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "numify",
		Name:      "streams_open_total",
		Help:      "Number of SSE streams currently connected.",
	})
)

func refreshSessionGauge(registry *session.Registry) {
	if registry == nil {
		return
	}
	metricActiveSessions.Set(float64(registry.Running()))
}
