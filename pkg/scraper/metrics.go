package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricNumbersExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "numify",
		Name:      "numbers_extracted_total",
		Help:      "Total unique numbers discovered across all sessions.",
	})
	metricStoreWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "numify",
		Name:      "store_write_failures_total",
		Help:      "Best-effort durable store writes that failed.",
	})
)
