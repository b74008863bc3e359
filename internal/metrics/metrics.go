// Package metrics exposes Prometheus instruments for scan execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts scan invocations by preset and outcome
	// (ok, validation_error, upstream_error, cancelled).
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketscan_scans_total",
		Help: "Scan invocations by preset and outcome",
	}, []string{"preset", "outcome"})

	// ScanDuration observes wall-clock duration of whole scans.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketscan_scan_duration_seconds",
		Help:    "End-to-end scan duration",
		Buckets: prometheus.DefBuckets,
	})

	// ScanResults observes the survivor count per successful scan.
	ScanResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketscan_scan_results",
		Help:    "Number of ranked results per scan",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})
)

// Outcome labels for ScansTotal.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation_error"
	OutcomeUpstream   = "upstream_error"
	OutcomeCancelled  = "cancelled"
)
