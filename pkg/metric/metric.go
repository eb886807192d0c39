// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	metrics "github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all metrics for the auction engine using luxfi/metric
type Metrics struct {
	metricsInstance metrics.Metrics

	// Lifecycle metrics
	AuctionsEnabled  metrics.Counter
	AuctionsDisabled metrics.Counter
	AuctionsKicked   metrics.Counter
	SweepsExecuted   metrics.Counter

	// Settlement metrics
	TakesSettled  metrics.Counter
	TakesRejected metrics.CounterVec
	EventsDropped metrics.Gauge
	OpenWindows   metrics.Gauge

	// Performance metrics
	TakeDuration   metrics.Histogram
	KickDuration   metrics.Histogram
	SettlementSize metrics.Histogram
}

// NewMetrics creates a new metrics instance using luxfi/metric
func NewMetrics() (*Metrics, error) {
	// Create factory and metrics instance
	factory := metrics.NewPrometheusFactory()
	metricsInstance := factory.New("dax")

	m := &Metrics{
		metricsInstance: metricsInstance,
	}

	// Create lifecycle metrics
	m.AuctionsEnabled = metricsInstance.NewCounter("auctions_enabled_total", "Total number of sell tokens enabled")
	m.AuctionsDisabled = metricsInstance.NewCounter("auctions_disabled_total", "Total number of sell tokens disabled")
	m.AuctionsKicked = metricsInstance.NewCounter("auctions_kicked_total", "Total number of price windows opened")
	m.SweepsExecuted = metricsInstance.NewCounter("sweeps_total", "Total number of stray-balance sweeps")

	// Create settlement metrics
	m.TakesSettled = metricsInstance.NewCounter("takes_settled_total", "Total number of settled takes")
	m.TakesRejected = metricsInstance.NewCounterVec(
		"takes_rejected_total",
		"Total number of rejected takes by reason",
		[]string{"reason"},
	)
	m.EventsDropped = metricsInstance.NewGauge("events_dropped", "Lifecycle events dropped on full subscriber buffers")
	m.OpenWindows = metricsInstance.NewGauge("open_windows", "Number of auctions inside a live price window")

	// Create performance metrics
	m.TakeDuration = metricsInstance.NewHistogram(
		"take_duration_seconds",
		"Time to settle a take end to end",
		prometheus.DefBuckets,
	)

	m.KickDuration = metricsInstance.NewHistogram(
		"kick_duration_seconds",
		"Time to open a price window",
		prometheus.DefBuckets,
	)

	m.SettlementSize = metricsInstance.NewHistogram(
		"settlement_size_want",
		"Settled take sizes in whole settlement tokens",
		prometheus.ExponentialBuckets(1, 10, 8),
	)

	return m, nil
}

// GetGatherer returns the prometheus gatherer for metrics export
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultRegisterer
}
