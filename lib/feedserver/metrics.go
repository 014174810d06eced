// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package feedserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the feed server's Prometheus instruments.
type Metrics struct {
	Connections   prometheus.Gauge
	Subscriptions prometheus.Gauge
	Frames        *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	Snapshots     prometheus.Counter
	WriteLatency  prometheus.Histogram
}

// NewMetrics creates the instruments and registers them with
// registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lifeline_feed_connections",
			Help: "Open client connections",
		}),
		Subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lifeline_feed_subscriptions",
			Help: "Active path subscriptions across all connections",
		}),
		Frames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_feed_frames_total",
			Help: "Frames received from clients by type",
		}, []string{"type"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_feed_rejections_total",
			Help: "Requests answered with nack, by error code",
		}, []string{"code"}),
		Snapshots: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_feed_snapshots_total",
			Help: "Snapshot frames queued for subscribers",
		}),
		WriteLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lifeline_feed_write_duration_seconds",
			Help:    "Time to commit a write or delete and fan out its snapshot",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}
