/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes playback counters over Prometheus.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process metric set on a private registry so tests can
// instantiate independent instances.
type Metrics struct {
	registry *prometheus.Registry

	TracksStarted  *prometheus.CounterVec
	DecodeFailures prometheus.Counter
	Crossfades     prometheus.Counter
	HistoryResets  *prometheus.CounterVec
	TriggerFires   *prometheus.CounterVec
	PositionSecs   prometheus.Gauge
}

// New creates and registers the metric set.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.TracksStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventdeck_tracks_started_total",
		Help: "Tracks that actually started playing, by playlist.",
	}, []string{"playlist"})

	m.DecodeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventdeck_decode_failures_total",
		Help: "Tracks skipped because their audio could not be decoded.",
	})

	m.Crossfades = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventdeck_crossfades_total",
		Help: "Track transitions that ran as a crossfade.",
	})

	m.HistoryResets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventdeck_history_resets_total",
		Help: "Exhaustion resets of the no-repeat history, by playlist.",
	}, []string{"playlist"})

	m.TriggerFires = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventdeck_trigger_fires_total",
		Help: "External trigger invocations, by trigger name.",
	}, []string{"trigger"})

	m.PositionSecs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eventdeck_playback_position_seconds",
		Help: "Current playback position of the active track.",
	})

	m.registry.MustRegister(m.TracksStarted, m.DecodeFailures, m.Crossfades, m.HistoryResets, m.TriggerFires, m.PositionSecs)
	return m
}

// Handler exposes the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
