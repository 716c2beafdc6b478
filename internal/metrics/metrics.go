// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Package metrics defines the Prometheus instrumentation for Accessd:
// tap ingestion, waiter matching, access decisions, relay dispatch and
// telemetry synthesis. Exposed at /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Gateway

	TapsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_taps_received_total",
			Help: "Total card tap messages received from the broker",
		},
	)

	TapsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_taps_dropped_total",
			Help: "Total broker messages dropped before fan-out",
		},
		[]string{"reason"}, // "parse_error", "missing_card_id"
	)

	HandlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_handler_panics_total",
			Help: "Total panics recovered during tap handler fan-out",
		},
	)

	BrokerReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_broker_reconnects_total",
			Help: "Total broker reconnections",
		},
	)

	// Arrival & Session Registry

	WaiterMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_waiter_matches_total",
			Help: "Total taps delivered to a waiting session",
		},
	)

	WaiterTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_waiter_timeouts_total",
			Help: "Total wait-for-tap calls that timed out",
		},
	)

	WaitersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_waiters_active",
			Help: "Sessions currently waiting for a tap",
		},
	)

	TapsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_taps_expired_total",
			Help: "Total pending taps discarded after TTL expiry",
		},
	)

	// Access Decision Engine

	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Total access decisions by outcome",
		},
		[]string{"outcome"}, // "authorized", denial reason
	)

	DecisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "access_decision_duration_seconds",
			Help:    "Latency of access decisions including store lookups",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Equipment Command Dispatcher

	RelayCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_relay_commands_total",
			Help: "Total relay commands by action and status",
		},
		[]string{"action", "status"}, // status: "success", "error"
	)

	TelemetrySynthesized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_telemetry_samples_total",
			Help: "Total synthesized telemetry samples by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	// HTTP surface

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
)
