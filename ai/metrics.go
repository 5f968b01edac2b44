// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package ai

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodle_ai_queries_total",
			Help: "Total number of queries processed by the orchestrator",
		},
		[]string{"status"},
	)
	promProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodle_ai_provider_calls_total",
			Help: "Total number of provider calls by provider and outcome",
		},
		[]string{"provider", "status"},
	)
	promProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodle_ai_provider_duration_milliseconds",
			Help:    "Provider call duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"provider"},
	)
	promBrowserFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moodle_ai_browser_fallbacks_total",
			Help: "Total number of queries answered via the browser fallback path",
		},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promQueriesTotal)
	prometheus.MustRegister(promProviderCalls)
	prometheus.MustRegister(promProviderDuration)
	prometheus.MustRegister(promBrowserFallbacks)
}
