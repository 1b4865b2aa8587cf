// Package metrics holds the Prometheus collectors exported by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "ocrbot"
)

var (
	// HTTP request metrics for the webhook server
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// TokenExchangesTotal counts client-credentials exchanges by result (success, error).
	TokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_exchanges_total",
			Help:      "Total number of OAuth2 token exchanges",
		},
		[]string{"result"},
	)

	RecognitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ocr",
			Name:      "recognitions_total",
			Help:      "Total number of OCR recognition calls by result",
		},
		[]string{"result"},
	)

	RecognitionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ocr",
			Name:      "recognition_duration_seconds",
			Help:      "OCR recognition call duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		},
	)

	// CommandsTotal counts handled bot commands by terminal state.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "commands_total",
			Help:      "Total number of handled OCR commands by terminal state",
		},
		[]string{"state"},
	)

	CleanupRemovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "removals_total",
			Help:      "Total number of temporary file removal attempts by result",
		},
		[]string{"result"},
	)

	CleanupPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "pending_tasks",
			Help:      "Number of scheduled cleanup tasks that have not finished",
		},
	)
)
