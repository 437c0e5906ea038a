// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the angus client.
//
// No session ids, job ids or URLs are used as labels.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "angus_client_request_total",
			Help: "Total number of HTTP requests issued to the gate",
		},
		[]string{"method", "mode", "status_class"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "angus_client_request_duration_seconds",
			Help:    "Duration of gate HTTP requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2.0, 8),
		},
		[]string{"method", "mode", "status_class"},
	)

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "angus_client_queue_depth",
		Help: "Number of non-blocking requests waiting for a worker",
	})
	queueWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "angus_client_queue_warnings_total",
		Help: "Number of submissions made while the queue was deeper than the worker count",
	})
)

// StatusClass buckets an HTTP outcome for labelling.
func StatusClass(err error, status int) string {
	if err != nil {
		return "error"
	}
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status > 0:
		return "1xx"
	}
	return "unknown"
}

// RecordRequest records one finished request. mode is "blocking", "future" or "stream".
func RecordRequest(method, mode string, status int, duration time.Duration, err error) {
	class := StatusClass(err, status)
	requestTotal.WithLabelValues(method, mode, class).Inc()
	requestDuration.WithLabelValues(method, mode, class).Observe(duration.Seconds())
}

// SetQueueDepth publishes the current pending-work depth.
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// RecordQueueWarning counts one advisory back-pressure warning.
func RecordQueueWarning() {
	queueWarnings.Inc()
}
