// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "angus_jobs_submitted_total",
		Help: "Jobs submitted, by server mode (sync/async) and client mode (blocking/callback)",
	}, []string{"server_mode", "client_mode"})

	compositeDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "angus_composite_dropped_total",
		Help: "Composite sub-service results dropped because the service answered with an error status",
	}, []string{"service"})

	streamFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "angus_stream_frames_total",
		Help: "Stream frames by direction (sent/received)",
	}, []string{"direction"})

	blobCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "angus_blob_cache_total",
		Help: "Blob reference cache lookups by result (hit/miss)",
	}, []string{"result"})
)

// RecordJobSubmitted counts one job submission.
func RecordJobSubmitted(async, callback bool) {
	server := "sync"
	if async {
		server = "async"
	}
	client := "blocking"
	if callback {
		client = "callback"
	}
	jobsSubmitted.WithLabelValues(server, client).Inc()
}

// RecordCompositeDropped counts a sub-service excluded from a composite result.
func RecordCompositeDropped(service string) {
	compositeDropped.WithLabelValues(service).Inc()
}

// RecordStreamFrame counts one frame; direction is "sent" or "received".
func RecordStreamFrame(direction string) {
	streamFrames.WithLabelValues(direction).Inc()
}

// RecordBlobCache counts a blob cache lookup.
func RecordBlobCache(hit bool) {
	if hit {
		blobCache.WithLabelValues("hit").Inc()
		return
	}
	blobCache.WithLabelValues("miss").Inc()
}
