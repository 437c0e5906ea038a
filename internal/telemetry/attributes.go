// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by the SDK spans.
const (
	ServiceNameKey    = "angus.service.name"
	ServiceURLKey     = "angus.service.url"
	JobAsyncKey       = "angus.job.async"
	JobCallbackKey    = "angus.job.callback"
	JobStatusKey      = "angus.job.status"
	SessionKey        = "angus.session"
	AttachmentsKey    = "angus.attachments"
	CompositeSizeKey  = "angus.composite.size"
	CompositeKeptKey  = "angus.composite.kept"
	StreamFramesInKey = "angus.stream.frames_received"
)

// JobAttributes describes one job submission.
func JobAttributes(service string, async, callback, session bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ServiceURLKey, service),
		attribute.Bool(JobAsyncKey, async),
		attribute.Bool(JobCallbackKey, callback),
		attribute.Bool(SessionKey, session),
	}
}

// CompositeAttributes describes a composite fan-out once results are merged.
func CompositeAttributes(size, kept int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(CompositeSizeKey, size),
		attribute.Int(CompositeKeptKey, kept),
	}
}
