// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"

	// Component
	FieldComponent = "component"

	// Resource fields
	FieldEndpoint  = "endpoint"
	FieldService   = "service"
	FieldVersion   = "service_version"
	FieldJobStatus = "job_status"
	FieldStatus    = "http_status"
	FieldMethod    = "http_method"

	// Pool fields
	FieldQueueDepth = "queue_depth"
	FieldWorkers    = "workers"

	// Stream fields
	FieldFrames = "frames"
	FieldBytes  = "bytes"
)
