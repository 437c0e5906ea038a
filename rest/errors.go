// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rest

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrTransport   = errors.New("angus: connection or tls failure")
	ErrHTTPStatus  = errors.New("angus: gate answered with an error status")
	ErrProtocol    = errors.New("angus: unexpected response from gate")
	ErrEncoding    = errors.New("angus: parameter cannot be encoded")
	ErrMissingRoot = errors.New("angus: root url must be provided")
	ErrClosed      = errors.New("angus: transport closed")

	ErrNoSuchService = fmt.Errorf("%w: no such service", ErrProtocol)
	ErrNoSuchVersion = fmt.Errorf("%w: no such version", ErrProtocol)
)

// Error is a rich error type that wraps the sentinel errors with context.
type Error struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Payload   map[string]any // parsed JSON body, when the gate sent one
	Err       error          // Nested lower-level error (e.g. net.Error)
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the sentinel and the nested cause, so errors.Is works
// for ErrTransport as well as for context.Canceled.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// maxErrorBody caps the body text copied into an Error.
const maxErrorBody = 512

func protocolError(op, format string, args ...any) error {
	return &Error{Sentinel: ErrProtocol, Operation: op, Err: fmt.Errorf(format, args...)}
}

func encodingError(op string, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Sentinel == ErrEncoding {
		return err
	}
	return &Error{Sentinel: ErrEncoding, Operation: op, Err: err}
}
