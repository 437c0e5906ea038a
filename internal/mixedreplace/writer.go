// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mixedreplace implements the framed multipart stream used by the gate
// for continuous uploads and downloads ("multipart/x-mixed-replace" with the
// fixed boundary "myboundary").
//
// Each part on the wire is:
//
//	--myboundary\r\n
//	Content-Type: image/jpeg\r\n
//	Content-Length: <n>\r\n
//	X-Angus-DataField: <field>\r\n
//	X-Angus-Parameters: <json>\r\n
//	\r\n
//	<n bytes>\r\n
//
// and the stream ends with "--myboundary--".
package mixedreplace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// Boundary is the fixed boundary token of the gate's streams.
	Boundary = "myboundary"
	// ContentType is the Content-Type header of a streamed upload.
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary
	// DefaultPartType is the per-part Content-Type used when none is given.
	DefaultPartType = "image/jpeg"

	// HeaderDataField names the parameter the part's payload binds to.
	HeaderDataField = "X-Angus-DataField"
	// HeaderParameters carries the JSON-encoded per-frame parameters.
	HeaderParameters = "X-Angus-Parameters"

	crlf = "\r\n"
)

var (
	// ErrWriterClosed is returned when writing after Close.
	ErrWriterClosed = errors.New("mixedreplace: writer closed")
	// ErrInvalidHeader is returned for header values that would break framing.
	ErrInvalidHeader = errors.New("mixedreplace: header value contains a line break")
)

// Part is one outgoing frame.
type Part struct {
	ContentType string // defaults to DefaultPartType
	Field       string
	Parameters  []byte // JSON document, sent verbatim
	Data        []byte
}

// Writer frames parts onto an underlying stream.
type Writer struct {
	w      *bufio.Writer
	closed bool
}

// NewWriter returns a Writer framing parts onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WritePart writes and flushes one framed part.
func (w *Writer) WritePart(p Part) error {
	if w.closed {
		return ErrWriterClosed
	}
	ct := p.ContentType
	if ct == "" {
		ct = DefaultPartType
	}
	params := string(p.Parameters)
	if params == "" {
		params = "{}"
	}
	for _, v := range []string{ct, p.Field, params} {
		if strings.ContainsAny(v, "\r\n") {
			return ErrInvalidHeader
		}
	}

	var b strings.Builder
	b.WriteString("--" + Boundary + crlf)
	b.WriteString("Content-Type: " + ct + crlf)
	b.WriteString("Content-Length: " + strconv.Itoa(len(p.Data)) + crlf)
	b.WriteString(HeaderDataField + ": " + p.Field + crlf)
	b.WriteString(HeaderParameters + ": " + params + crlf)
	b.WriteString(crlf)

	if _, err := w.w.WriteString(b.String()); err != nil {
		return fmt.Errorf("write part header: %w", err)
	}
	if _, err := w.w.Write(p.Data); err != nil {
		return fmt.Errorf("write part body: %w", err)
	}
	if _, err := w.w.WriteString(crlf); err != nil {
		return fmt.Errorf("write part trailer: %w", err)
	}
	return w.w.Flush()
}

// Close writes the closing boundary. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := w.w.WriteString("--" + Boundary + "--"); err != nil {
		return err
	}
	return w.w.Flush()
}
