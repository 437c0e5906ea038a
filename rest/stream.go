// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"sync"
	"sync/atomic"

	xlog "github.com/ManuGH/angus/internal/log"
	"github.com/ManuGH/angus/internal/metrics"
	"github.com/ManuGH/angus/internal/mixedreplace"
	"github.com/ManuGH/angus/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const streamReadSize = 32 << 10

// Frame is one uploaded stream item.
type Frame struct {
	Parameters  Parameters // per-frame metadata, sent as X-Angus-Parameters
	Field       string     // parameter the payload binds to
	Data        []byte
	ContentType string // defaults to image/jpeg
}

// StreamOptions tunes one Stream call.
type StreamOptions struct {
	Session *Session
}

// Stream is a running duplex stream. Parts are read with Next or All.
// Close must be called unless All ran to completion.
type Stream struct {
	parts  chan []byte
	cancel context.CancelFunc
	group  *errgroup.Group
	parent context.Context
	span   trace.Span
	logger zerolog.Logger

	received atomic.Int64
	sent     atomic.Int64

	closeOnce sync.Once
	err       error
}

// Stream negotiates a stream session, uploads frames to its input and
// returns the parts decoded from its output. Both directions run until
// frames is exhausted or the output ends, or until the stream is closed.
func (s *Service) Stream(ctx context.Context, params Parameters, frames iter.Seq[Frame], opts StreamOptions) (*Stream, error) {
	call := s.Apply(params, opts.Session)

	negotiated, err := s.Streams.Create(ctx, call)
	if err != nil {
		return nil, err
	}
	input, inOK := negotiated.Representation()["input"].(string)
	output, outOK := negotiated.Representation()["output"].(string)
	if !inOK || !outOK || input == "" || output == "" {
		return nil, protocolError("stream", "negotiation answer lacks input or output")
	}
	input = JoinEndpoint(negotiated.Endpoint(), input)
	output = JoinEndpoint(negotiated.Endpoint(), output)

	spanCtx, span := telemetry.Tracer().Start(ctx, "angus.stream", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String(telemetry.ServiceURLKey, s.Endpoint()))

	runCtx, cancel := context.WithCancel(spanCtx)
	g, gctx := errgroup.WithContext(runCtx)
	st := &Stream{
		parts:  make(chan []byte),
		cancel: cancel,
		group:  g,
		parent: ctx,
		span:   span,
		logger: xlog.WithComponentFromContext(ctx, "stream").With().Str(xlog.FieldService, s.Endpoint()).Logger(),
	}

	g.Go(func() error { return st.upload(gctx, s.transport, input, frames) })
	g.Go(func() error { return st.download(gctx, s.transport, output) })

	st.logger.Debug().Msg("stream started")
	return st, nil
}

func (st *Stream) upload(ctx context.Context, t *Transport, input string, frames iter.Seq[Frame]) error {
	pr, pw := io.Pipe()
	st.group.Go(func() error {
		_ = pw.CloseWithError(st.writeFrames(ctx, pw, frames))
		return nil
	})

	resp, err := t.Open(ctx, http.MethodPost, input, pr, mixedreplace.ContentType)
	_ = pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if ctx.Err() != nil {
		return nil
	}
	return (&Response{StatusCode: resp.StatusCode}).Check("stream upload")
}

func (st *Stream) writeFrames(ctx context.Context, w io.Writer, frames iter.Seq[Frame]) error {
	mw := mixedreplace.NewWriter(w)
	for f := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		meta, err := json.Marshal(f.Parameters)
		if err != nil {
			return encodingError("encode frame parameters", err)
		}
		if f.Parameters == nil {
			meta = nil
		}
		if err := mw.WritePart(mixedreplace.Part{
			ContentType: f.ContentType,
			Field:       f.Field,
			Parameters:  meta,
			Data:        f.Data,
		}); err != nil {
			return err
		}
		st.sent.Add(1)
		metrics.RecordStreamFrame("sent")
	}
	return mw.Close()
}

func (st *Stream) download(ctx context.Context, t *Transport, output string) error {
	defer close(st.parts)

	resp, err := t.Open(ctx, http.MethodGet, output, nil, "")
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return (&Response{StatusCode: resp.StatusCode, Body: data}).Check("stream download")
	}

	var parser mixedreplace.Parser
	buf := make([]byte, streamReadSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n])
			for {
				part, ok, err := parser.Next()
				if err != nil {
					return protocolError("stream download", "%v", err)
				}
				if !ok {
					break
				}
				select {
				case st.parts <- part:
					st.received.Add(1)
					metrics.RecordStreamFrame("received")
				case <-ctx.Done():
					return nil
				}
			}
			if parser.Closed() {
				return nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || ctx.Err() != nil {
				if n := parser.Buffered(); n > 0 && ctx.Err() == nil {
					st.logger.Debug().Int(xlog.FieldBytes, n).Msg("output ended inside a part")
				}
				return nil
			}
			return &Error{Sentinel: ErrTransport, Operation: "stream download", Err: readErr}
		}
	}
}

// Next returns the next decoded part. It returns io.EOF once the output has
// ended, or the error that stopped the stream.
func (st *Stream) Next() ([]byte, error) {
	part, ok := <-st.parts
	if ok {
		return part, nil
	}
	if err := st.Close(); err != nil {
		return nil, err
	}
	if err := st.parent.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// All yields parts in order. Leaving the loop early closes the stream.
// A terminal error is yielded once with a nil part.
func (st *Stream) All() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer func() { _ = st.Close() }()
		for {
			part, err := st.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(part, nil) {
				return
			}
		}
	}
}

// Close stops both directions, releases the connections and waits for them.
// It returns the first error that stopped the stream, if any.
func (st *Stream) Close() error {
	st.closeOnce.Do(func() {
		st.cancel()
		st.err = st.group.Wait()
		st.span.SetAttributes(attribute.Int64(telemetry.StreamFramesInKey, st.received.Load()))
		if st.err != nil {
			st.span.RecordError(st.err)
			st.span.SetStatus(codes.Error, st.err.Error())
		}
		st.span.End()
		st.logger.Debug().
			Int64(xlog.FieldFrames, st.received.Load()).
			Int64("frames_sent", st.sent.Load()).
			Err(st.err).
			Msg("stream closed")
	})
	return st.err
}
