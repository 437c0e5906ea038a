// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rest

import (
	"context"
	"net/url"
	"strconv"

	xlog "github.com/ManuGH/angus/internal/log"
	"github.com/ManuGH/angus/internal/metrics"
	"github.com/ManuGH/angus/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CallOptions tunes one Process call.
type CallOptions struct {
	// Async asks the gate to compute in the background (answer 202). It does
	// not change how the client waits.
	Async bool
	// Session overrides the default session for this call.
	Session *Session
	// Callback switches to non-blocking submission. It receives the job or
	// the error exactly once, on a transport worker.
	Callback func(*Job, error)
}

// Service is one version of a remote service.
type Service struct {
	*Resource
	*SessionState

	Description *Resource
	Jobs        *Collection
	Streams     *Collection
}

// NewService binds the service at parent/name and its sub-resources.
func NewService(t *Transport, parent, name string, representation map[string]any) *Service {
	r := NewResource(t, parent, name, representation)
	return &Service{
		Resource:     r,
		SessionState: NewSessionState(r),
		Description:  NewResource(t, r.Endpoint(), "description", nil),
		Jobs:         NewCollection(t, r.Endpoint(), "jobs"),
		Streams:      NewCollection(t, r.Endpoint(), "streams"),
	}
}

// GetDescription fetches and returns the service description.
func (s *Service) GetDescription(ctx context.Context) (map[string]any, error) {
	if err := s.Description.Fetch(ctx); err != nil {
		return nil, err
	}
	return s.Description.Representation(), nil
}

// Process submits one job. Without a callback it blocks and returns the job;
// with a callback it returns (nil, nil) once the request is queued.
func (s *Service) Process(ctx context.Context, params Parameters, opts CallOptions) (*Job, error) {
	call := s.Apply(params, opts.Session)
	call["async"] = opts.Async
	state, session := call["state"].(map[string]any)

	ctx, span := telemetry.Tracer().Start(ctx, "angus.service.process", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(telemetry.JobAttributes(s.Endpoint(), opts.Async, opts.Callback != nil, session)...)

	logger := xlog.WithComponentFromContext(ctx, "service")
	if session {
		if id, ok := state["session_id"].(string); ok {
			logger = logger.With().Str(xlog.FieldSessionID, id).Logger()
		}
	}
	metrics.RecordJobSubmitted(opts.Async, opts.Callback != nil)

	if opts.Callback != nil {
		cb := opts.Callback
		err := s.Jobs.CreateAsync(ctx, call, func(r *Resource, err error) {
			if err != nil {
				logger.Debug().Err(err).Str(xlog.FieldService, s.Endpoint()).Msg("job failed")
				cb(nil, err)
				return
			}
			cb(&Job{Resource: r}, nil)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	r, err := s.Jobs.Create(ctx, call)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	job := &Job{Resource: r}
	span.SetAttributes(attribute.Int(telemetry.JobStatusKey, job.Status()))
	logger.Debug().
		Str(xlog.FieldService, s.Endpoint()).
		Int(xlog.FieldJobStatus, job.Status()).
		Msg("job submitted")
	return job, nil
}

// LatestVersion asks GetService for the numerically greatest version. Every
// other value, 0 included, names an exact version.
const LatestVersion = -1

// GenericService lists the versions of one named service.
type GenericService struct {
	*Collection
}

// NewGenericService binds the version listing at parent/name.
func NewGenericService(t *Transport, parent, name string) *GenericService {
	return &GenericService{Collection: NewCollection(t, parent, name)}
}

// GetService resolves version, or the greatest one for LatestVersion.
// Version keys are compared as integers.
func (g *GenericService) GetService(ctx context.Context, version int) (*Service, error) {
	const op = "get service version"
	var filters url.Values
	if version != LatestVersion {
		filters = url.Values{"version": {strconv.Itoa(version)}}
	}
	listing, err := g.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	versions, ok := listing["versions"].(map[string]any)
	if !ok {
		return nil, protocolError(op, "listing of %s has no versions", g.Endpoint())
	}

	key := strconv.Itoa(version)
	if version == LatestVersion {
		key, ok = latestVersion(versions)
		if !ok {
			return nil, &Error{Sentinel: ErrNoSuchVersion, Operation: op, Body: g.Endpoint()}
		}
	}
	entry, ok := versions[key].(map[string]any)
	if !ok {
		return nil, &Error{Sentinel: ErrNoSuchVersion, Operation: op, Body: g.Endpoint() + " version " + key}
	}
	target, ok := entry["url"].(string)
	if !ok || target == "" {
		return nil, protocolError(op, "version %s of %s has no url", key, g.Endpoint())
	}
	logger := xlog.WithComponentFromContext(ctx, "service")
	logger.Debug().
		Str(xlog.FieldEndpoint, g.Endpoint()).
		Str(xlog.FieldVersion, key).
		Msg("service version resolved")
	return NewService(g.transport, g.Endpoint(), target, nil), nil
}

// latestVersion picks the greatest integer key. Non-numeric keys are ignored.
func latestVersion(versions map[string]any) (string, bool) {
	best, found := 0, false
	var bestKey string
	for k := range versions {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		if !found || n > best {
			best, bestKey, found = n, k, true
		}
	}
	return bestKey, found
}
