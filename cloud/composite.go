// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cloud

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/angus/internal/cache"
	xlog "github.com/ManuGH/angus/internal/log"
	"github.com/ManuGH/angus/internal/metrics"
	"github.com/ManuGH/angus/internal/telemetry"
	"github.com/ManuGH/angus/rest"
)

// CompositeStatus is the status of every composite result.
const CompositeStatus = http.StatusOK

// Member is one named service of a composite.
type Member struct {
	Name    string
	Service *rest.Service
}

// CompositeService calls several services as one. Binary parameters are
// uploaded once as blobs and every service receives the same references.
type CompositeService struct {
	*rest.Resource
	*rest.SessionState

	members []Member
	root    *Root
}

// NewCompositeService groups members. root provides the blob store used for
// binary parameters.
func NewCompositeService(root *Root, members []Member) *CompositeService {
	r := rest.NewResource(root.Transport(), "memory:///", "composite", nil)
	return &CompositeService{
		Resource:     r,
		SessionState: rest.NewSessionState(r),
		members:      append([]Member(nil), members...),
		root:         root,
	}
}

// Services returns the member names in order.
func (c *CompositeService) Services() []string {
	names := make([]string, len(c.members))
	for i, m := range c.members {
		names[i] = m.Name
	}
	return names
}

// Service returns the member called name.
func (c *CompositeService) Service(name string) (*rest.Service, bool) {
	for _, m := range c.members {
		if m.Name == name {
			return m.Service, true
		}
	}
	return nil, false
}

// Process fans params out to every member and merges the answers under the
// member names, plus "status": 200. Members answering with HTTP >= 400 are
// left out of the result. A callback, when given, receives the merged job.
func (c *CompositeService) Process(ctx context.Context, params rest.Parameters, opts rest.CallOptions) (*rest.Job, error) {
	call := c.Apply(params, opts.Session)
	call["async"] = opts.Async
	_, session := call["state"]

	ctx, span := telemetry.Tracer().Start(ctx, "angus.composite.process", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(telemetry.JobAttributes(c.Endpoint(), opts.Async, opts.Callback != nil, session)...)

	fail := func(err error) (*rest.Job, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resolved, err := rest.Resolve(call, c.uploader(ctx))
	if err != nil {
		return fail(err)
	}
	body, err := rest.JSONBody(resolved)
	if err != nil {
		return fail(err)
	}

	t := c.Transport()
	futures := make([]*rest.Future, len(c.members))
	for i, m := range c.members {
		futures[i] = t.Go(ctx, http.MethodPost, m.Service.Jobs.Endpoint(), body)
	}

	logger := xlog.WithComponentFromContext(ctx, "composite")
	result := make(map[string]any, len(c.members)+1)
	var firstErr error
	for i, f := range futures {
		name := c.members[i].Name
		resp, err := f.Result()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if resp.StatusCode >= http.StatusBadRequest {
			metrics.RecordCompositeDropped(name)
			logger.Warn().
				Str(xlog.FieldService, name).
				Int(xlog.FieldStatus, resp.StatusCode).
				Msg("service failed, left out of composite result")
			continue
		}
		obj, err := resp.Object("composite " + name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result[name] = obj
	}
	if firstErr != nil {
		return fail(firstErr)
	}

	result["status"] = CompositeStatus
	span.SetAttributes(telemetry.CompositeAttributes(len(c.members), len(result)-1)...)

	job := &rest.Job{Resource: rest.NewResource(t, c.Endpoint(), "", result)}
	if opts.Callback != nil {
		opts.Callback(job, nil)
	}
	return job, nil
}

// uploader replaces attachments by blob references, reusing cached uploads.
func (c *CompositeService) uploader(ctx context.Context) func(*rest.Attachment) (any, error) {
	return func(a *rest.Attachment) (any, error) {
		data, err := a.Data()
		if err != nil {
			return nil, err
		}

		key := cache.Key(data)
		if c.root.cache != nil {
			endpoint, ok := c.root.cache.Get(ctx, key)
			metrics.RecordBlobCache(ok)
			if ok {
				return endpoint, nil
			}
		}

		blob, err := c.root.Blobs.Create(ctx, rest.Bytes(data))
		if err != nil {
			return nil, err
		}
		c.root.rememberBlob(ctx, key, blob.Endpoint())
		return blob.Endpoint(), nil
	}
}
