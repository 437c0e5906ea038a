// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rest

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	xlog "github.com/ManuGH/angus/internal/log"
)

// Resource is an addressable entity on the gate. Its representation is the
// last JSON object seen for it, or nil until fetched.
type Resource struct {
	transport *Transport
	parent    string
	name      string
	endpoint  string

	mu             sync.RWMutex
	representation map[string]any
}

// NewResource binds name under parent. representation may be nil.
func NewResource(t *Transport, parent, name string, representation map[string]any) *Resource {
	return &Resource{
		transport:      t,
		parent:         parent,
		name:           name,
		endpoint:       JoinEndpoint(parent, name),
		representation: representation,
	}
}

// JoinEndpoint resolves name against parent treated as a directory. Absolute
// names are returned unchanged.
func JoinEndpoint(parent, name string) string {
	if !strings.HasSuffix(parent, "/") {
		parent += "/"
	}
	base, err := url.Parse(parent)
	if err != nil {
		return parent + strings.TrimPrefix(name, "/")
	}
	ref, err := url.Parse(name)
	if err != nil {
		return parent + strings.TrimPrefix(name, "/")
	}
	return base.ResolveReference(ref).String()
}

func (r *Resource) Parent() string        { return r.parent }
func (r *Resource) Name() string          { return r.name }
func (r *Resource) Endpoint() string      { return r.endpoint }
func (r *Resource) Transport() *Transport { return r.transport }

// Representation returns the cached JSON object, nil before the first fetch.
func (r *Resource) Representation() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.representation
}

func (r *Resource) setRepresentation(v map[string]any) {
	r.mu.Lock()
	r.representation = v
	r.mu.Unlock()
}

// Status returns the integer "status" field of the representation, or 0.
func (r *Resource) Status() int {
	v, ok := r.Representation()["status"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

// Fetch replaces the representation with the current remote state.
// It is not retried.
func (r *Resource) Fetch(ctx context.Context) error {
	const op = "fetch"
	resp, err := r.transport.Get(ctx, r.endpoint, nil)
	if err != nil {
		return err
	}
	if err := resp.Check(op); err != nil {
		return err
	}
	obj, err := resp.Object(op)
	if err != nil {
		return err
	}
	r.setRepresentation(obj)
	return nil
}

// Delete removes the remote resource.
func (r *Resource) Delete(ctx context.Context) error {
	resp, err := r.transport.Delete(ctx, r.endpoint)
	if err != nil {
		return err
	}
	return resp.Check("delete")
}

// Collection is a resource whose children are created by POST and listed by GET.
type Collection struct {
	*Resource
}

// NewCollection binds a collection named name under parent.
func NewCollection(t *Transport, parent, name string) *Collection {
	return &Collection{Resource: NewResource(t, parent, name, nil)}
}

// Create encodes params, POSTs them and returns the created child. The child
// endpoint is the "url" field of the answer resolved against the collection.
func (c *Collection) Create(ctx context.Context, params Parameters) (*Resource, error) {
	body, err := Encode(params)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Post(ctx, c.endpoint, body)
	if err != nil {
		return nil, err
	}
	return c.child(resp)
}

// CreateAsync is Create on the worker pool. callback receives the child or
// the error, exactly once, on a pool worker. Only encoding and shutdown
// failures are returned directly.
func (c *Collection) CreateAsync(ctx context.Context, params Parameters, callback func(*Resource, error)) error {
	body, err := Encode(params)
	if err != nil {
		return err
	}
	if callback == nil {
		callback = func(*Resource, error) {}
	}

	f := c.transport.Go(ctx, http.MethodPost, c.endpoint, body)
	if f.completedWith(ErrClosed) {
		_, err := f.Result()
		return err
	}
	f.AddDoneCallback(func(f *Future) {
		resp, err := f.Result()
		if err != nil {
			callback(nil, err)
			return
		}
		callback(c.child(resp))
	})
	return nil
}

// List GETs the collection with filters as query parameters and returns the
// decoded body.
func (c *Collection) List(ctx context.Context, filters url.Values) (map[string]any, error) {
	const op = "list"
	resp, err := c.transport.Get(ctx, c.endpoint, filters)
	if err != nil {
		return nil, err
	}
	if err := resp.Check(op); err != nil {
		return nil, err
	}
	return resp.Object(op)
}

func (c *Collection) child(resp *Response) (*Resource, error) {
	const op = "create"
	if err := resp.Check(op); err != nil {
		return nil, err
	}
	obj, err := resp.Object(op)
	if err != nil {
		return nil, err
	}
	name, ok := obj["url"].(string)
	if !ok || name == "" {
		return nil, protocolError(op, "answer has no url field")
	}
	logger := xlog.WithComponent("collection")
	logger.Debug().Str(xlog.FieldEndpoint, c.endpoint).Int(xlog.FieldStatus, resp.StatusCode).Msg("child created")
	return NewResource(c.transport, c.endpoint, name, obj), nil
}

// Job status codes.
const (
	Created  = http.StatusCreated  // computed synchronously, the result is final
	Accepted = http.StatusAccepted // queued, Fetch later for the result
)

// Job is one submitted compute task. Its representation is its result.
type Job struct {
	*Resource
}

// Result aliases Representation.
func (j *Job) Result() map[string]any {
	return j.Representation()
}
