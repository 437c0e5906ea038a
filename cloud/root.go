// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cloud exposes the entry points of a gate: the blob store, the
// service directory and composite services spanning several services.
package cloud

import (
	"context"
	"strings"
	"time"

	"github.com/ManuGH/angus/internal/cache"
	"github.com/ManuGH/angus/rest"
)

const defaultBlobTTL = 10 * time.Minute

// BlobCache remembers the endpoint of uploaded payloads by digest.
type BlobCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, endpoint string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// Option tunes a Root.
type Option func(*Root)

// WithBlobCache lets composite calls reuse blobs uploaded within ttl.
func WithBlobCache(c BlobCache, ttl time.Duration) Option {
	return func(r *Root) {
		r.cache = c
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// Root is the top resource of a gate.
type Root struct {
	*rest.Resource

	Blobs    *BlobDirectory
	Services *ServiceDirectory

	cache    BlobCache
	cacheTTL time.Duration
}

// NewRoot binds the gate at rootURL. An empty URL fails with rest.ErrMissingRoot.
func NewRoot(rootURL string, t *rest.Transport, opts ...Option) (*Root, error) {
	rootURL = strings.TrimSpace(rootURL)
	if rootURL == "" {
		return nil, &rest.Error{Sentinel: rest.ErrMissingRoot, Operation: "connect"}
	}
	r := &Root{
		Resource: rest.NewResource(t, "", rootURL, nil),
		cacheTTL: defaultBlobTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Blobs = &BlobDirectory{Collection: rest.NewCollection(t, r.Endpoint(), "blobs")}
	r.Services = &ServiceDirectory{
		Collection: rest.NewCollection(t, r.Endpoint(), "services"),
		root:       r,
	}
	return r, nil
}

// BlobDirectory stores binary payloads that later calls reference by URL.
type BlobDirectory struct {
	*rest.Collection
}

// Create uploads payload and returns the blob resource.
func (b *BlobDirectory) Create(ctx context.Context, payload *rest.Attachment) (*rest.Resource, error) {
	return b.Collection.Create(ctx, rest.Parameters{"content": payload})
}

// DeleteBlob deletes the blob at endpoint, an absolute URL or a name under
// the blob directory, and forgets it in the blob cache. The cache entry is
// dropped even when the gate refuses the deletion.
func (r *Root) DeleteBlob(ctx context.Context, endpoint string) error {
	blob := rest.NewResource(r.Transport(), r.Blobs.Endpoint(), endpoint, nil)
	err := blob.Delete(ctx)
	r.forgetBlob(ctx, blob.Endpoint())
	return err
}

func (r *Root) rememberBlob(ctx context.Context, key, endpoint string) {
	if r.cache == nil {
		return
	}
	r.cache.Set(ctx, key, endpoint, r.cacheTTL)
	r.cache.Set(ctx, cache.RefKey(endpoint), key, r.cacheTTL)
}

func (r *Root) forgetBlob(ctx context.Context, endpoint string) {
	if r.cache == nil {
		return
	}
	ref := cache.RefKey(endpoint)
	if key, ok := r.cache.Get(ctx, ref); ok {
		r.cache.Delete(ctx, key)
	}
	r.cache.Delete(ctx, ref)
}
