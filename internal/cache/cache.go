// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache remembers blob endpoints by payload digest, so a payload
// already uploaded to the gate can be sent as a reference instead.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const (
	keyPrefix = "angus:blob:"
	refPrefix = "angus:blobref:"
)

// Cache maps payload digests to blob endpoints.
type Cache interface {
	// Get returns the endpoint stored under key.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores endpoint under key for ttl.
	Set(ctx context.Context, key, endpoint string, ttl time.Duration)
	// Delete forgets key.
	Delete(ctx context.Context, key string)
	// Close releases background resources.
	Close() error
}

// Key derives the cache key of a payload.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return keyPrefix + hex.EncodeToString(sum[:])
}

// RefKey is the key under which the payload key of a blob endpoint is kept,
// so deleting the blob can evict its entry.
func RefKey(endpoint string) string {
	return refPrefix + endpoint
}

// Config selects and tunes a backend.
type Config struct {
	Backend string
	Redis   RedisConfig
}

// New builds the configured backend. An empty backend means none.
func New(cfg Config, logger zerolog.Logger) (Cache, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return NewNoop(), nil
	case BackendMemory:
		return NewMemory(time.Minute), nil
	case BackendRedis:
		return NewRedis(cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown blob cache backend %q (supported: none, memory, redis)", cfg.Backend)
	}
}

type noop struct{}

// NewNoop returns a cache that stores nothing.
func NewNoop() Cache { return noop{} }

func (noop) Get(context.Context, string) (string, bool)         { return "", false }
func (noop) Set(context.Context, string, string, time.Duration) {}
func (noop) Delete(context.Context, string)                     {}
func (noop) Close() error                                       { return nil }
