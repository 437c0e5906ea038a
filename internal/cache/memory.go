// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	endpoint   string
	expiration time.Time
}

func (e entry) expired(now time.Time) bool {
	return now.After(e.expiration)
}

// Memory is an in-process Cache with a background janitor.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemory returns an in-memory cache. Expired entries are swept every
// cleanupInterval; zero disables the janitor.
func NewMemory(cleanupInterval time.Duration) *Memory {
	c := &Memory{entries: make(map[string]entry)}
	if cleanupInterval > 0 {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *Memory) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return "", false
	}
	return e.endpoint, true
}

func (c *Memory) Set(_ context.Context, key, endpoint string, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{endpoint: endpoint, expiration: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *Memory) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Close stops the janitor.
func (c *Memory) Close() error {
	if c.stop == nil {
		return nil
	}
	c.stopOnce.Do(func() {
		close(c.stop)
		<-c.done
	})
	return nil
}

func (c *Memory) deleteExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
}

func (c *Memory) janitor(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}
