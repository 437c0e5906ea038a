// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xlog "github.com/ManuGH/angus/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestTransport(t *testing.T, opts Options) *Transport {
	t.Helper()
	tr, err := NewTransport(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTransport_CredentialAndHeaders(t *testing.T) {
	var gotUser, gotPass, gotAgent, gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, _ := r.BasicAuth()
		gotUser.Store(u)
		gotPass.Store(p)
		gotAgent.Store(r.UserAgent())
		gotQuery.Store(r.URL.RawQuery)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := newTestTransport(t, Options{ClientID: "client", AccessToken: "token", UserAgent: "probe/1"})
	resp, err := tr.Get(context.Background(), srv.URL+"/x?a=1", url.Values{"name": {"face"}})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "client", gotUser.Load())
	assert.Equal(t, "token", gotPass.Load())
	assert.Equal(t, "probe/1", gotAgent.Load())
	assert.Equal(t, "a=1&name=face", gotQuery.Load())

	tr.SetCredential("rotated", "secret")
	_, err = tr.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "rotated", gotUser.Load())
}

func TestTransport_RequestID(t *testing.T) {
	var ids []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get(HeaderRequestID))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := newTestTransport(t, Options{})
	_, err := tr.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	_, err = tr.Get(xlog.ContextWithRequestID(context.Background(), "req-42"), srv.URL, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ids, 2)
	assert.Len(t, ids[0], 36)
	assert.Equal(t, "req-42", ids[1])
}

func TestTransport_StatusIsNotATransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"busy"}`))
	}))
	defer srv.Close()

	tr := newTestTransport(t, Options{})
	resp, err := tr.Post(context.Background(), srv.URL, &Body{ContentType: contentTypeJSON, Data: []byte(`{}`)})
	require.NoError(t, err)
	assert.False(t, resp.OK())

	err = resp.Check("create")
	require.ErrorIs(t, err, ErrHTTPStatus)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusConflict, e.Status)
	assert.Equal(t, "busy", e.Payload["error"])
	assert.True(t, IsStatus(err, http.StatusConflict))
}

func TestTransport_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	tr := newTestTransport(t, Options{})
	_, err := tr.Get(context.Background(), addr, nil)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestTransport_DefaultTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := newTestTransport(t, Options{Timeout: 50 * time.Millisecond, HTTPClient: &http.Client{}})
	start := time.Now()
	_, err := tr.Get(context.Background(), srv.URL, nil)
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFuture_CallbackRunsOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tr := newTestTransport(t, Options{Workers: 2})
	f := tr.Go(context.Background(), http.MethodPost, srv.URL, nil)

	var calls atomic.Int32
	done := make(chan struct{})
	f.AddDoneCallback(func(f *Future) {
		calls.Add(1)
		close(done)
	})
	<-done

	resp, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Registered after completion: runs immediately.
	f.AddDoneCallback(func(*Future) { calls.Add(1) })
	assert.Equal(t, int32(2), calls.Load())
}

func TestPool_QueueWarningIsAdvisory(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	var depths []int

	p := newPool(1, 16, func(depth, workers int) {
		mu.Lock()
		depths = append(depths, depth)
		mu.Unlock()
		assert.Equal(t, 1, workers)
	})
	p.Start()

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(func() {
			<-block
			ran.Add(1)
		}))
	}
	close(block)
	p.Stop()

	assert.Equal(t, int32(5), ran.Load())
	assert.Zero(t, p.Depth())
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, depths, "submitting past the worker count must warn")
	for _, d := range depths {
		assert.Greater(t, d, 1)
	}
}

func TestTransport_GoAfterClose(t *testing.T) {
	tr, err := NewTransport(Options{})
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	_, err = tr.Go(context.Background(), http.MethodGet, "http://127.0.0.1:1", nil).Result()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTransport_CloseLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr, err := NewTransport(Options{Workers: 4})
	require.NoError(t, err)
	futures := make([]*Future, 0, 8)
	for i := 0; i < 8; i++ {
		futures = append(futures, tr.Go(context.Background(), http.MethodGet, srv.URL, nil))
	}
	for _, f := range futures {
		_, err := f.Result()
		require.NoError(t, err)
	}
	require.NoError(t, tr.Close())
}

func TestTransport_CloseDropsKeepAliveConnections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	before := goleak.IgnoreCurrent()

	tr, err := NewTransport(Options{})
	require.NoError(t, err)
	resp, err := tr.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.NoError(t, tr.Close())

	goleak.VerifyNone(t, before)
}

func TestJoinEndpoint(t *testing.T) {
	tests := []struct {
		parent, name, want string
	}{
		{"https://gate.angus.ai", "services", "https://gate.angus.ai/services"},
		{"https://gate.angus.ai/", "blobs", "https://gate.angus.ai/blobs"},
		{"https://gate.angus.ai/services", "/services/face/1", "https://gate.angus.ai/services/face/1"},
		{"https://gate.angus.ai/services/face/1", "jobs", "https://gate.angus.ai/services/face/1/jobs"},
		{"https://gate.angus.ai/blobs", "https://other/blobs/9", "https://other/blobs/9"},
		{"memory:///", "composite", "memory:///composite"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinEndpoint(tt.parent, tt.name), "%s + %s", tt.parent, tt.name)
	}
}
