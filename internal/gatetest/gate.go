// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gatetest provides an in-process fake of the compute gate for tests.
package gatetest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ManuGH/angus/internal/mixedreplace"
)

// JobRequest is one job as the gate decoded it.
type JobRequest struct {
	Service     string
	Version     int
	ContentType string
	Multipart   bool
	HasMeta     bool
	Params      map[string]any
	Attachments map[string][]byte
}

// Handler computes the answer of a service. A status >= 400 is sent as is.
type Handler func(req JobRequest) (status int, result map[string]any)

// Echo answers with the received parameter names and attachment sizes.
func Echo(name string) Handler {
	return func(req JobRequest) (int, map[string]any) {
		keys := make([]string, 0, len(req.Params))
		for k := range req.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sizes := map[string]any{}
		for k, v := range req.Attachments {
			sizes[k] = len(v)
		}
		return http.StatusOK, map[string]any{"service": name, "keys": keys, "attachments": sizes}
	}
}

// Fail answers every job with status.
func Fail(status int) Handler {
	return func(JobRequest) (int, map[string]any) {
		return status, map[string]any{"error": http.StatusText(status)}
	}
}

type service struct {
	handler     Handler
	description map[string]any
}

type stream struct {
	results chan []byte
	once    sync.Once
	frames  int
}

func (s *stream) finish() { s.once.Do(func() { close(s.results) }) }

// Gate is a fake gate served by httptest.
type Gate struct {
	*httptest.Server

	mu       sync.Mutex
	services map[string]map[int]*service
	jobs     map[string]map[string]any
	blobs    map[string][]byte
	streams  map[string]*stream
	requests []JobRequest
	clientID string
	secret   string
	holdOut  bool
}

// New starts an empty gate. Close it when done.
func New() *Gate {
	g := &Gate{
		services: make(map[string]map[int]*service),
		jobs:     make(map[string]map[string]any),
		blobs:    make(map[string][]byte),
		streams:  make(map[string]*stream),
	}

	r := chi.NewRouter()
	r.Use(g.auth)
	r.Get("/services", g.handleServices)
	r.Get("/services/{name}", g.handleVersions)
	r.Get("/services/{name}/{version}/description", g.handleDescription)
	r.Post("/services/{name}/{version}/jobs", g.handleCreateJob)
	r.Get("/services/{name}/{version}/jobs/{id}", g.handleGetJob)
	r.Post("/services/{name}/{version}/streams", g.handleCreateStream)
	r.Post("/services/{name}/{version}/streams/{id}/input", g.handleStreamInput)
	r.Get("/services/{name}/{version}/streams/{id}/output", g.handleStreamOutput)
	r.Post("/blobs", g.handleCreateBlob)
	r.Get("/blobs/{id}", g.handleGetBlob)
	r.Delete("/blobs/{id}", g.handleDeleteBlob)

	g.Server = httptest.NewServer(r)
	return g
}

// AddService registers version of name answered by h.
func (g *Gate) AddService(name string, version int, h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.services[name] == nil {
		g.services[name] = make(map[int]*service)
	}
	g.services[name][version] = &service{
		handler:     h,
		description: map[string]any{"name": name, "version": version, "description": "fake " + name},
	}
}

// RequireAuth makes the gate reject requests without these credentials.
func (g *Gate) RequireAuth(clientID, secret string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clientID, g.secret = clientID, secret
}

// HoldOutput keeps stream outputs open after the closing boundary, like a
// camera feed that never ends.
func (g *Gate) HoldOutput(hold bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.holdOut = hold
}

// Requests returns the decoded jobs in arrival order.
func (g *Gate) Requests() []JobRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]JobRequest(nil), g.requests...)
}

// Blobs returns the number of stored blobs.
func (g *Gate) Blobs() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.blobs)
}

func (g *Gate) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		id, secret := g.clientID, g.secret
		g.mu.Unlock()
		if id != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != id || p != secret {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) handleServices(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("name")
	g.mu.Lock()
	listing := map[string]any{}
	for name := range g.services {
		if filter != "" && filter != name {
			continue
		}
		listing[name] = map[string]any{"url": "/services/" + name}
	}
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"services": listing})
}

func (g *Gate) handleVersions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	filter := r.URL.Query().Get("version")
	g.mu.Lock()
	versions, ok := g.services[name]
	listing := map[string]any{}
	for v := range versions {
		key := strconv.Itoa(v)
		if filter != "" && filter != key {
			continue
		}
		listing[key] = map[string]any{"url": fmt.Sprintf("/services/%s/%d", name, v)}
	}
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such service"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": listing})
}

func (g *Gate) lookup(r *http.Request) (string, int, *service) {
	name := chi.URLParam(r, "name")
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		return name, 0, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return name, version, g.services[name][version]
}

func (g *Gate) handleDescription(w http.ResponseWriter, r *http.Request) {
	_, _, svc := g.lookup(r)
	if svc == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such service"})
		return
	}
	writeJSON(w, http.StatusOK, svc.description)
}

func (g *Gate) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	name, version, svc := g.lookup(r)
	if svc == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such service"})
		return
	}
	req, err := decodeJob(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	req.Service, req.Version = name, version

	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	status, result := svc.handler(req)
	if status >= http.StatusBadRequest {
		writeJSON(w, status, result)
		return
	}

	id := uuid.NewString()
	jobURL := fmt.Sprintf("/services/%s/%d/jobs/%s", name, version, id)
	final := map[string]any{"status": http.StatusCreated, "url": jobURL}
	for k, v := range result {
		final[k] = v
	}
	g.mu.Lock()
	g.jobs[id] = final
	g.mu.Unlock()

	if async, _ := req.Params["async"].(bool); async {
		writeJSON(w, http.StatusAccepted, map[string]any{"status": http.StatusAccepted, "url": jobURL})
		return
	}
	writeJSON(w, http.StatusCreated, final)
}

func (g *Gate) handleGetJob(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	job, ok := g.jobs[chi.URLParam(r, "id")]
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such job"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (g *Gate) handleCreateBlob(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJob(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	ref, _ := req.Params["content"].(string)
	data, ok := req.Attachments[ref]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "content attachment missing"})
		return
	}
	id := uuid.NewString()
	g.mu.Lock()
	g.blobs[id] = data
	g.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"status": http.StatusCreated, "url": "/blobs/" + id})
}

func (g *Gate) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g.mu.Lock()
	data, ok := g.blobs[id]
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such blob"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": http.StatusOK, "url": "/blobs/" + id, "size": len(data)})
}

func (g *Gate) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g.mu.Lock()
	_, ok := g.blobs[id]
	delete(g.blobs, id)
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such blob"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": http.StatusOK})
}

func (g *Gate) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	name, version, svc := g.lookup(r)
	if svc == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such service"})
		return
	}
	req, err := decodeJob(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	req.Service, req.Version = name, version

	id := uuid.NewString()
	base := fmt.Sprintf("/services/%s/%d/streams/%s", name, version, id)
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.streams[id] = &stream{results: make(chan []byte, 64)}
	g.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"status": http.StatusCreated,
		"url":    base,
		"input":  base + "/input",
		"output": base + "/output",
	})
}

func (g *Gate) stream(r *http.Request) *stream {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.streams[chi.URLParam(r, "id")]
}

// handleStreamInput answers every uploaded part with one JSON result part.
func (g *Gate) handleStreamInput(w http.ResponseWriter, r *http.Request) {
	st := g.stream(r)
	if st == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such stream"})
		return
	}
	defer st.finish()

	var parser mixedreplace.Parser
	buf := make([]byte, 4096)
	for !parser.Closed() {
		n, readErr := r.Body.Read(buf)
		parser.Feed(buf[:n])
		for {
			part, ok, err := parser.Next()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			}
			if !ok {
				break
			}
			st.frames++
			result, _ := json.Marshal(map[string]any{"frame": st.frames, "size": len(part)})
			select {
			case st.results <- result:
			case <-r.Context().Done():
				return
			}
		}
		if readErr != nil {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": http.StatusOK, "frames": st.frames})
}

func (g *Gate) handleStreamOutput(w http.ResponseWriter, r *http.Request) {
	st := g.stream(r)
	if st == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such stream"})
		return
	}
	g.mu.Lock()
	hold := g.holdOut
	g.mu.Unlock()

	w.Header().Set("Content-Type", mixedreplace.ContentType)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	mw := mixedreplace.NewWriter(w)
	for {
		select {
		case result, ok := <-st.results:
			if !ok {
				if hold {
					<-r.Context().Done()
					return
				}
				_ = mw.Close()
				return
			}
			if err := mw.WritePart(mixedreplace.Part{ContentType: "application/json", Field: "result", Data: result}); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func decodeJob(r *http.Request) (JobRequest, error) {
	req := JobRequest{ContentType: r.Header.Get("Content-Type"), Attachments: map[string][]byte{}}
	mediaType, _, err := mime.ParseMediaType(req.ContentType)
	if err != nil {
		return req, fmt.Errorf("content type: %w", err)
	}

	switch {
	case mediaType == "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req.Params); err != nil {
			return req, fmt.Errorf("json body: %w", err)
		}
	case strings.HasPrefix(mediaType, "multipart/"):
		req.Multipart = true
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return req, fmt.Errorf("multipart body: %w", err)
		}
		metas := r.MultipartForm.Value["meta"]
		if len(metas) != 1 {
			return req, errors.New("multipart body needs exactly one meta field")
		}
		req.HasMeta = true
		if err := json.Unmarshal([]byte(metas[0]), &req.Params); err != nil {
			return req, fmt.Errorf("meta field: %w", err)
		}
		for name, files := range r.MultipartForm.File {
			for _, fh := range files {
				f, err := fh.Open()
				if err != nil {
					return req, err
				}
				data, err := io.ReadAll(f)
				_ = f.Close()
				if err != nil {
					return req, err
				}
				req.Attachments[name] = data
			}
		}
	default:
		return req, fmt.Errorf("unsupported content type %q", mediaType)
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
