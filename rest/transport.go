// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	xlog "github.com/ManuGH/angus/internal/log"
	"github.com/ManuGH/angus/internal/metrics"
	"github.com/ManuGH/angus/internal/platform/httpx"
	angustls "github.com/ManuGH/angus/internal/tls"
	"github.com/ManuGH/angus/internal/version"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// HeaderRequestID carries the id of each request, also logged as request_id.
const HeaderRequestID = "X-Request-ID"

const (
	defaultWorkers   = 10
	defaultQueueSize = 4096
	maxResponseBody  = 64 << 20
)

// Options configures a Transport.
type Options struct {
	ClientID    string
	AccessToken string

	// CAPath trusts the PEM bundle at this path instead of the system roots.
	CAPath string
	// Insecure disables certificate verification.
	Insecure bool

	// Timeout is the default deadline of buffered requests whose context has none.
	// For streams it bounds the wait for response headers.
	Timeout time.Duration

	Workers   int // non-blocking workers, default 10
	QueueSize int // hard cap of queued non-blocking requests, default 4096

	RateLimit rate.Limit // requests per second, zero disables limiting
	RateBurst int

	UserAgent string

	// QueueWarning runs when a request is queued while more requests than
	// workers are already waiting. It never blocks submission.
	QueueWarning func(depth, workers int)

	// HTTPClient replaces the default client (TLS options are then ignored).
	HTTPClient *http.Client
}

type credential struct {
	id, secret string
}

// Transport issues every HTTP request of the SDK. It is shared by all
// resources reachable from one root and is safe for concurrent use.
type Transport struct {
	client    *http.Client
	base      *http.Transport // nil when the caller supplied the client
	cred      atomic.Pointer[credential]
	timeout   time.Duration
	limiter   *rate.Limiter
	userAgent string
	pool      *pool
	logger    zerolog.Logger
}

// NewTransport builds a Transport and starts its worker pool.
func NewTransport(opts Options) (*Transport, error) {
	opts = normalizeOptions(opts)

	client := opts.HTTPClient
	var base *http.Transport
	if client == nil {
		tlsConfig, err := angustls.ClientConfig(angustls.Policy{CAPath: opts.CAPath, Insecure: opts.Insecure})
		if err != nil {
			return nil, err
		}
		base = httpx.NewTransport(httpx.Options{
			TLSConfig:             tlsConfig,
			ResponseHeaderTimeout: opts.Timeout,
		})
		client = httpx.NewClient(otelhttp.NewTransport(base))
	}

	t := &Transport{
		client:    client,
		base:      base,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		logger:    xlog.WithComponent("transport"),
	}
	if opts.RateLimit > 0 {
		t.limiter = rate.NewLimiter(opts.RateLimit, opts.RateBurst)
	}
	t.SetCredential(opts.ClientID, opts.AccessToken)

	warn := opts.QueueWarning
	if warn == nil {
		warn = t.defaultQueueWarning
	}
	t.pool = newPool(opts.Workers, opts.QueueSize, warn)
	t.pool.Start()

	t.logger.Debug().
		Int(xlog.FieldWorkers, opts.Workers).
		Dur("timeout", opts.Timeout).
		Bool("credential", opts.ClientID != "").
		Msg("transport ready")
	return t, nil
}

func normalizeOptions(opts Options) Options {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.RateLimit > 0 && opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	if opts.Timeout < 0 {
		opts.Timeout = 0
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = version.UserAgent()
	}
	return opts
}

func (t *Transport) defaultQueueWarning(depth, workers int) {
	metrics.RecordQueueWarning()
	t.logger.Warn().
		Int(xlog.FieldQueueDepth, depth).
		Int(xlog.FieldWorkers, workers).
		Msg("requests are queued faster than they are consumed")
}

// SetCredential replaces the basic-auth credential used by later requests.
// An empty id removes authentication.
func (t *Transport) SetCredential(id, secret string) {
	if id == "" && secret == "" {
		t.cred.Store(nil)
		return
	}
	t.cred.Store(&credential{id: id, secret: secret})
}

// QueueDepth returns the number of non-blocking requests waiting for a worker.
func (t *Transport) QueueDepth() int {
	return t.pool.Depth()
}

// Workers returns the size of the worker pool.
func (t *Transport) Workers() int {
	return t.pool.workers
}

// Close stops accepting non-blocking requests, waits for queued ones to
// finish and drops idle connections.
func (t *Transport) Close() error {
	t.pool.Stop()
	// otelhttp.Transport does not forward CloseIdleConnections.
	if t.base != nil {
		t.base.CloseIdleConnections()
	} else {
		t.client.CloseIdleConnections()
	}
	return nil
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrProtocol, err)
	}
	return nil
}

// Object decodes the body as a JSON object.
func (r *Response) Object(op string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(r.Body, &out); err != nil {
		return nil, &Error{Sentinel: ErrProtocol, Operation: op, Status: r.StatusCode, Err: err}
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Check returns a typed ErrHTTPStatus error for non-2xx responses.
func (r *Response) Check(op string) error {
	if r.OK() {
		return nil
	}
	e := &Error{Sentinel: ErrHTTPStatus, Operation: op, Status: r.StatusCode}
	body := strings.TrimSpace(string(r.Body))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	e.Body = body
	var payload map[string]any
	if json.Unmarshal(r.Body, &payload) == nil {
		e.Payload = payload
	}
	return e
}

// Get issues a blocking GET with optional query parameters.
func (t *Transport) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	u, err := withQuery(rawURL, params)
	if err != nil {
		return nil, err
	}
	return t.Send(ctx, http.MethodGet, u, nil)
}

// Post issues a blocking POST.
func (t *Transport) Post(ctx context.Context, rawURL string, body *Body) (*Response, error) {
	return t.Send(ctx, http.MethodPost, rawURL, body)
}

// Delete issues a blocking DELETE.
func (t *Transport) Delete(ctx context.Context, rawURL string) (*Response, error) {
	return t.Send(ctx, http.MethodDelete, rawURL, nil)
}

// Send issues one buffered request and returns the response whatever its
// status. Only transport failures are errors.
func (t *Transport) Send(ctx context.Context, method, rawURL string, body *Body) (*Response, error) {
	return t.send(ctx, method, rawURL, body, "blocking")
}

// Go issues the request on the worker pool and returns immediately.
func (t *Transport) Go(ctx context.Context, method, rawURL string, body *Body) *Future {
	f := newFuture()
	err := t.pool.Submit(func() {
		f.complete(t.send(ctx, method, rawURL, body, "future"))
	})
	if err != nil {
		f.complete(nil, &Error{Sentinel: ErrClosed, Operation: method + " " + redact(rawURL), Err: err})
	}
	return f
}

// Open starts a request whose body and response are streamed. The caller
// closes the response body. Non-2xx responses are returned as they are.
func (t *Transport) Open(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*http.Response, error) {
	op := method + " " + redact(rawURL)
	if err := t.wait(ctx); err != nil {
		return nil, &Error{Sentinel: ErrTransport, Operation: op, Err: err}
	}
	ctx = withRequestID(ctx)
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &Error{Sentinel: ErrTransport, Operation: op, Err: err}
	}
	t.applyHeaders(ctx, req)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	metrics.RecordRequest(method, "stream", status, time.Since(start), err)
	if err != nil {
		return nil, &Error{Sentinel: ErrTransport, Operation: op, Err: err}
	}
	return resp, nil
}

func (t *Transport) send(ctx context.Context, method, rawURL string, body *Body, mode string) (*Response, error) {
	op := method + " " + redact(rawURL)
	if t.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.timeout)
			defer cancel()
		}
	}
	if err := t.wait(ctx); err != nil {
		return nil, &Error{Sentinel: ErrTransport, Operation: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body.Data)
	}
	ctx = withRequestID(ctx)
	logger := xlog.WithContext(ctx, t.logger)
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &Error{Sentinel: ErrTransport, Operation: op, Err: err}
	}
	t.applyHeaders(ctx, req)
	if body != nil {
		req.Header.Set("Content-Type", body.ContentType)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		metrics.RecordRequest(method, mode, 0, time.Since(start), err)
		logger.Debug().Err(err).Str(xlog.FieldMethod, method).Str(xlog.FieldEndpoint, redact(rawURL)).Msg("request failed")
		return nil, &Error{Sentinel: ErrTransport, Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	duration := time.Since(start)
	metrics.RecordRequest(method, mode, resp.StatusCode, duration, err)
	if err != nil {
		return nil, &Error{Sentinel: ErrTransport, Operation: op, Status: resp.StatusCode, Err: err}
	}

	logger.Debug().
		Str(xlog.FieldMethod, method).
		Str(xlog.FieldEndpoint, redact(rawURL)).
		Int(xlog.FieldStatus, resp.StatusCode).
		Dur("duration", duration).
		Msg("request done")

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (t *Transport) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

// withRequestID gives ctx a request id unless the caller already set one.
func withRequestID(ctx context.Context) context.Context {
	if xlog.RequestIDFromContext(ctx) != "" {
		return ctx
	}
	return xlog.ContextWithRequestID(ctx, uuid.NewString())
}

func (t *Transport) applyHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", contentTypeJSON)
	if rid := xlog.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set(HeaderRequestID, rid)
	}
	if c := t.cred.Load(); c != nil {
		req.SetBasicAuth(c.id, c.secret)
	}
}

func withQuery(rawURL string, params url.Values) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &Error{Sentinel: ErrTransport, Operation: "GET " + rawURL, Err: err}
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact strips userinfo from a URL before it reaches logs or errors.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	return u.Redacted()
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}
