// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpx

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

const (
	defaultDialTimeout           = 10 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 64
	defaultMaxIdleConnsPerHost   = 16
)

// Options tunes the round-tripper used by the SDK transport.
type Options struct {
	// TLSConfig carries the trust policy. Nil means system roots.
	TLSConfig *tls.Config
	// ResponseHeaderTimeout bounds the wait for response headers. Zero disables it.
	ResponseHeaderTimeout time.Duration
	// MaxConnsPerHost caps concurrent connections per host. Zero means unlimited.
	MaxConnsPerHost int
}

// NewTransport returns a hardened round-tripper for gate traffic.
func NewTransport(opts Options) *http.Transport {
	dialTimeout := defaultDialTimeout
	if opts.ResponseHeaderTimeout > 0 && opts.ResponseHeaderTimeout < dialTimeout {
		dialTimeout = opts.ResponseHeaderTimeout
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       opts.TLSConfig,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
}

// NewClient wraps rt in an http.Client without a global timeout.
// Deadlines are carried by request contexts so streamed bodies are not cut off.
func NewClient(rt http.RoundTripper) *http.Client {
	if rt == nil {
		rt = NewTransport(Options{})
	}
	return &http.Client{Transport: rt}
}
