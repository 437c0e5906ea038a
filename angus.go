// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package angus connects to an Angus gate. Connect binds an explicit URL and
// credential; ConnectDefault reads them from the user configuration.
package angus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/angus/cloud"
	"github.com/ManuGH/angus/internal/cache"
	"github.com/ManuGH/angus/internal/config"
	xlog "github.com/ManuGH/angus/internal/log"
	"github.com/ManuGH/angus/internal/telemetry"
	"github.com/ManuGH/angus/internal/version"
	"github.com/ManuGH/angus/rest"
)

// Options configures Connect. Zero values select the transport defaults.
type Options struct {
	// URL is the root of the gate, for example https://gate.angus.ai.
	URL string

	ClientID    string
	AccessToken string
	CAPath      string
	Insecure    bool
	Timeout     time.Duration

	Workers   int
	QueueSize int
	RateLimit float64
	RateBurst int

	BlobCache BlobCacheOptions
	Telemetry TelemetryOptions

	HTTPClient *http.Client
}

// BlobCacheOptions selects where composite calls remember uploaded blobs.
type BlobCacheOptions struct {
	Backend       string // none, memory or redis
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// TelemetryOptions enables OTLP trace export. When disabled the global
// tracer provider is left untouched.
type TelemetryOptions struct {
	Enabled      bool
	Exporter     string // grpc or http
	Endpoint     string
	SamplingRate float64
}

// Client is a connected gate together with the resources it owns.
type Client struct {
	*cloud.Root

	transport *rest.Transport
	closers   []func(context.Context) error
}

// Connect binds the gate at opts.URL. An empty URL fails with rest.ErrMissingRoot.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	rootURL := strings.TrimSpace(opts.URL)
	if rootURL == "" {
		return nil, &rest.Error{Sentinel: rest.ErrMissingRoot, Operation: "connect"}
	}

	c := &Client{}
	fail := func(err error) (*Client, error) {
		_ = c.Close(context.Background())
		return nil, err
	}

	if opts.Telemetry.Enabled {
		provider, err := telemetry.NewProvider(ctx, telemetry.Config{
			Enabled:        true,
			ServiceName:    "angus",
			ServiceVersion: version.Version,
			ExporterType:   opts.Telemetry.Exporter,
			Endpoint:       opts.Telemetry.Endpoint,
			SamplingRate:   opts.Telemetry.SamplingRate,
		})
		if err != nil {
			return fail(fmt.Errorf("telemetry: %w", err))
		}
		c.closers = append(c.closers, provider.Shutdown)
	}

	transport, err := rest.NewTransport(rest.Options{
		ClientID:    opts.ClientID,
		AccessToken: opts.AccessToken,
		CAPath:      opts.CAPath,
		Insecure:    opts.Insecure,
		Timeout:     opts.Timeout,
		Workers:     opts.Workers,
		QueueSize:   opts.QueueSize,
		RateLimit:   rate.Limit(opts.RateLimit),
		RateBurst:   opts.RateBurst,
		HTTPClient:  opts.HTTPClient,
	})
	if err != nil {
		return fail(fmt.Errorf("transport: %w", err))
	}
	c.transport = transport
	c.closers = append(c.closers, func(context.Context) error { return transport.Close() })

	var rootOpts []cloud.Option
	bc, err := cache.New(cache.Config{
		Backend: opts.BlobCache.Backend,
		Redis: cache.RedisConfig{
			Addr:     opts.BlobCache.RedisAddr,
			Password: opts.BlobCache.RedisPassword,
			DB:       opts.BlobCache.RedisDB,
		},
	}, xlog.WithComponent("cache"))
	if err != nil {
		return fail(fmt.Errorf("blob cache: %w", err))
	}
	c.closers = append(c.closers, func(context.Context) error { return bc.Close() })
	if b := opts.BlobCache.Backend; b != "" && b != cache.BackendNone {
		rootOpts = append(rootOpts, cloud.WithBlobCache(bc, opts.BlobCache.TTL))
	}

	root, err := cloud.NewRoot(rootURL, transport, rootOpts...)
	if err != nil {
		return fail(err)
	}
	c.Root = root

	logger := xlog.WithComponent("angus")
	logger.Debug().
		Str(xlog.FieldEndpoint, c.Endpoint()).
		Str("blob_cache", opts.BlobCache.Backend).
		Bool("telemetry", opts.Telemetry.Enabled).
		Msg("connected")
	return c, nil
}

// ConnectDefault connects with the user configuration (see LoadOptions).
// A non-empty rootURL replaces the configured default_root.
func ConnectDefault(ctx context.Context, rootURL string) (*Client, error) {
	opts, err := LoadOptions("")
	if err != nil {
		return nil, err
	}
	if rootURL != "" {
		opts.URL = rootURL
	}
	return Connect(ctx, opts)
}

// LoadOptions reads the configuration file at path, or the first of
// ./config.json, ./config.yaml, ~/.angusdk/config.json and
// ~/.angusdk/config.yaml when path is empty, then applies ANGUS_*
// environment variables.
func LoadOptions(path string) (Options, error) {
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		return Options{}, err
	}
	return optionsFromConfig(cfg), nil
}

func optionsFromConfig(cfg config.AppConfig) Options {
	return Options{
		URL:         cfg.DefaultRoot,
		ClientID:    cfg.ClientID,
		AccessToken: cfg.AccessToken,
		CAPath:      cfg.CAPath,
		Insecure:    cfg.Insecure,
		Timeout:     cfg.Timeout,
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
		BlobCache: BlobCacheOptions{
			Backend:       cfg.BlobCache.Backend,
			TTL:           cfg.BlobCache.TTL,
			RedisAddr:     cfg.BlobCache.RedisAddr,
			RedisPassword: cfg.BlobCache.RedisPassword,
			RedisDB:       cfg.BlobCache.RedisDB,
		},
		Telemetry: TelemetryOptions{
			Enabled:      cfg.Telemetry.Enabled,
			Exporter:     cfg.Telemetry.Exporter,
			Endpoint:     cfg.Telemetry.Endpoint,
			SamplingRate: cfg.Telemetry.SamplingRate,
		},
	}
}

// Transport returns the transport shared by every resource of the client.
func (c *Client) Transport() *rest.Transport {
	return c.transport
}

// SetCredential rotates the credential of later requests.
func (c *Client) SetCredential(clientID, accessToken string) {
	c.transport.SetCredential(clientID, accessToken)
}

// Close releases the transport, the blob cache and the trace exporter, in
// reverse order of creation.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	for _, closeFn := range slices.Backward(c.closers) {
		if err := closeFn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
