// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the client settings: credentials, trust policy, the
// default gate and the ambient knobs of the transport, cache and telemetry.
package config

import "time"

// Defaults applied before any file or environment value.
const (
	DefaultTimeout      = 60 * time.Second
	DefaultWorkers      = 10
	DefaultQueueSize    = 4096
	DefaultLogLevel     = "info"
	DefaultBlobCache    = "none"
	DefaultBlobCacheTTL = 10 * time.Minute
	DefaultExporter     = "grpc"
	DefaultSamplingRate = 1.0
)

// AppConfig is the effective configuration.
type AppConfig struct {
	ClientID    string
	AccessToken string
	CAPath      string
	DefaultRoot string
	Insecure    bool
	Timeout     time.Duration
	Workers     int
	QueueSize   int
	RateLimit   float64 // requests per second, 0 disables limiting
	RateBurst   int
	LogLevel    string
	BlobCache   BlobCacheConfig
	Telemetry   TelemetryConfig

	// Path is the file the configuration was read from, empty when none.
	Path string
}

// BlobCacheConfig selects where composite calls remember uploaded blobs.
type BlobCacheConfig struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// Defaults returns the configuration used when nothing is configured.
func Defaults() AppConfig {
	return AppConfig{
		Timeout:   DefaultTimeout,
		Workers:   DefaultWorkers,
		QueueSize: DefaultQueueSize,
		LogLevel:  DefaultLogLevel,
		BlobCache: BlobCacheConfig{
			Backend: DefaultBlobCache,
			TTL:     DefaultBlobCacheTTL,
		},
		Telemetry: TelemetryConfig{
			Exporter:     DefaultExporter,
			SamplingRate: DefaultSamplingRate,
		},
	}
}

// FileConfig is the on-disk layout. Unset fields keep the lower-precedence value.
type FileConfig struct {
	ClientID    string         `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	AccessToken string         `yaml:"access_token,omitempty" json:"access_token,omitempty"`
	CAPath      string         `yaml:"ca_path,omitempty" json:"ca_path,omitempty"`
	DefaultRoot string         `yaml:"default_root,omitempty" json:"default_root,omitempty"`
	Insecure    *bool          `yaml:"insecure,omitempty" json:"insecure,omitempty"`
	Timeout     string         `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Workers     *int           `yaml:"workers,omitempty" json:"workers,omitempty"`
	QueueSize   *int           `yaml:"queue_size,omitempty" json:"queue_size,omitempty"`
	RateLimit   *float64       `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	RateBurst   *int           `yaml:"rate_burst,omitempty" json:"rate_burst,omitempty"`
	LogLevel    string         `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	BlobCache   *BlobCacheFile `yaml:"blob_cache,omitempty" json:"blob_cache,omitempty"`
	Telemetry   *TelemetryFile `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
}

// BlobCacheFile is the blob_cache section.
type BlobCacheFile struct {
	Backend       string `yaml:"backend,omitempty" json:"backend,omitempty"`
	TTL           string `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	RedisAddr     string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty" json:"redis_password,omitempty"`
	RedisDB       *int   `yaml:"redis_db,omitempty" json:"redis_db,omitempty"`
}

// TelemetryFile is the telemetry section.
type TelemetryFile struct {
	Enabled      *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty" json:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`
}
