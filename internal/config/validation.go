// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/angus/internal/validate"
)

var (
	blobBackends = []string{"none", "memory", "redis"}
	exporters    = []string{"grpc", "http"}
)

// Validate checks cross-field consistency of cfg.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Together(map[string]string{"client_id": cfg.ClientID, "access_token": cfg.AccessToken})
	v.Exclusive("ca_path", cfg.CAPath != "", cfg.Insecure, "ca_path and insecure are mutually exclusive")
	v.File("ca_path", cfg.CAPath)
	v.URL("default_root", cfg.DefaultRoot, []string{"http", "https"}, false)

	v.NonNegative("timeout", cfg.Timeout.Seconds())
	v.Positive("workers", cfg.Workers)
	v.Positive("queue_size", cfg.QueueSize)
	v.NonNegative("rate_limit", cfg.RateLimit)
	v.NonNegative("rate_burst", float64(cfg.RateBurst))

	if !validate.LogLevel(cfg.LogLevel).IsValid() {
		v.AddError("log_level", "invalid log level (must be: trace, debug, info, warn, error)", cfg.LogLevel)
	}

	v.OneOf("blob_cache.backend", cfg.BlobCache.Backend, blobBackends)
	if cfg.BlobCache.Backend == "redis" && cfg.BlobCache.RedisAddr == "" {
		v.AddError("blob_cache.redis_addr", "required by the redis backend", "")
	}
	v.Range("blob_cache.redis_db", cfg.BlobCache.RedisDB, 0, 15)
	v.NonNegative("blob_cache.ttl", cfg.BlobCache.TTL.Seconds())

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, exporters)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("telemetry.sampling_rate", "must be between 0 and 1", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}
