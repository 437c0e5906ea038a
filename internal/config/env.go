// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment variables read by the loader.
const (
	EnvClientID         = "ANGUS_CLIENT_ID"
	EnvAccessToken      = "ANGUS_ACCESS_TOKEN"
	EnvCAPath           = "ANGUS_CA_PATH"
	EnvRoot             = "ANGUS_ROOT"
	EnvInsecure         = "ANGUS_INSECURE"
	EnvTimeout          = "ANGUS_TIMEOUT"
	EnvWorkers          = "ANGUS_WORKERS"
	EnvQueueSize        = "ANGUS_QUEUE_SIZE"
	EnvRateLimit        = "ANGUS_RATE_LIMIT"
	EnvRateBurst        = "ANGUS_RATE_BURST"
	EnvLogLevel         = "ANGUS_LOG_LEVEL"
	EnvBlobCache        = "ANGUS_BLOB_CACHE"
	EnvBlobCacheTTL     = "ANGUS_BLOB_CACHE_TTL"
	EnvRedisAddr        = "ANGUS_REDIS_ADDR"
	EnvRedisPassword    = "ANGUS_REDIS_PASSWORD"
	EnvTelemetryEnabled = "ANGUS_TELEMETRY_ENABLED"
	EnvOTLPExporter     = "ANGUS_OTLP_EXPORTER"
	EnvOTLPEndpoint     = "ANGUS_OTLP_ENDPOINT"
)

// env reads variables and logs where each value came from. Secrets are only
// reported as set.
type env struct {
	logger zerolog.Logger
	lookup func(string) (string, bool)
}

func newEnv(logger zerolog.Logger) env {
	return env{logger: logger, lookup: os.LookupEnv}
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password")
}

func (e env) value(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	ev := e.logger.Debug().Str("key", key).Str("source", "environment")
	if sensitive(key) {
		ev.Bool("sensitive", true).Msg("using environment variable")
	} else {
		ev.Str("value", v).Msg("using environment variable")
	}
	return v, true
}

func (e env) invalid(key, value string, err error) {
	e.logger.Warn().Err(err).Str("key", key).Str("value", value).Msg("ignoring invalid environment variable")
}

func (e env) str(key string, dst *string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e env) boolean(key string, dst *bool) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.invalid(key, v, err)
		return
	}
	*dst = b
}

func (e env) integer(key string, dst *int) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.invalid(key, v, err)
		return
	}
	*dst = i
}

func (e env) float(key string, dst *float64) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.invalid(key, v, err)
		return
	}
	*dst = f
}

func (e env) duration(key string, dst *time.Duration) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	d, err := parseDuration(v)
	if err != nil {
		e.invalid(key, v, err)
		return
	}
	*dst = d
}

// parseDuration accepts Go durations ("30s") and bare seconds ("30", "2.5").
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}
