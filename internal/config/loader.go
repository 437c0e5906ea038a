// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	xlog "github.com/ManuGH/angus/internal/log"
)

// UserDir is the per-user configuration directory, relative to the home directory.
const UserDir = ".angusdk"

// Loader resolves the configuration with precedence
// defaults < file < environment.
type Loader struct {
	configPath string
	homeDir    func() (string, error)
	env        env
	logger     zerolog.Logger
}

// NewLoader creates a loader. An empty path enables discovery, see Discover.
func NewLoader(configPath string) *Loader {
	logger := xlog.WithComponent("config")
	return &Loader{
		configPath: configPath,
		homeDir:    os.UserHomeDir,
		env:        newEnv(logger),
		logger:     logger,
	}
}

// Candidates lists the files Discover tries, in order.
func (l *Loader) Candidates() []string {
	paths := []string{"config.json", "config.yaml"}
	if home, err := l.homeDir(); err == nil && home != "" {
		paths = append(paths,
			filepath.Join(home, UserDir, "config.json"),
			filepath.Join(home, UserDir, "config.yaml"),
		)
	}
	return paths
}

// Discover returns the explicit path, or the first existing candidate, or "".
func (l *Loader) Discover() string {
	if l.configPath != "" {
		return l.configPath
	}
	for _, p := range l.Candidates() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load returns the validated configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if path := l.Discover(); path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFile(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge config file %s: %w", path, err)
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		cfg.Path = path
		l.logger.Debug().Str("path", path).Msg("configuration file loaded")
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path strictly: unknown keys and trailing documents fail.
// JSON files go through the same decoder since JSON is valid YAML.
func loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	// #nosec G304 -- path is chosen by the user or discovered in fixed locations
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return nil, fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFile(cfg *AppConfig, f *FileConfig) error {
	setString(&cfg.ClientID, f.ClientID)
	setString(&cfg.AccessToken, f.AccessToken)
	setString(&cfg.CAPath, f.CAPath)
	setString(&cfg.DefaultRoot, f.DefaultRoot)
	setString(&cfg.LogLevel, f.LogLevel)
	setPtr(&cfg.Insecure, f.Insecure)
	setPtr(&cfg.Workers, f.Workers)
	setPtr(&cfg.QueueSize, f.QueueSize)
	setPtr(&cfg.RateLimit, f.RateLimit)
	setPtr(&cfg.RateBurst, f.RateBurst)
	if f.Timeout != "" {
		d, err := parseDuration(f.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = d
	}

	if bc := f.BlobCache; bc != nil {
		setString(&cfg.BlobCache.Backend, bc.Backend)
		setString(&cfg.BlobCache.RedisAddr, bc.RedisAddr)
		setString(&cfg.BlobCache.RedisPassword, bc.RedisPassword)
		setPtr(&cfg.BlobCache.RedisDB, bc.RedisDB)
		if bc.TTL != "" {
			d, err := parseDuration(bc.TTL)
			if err != nil {
				return fmt.Errorf("blob_cache.ttl: %w", err)
			}
			cfg.BlobCache.TTL = d
		}
	}

	if tel := f.Telemetry; tel != nil {
		setPtr(&cfg.Telemetry.Enabled, tel.Enabled)
		setString(&cfg.Telemetry.Exporter, tel.Exporter)
		setString(&cfg.Telemetry.Endpoint, tel.Endpoint)
		setPtr(&cfg.Telemetry.SamplingRate, tel.SamplingRate)
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	e := l.env
	e.str(EnvClientID, &cfg.ClientID)
	e.str(EnvAccessToken, &cfg.AccessToken)
	e.str(EnvCAPath, &cfg.CAPath)
	e.str(EnvRoot, &cfg.DefaultRoot)
	e.boolean(EnvInsecure, &cfg.Insecure)
	e.duration(EnvTimeout, &cfg.Timeout)
	e.integer(EnvWorkers, &cfg.Workers)
	e.integer(EnvQueueSize, &cfg.QueueSize)
	e.float(EnvRateLimit, &cfg.RateLimit)
	e.integer(EnvRateBurst, &cfg.RateBurst)
	e.str(EnvLogLevel, &cfg.LogLevel)
	e.str(EnvBlobCache, &cfg.BlobCache.Backend)
	e.duration(EnvBlobCacheTTL, &cfg.BlobCache.TTL)
	e.str(EnvRedisAddr, &cfg.BlobCache.RedisAddr)
	e.str(EnvRedisPassword, &cfg.BlobCache.RedisPassword)
	e.boolean(EnvTelemetryEnabled, &cfg.Telemetry.Enabled)
	e.str(EnvOTLPExporter, &cfg.Telemetry.Exporter)
	e.str(EnvOTLPEndpoint, &cfg.Telemetry.Endpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
