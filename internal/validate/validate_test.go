// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		required bool
		wantErr  bool
	}{
		{"https", "https://gate.angus.ai", true, false},
		{"with path", "http://localhost:8080/api", true, false},
		{"empty optional", "", false, false},
		{"empty required", "", true, true},
		{"no host", "https://", true, true},
		{"bad scheme", "ftp://gate.angus.ai", true, true},
		{"no scheme", "gate.angus.ai", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("root", tt.value, []string{"http", "https"}, tt.required)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "errors: %v", v.Err())
		})
	}
}

func TestValidator_File(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(file, []byte("pem"), 0o600))

	v := New()
	v.File("ca_path", "")
	v.File("ca_path", file)
	assert.True(t, v.IsValid())

	v.File("ca_path", dir)
	v.File("ca_path", filepath.Join(dir, "missing.pem"))
	var verr ValidationError
	require.True(t, errors.As(v.Err(), &verr))
	assert.Len(t, verr.Errors(), 2)
}

func TestValidator_TogetherAndExclusive(t *testing.T) {
	v := New()
	v.Together(map[string]string{"client_id": "", "access_token": ""})
	v.Together(map[string]string{"client_id": "id", "access_token": "tok"})
	v.Exclusive("insecure", true, false, "never")
	assert.True(t, v.IsValid())

	v.Together(map[string]string{"client_id": "id", "access_token": " "})
	v.Exclusive("insecure", true, true, "ca_path and insecure are exclusive")
	err := v.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token+client_id")
	assert.Contains(t, err.Error(), "exclusive")
}

func TestValidator_ErrCopiesFailures(t *testing.T) {
	v := New()
	v.Positive("workers", 0)
	err := v.Err()
	v.Range("rate_burst", -1, 0, 10)
	v.OneOf("exporter", "zipkin", []string{"grpc", "http"})
	v.NonNegative("timeout", -1)

	var first ValidationError
	require.True(t, errors.As(err, &first))
	assert.Len(t, first.Errors(), 1)
	assert.Len(t, v.Err().(ValidationError).Errors(), 4)
}

func TestLogLevel(t *testing.T) {
	assert.True(t, LogLevel("debug").IsValid())
	assert.True(t, LogLevelTrace.IsValid())
	assert.False(t, LogLevel("verbose").IsValid())
}
