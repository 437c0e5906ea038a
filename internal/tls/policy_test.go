// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tls

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfig_SystemDefaults(t *testing.T) {
	cfg, err := ClientConfig(Policy{})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestClientConfig_Insecure(t *testing.T) {
	cfg, err := ClientConfig(Policy{Insecure: true})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.InsecureSkipVerify)
}

func TestClientConfig_Conflict(t *testing.T) {
	_, err := ClientConfig(Policy{CAPath: "/tmp/ca.pem", Insecure: true})
	assert.ErrorIs(t, err, ErrConflictingPolicy)
}

func TestClientConfig_MissingFile(t *testing.T) {
	_, err := ClientConfig(Policy{CAPath: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)
}

func TestClientConfig_NotPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))
	_, err := ClientConfig(Policy{CAPath: path})
	assert.Error(t, err)
}

func TestClientConfig_CABundleTrustsServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "ca.pem")
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, block, 0o600))

	cfg, err := ClientConfig(Policy{CAPath: path})
	require.NoError(t, err)
	require.NotNil(t, cfg)

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: cfg}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
