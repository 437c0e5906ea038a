// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/angus/internal/config"
	"github.com/ManuGH/angus/internal/gatetest"
	"github.com/ManuGH/angus/rest"
)

// setup starts a gate and writes a configuration file pointing at it.
func setup(t *testing.T) (*gatetest.Gate, string) {
	t.Helper()
	gate := gatetest.New()
	gate.AddService("face_detection", 1, gatetest.Echo("face_detection"))
	gate.AddService("age_and_gender_estimation", 1, gatetest.Echo("age_and_gender_estimation"))
	gate.RequireAuth("client", "token")
	t.Cleanup(gate.Close)

	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvClientID, "")
	t.Setenv(config.EnvAccessToken, "")
	t.Setenv(config.EnvRoot, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.Save(path, config.FileConfig{
		ClientID:    "client",
		AccessToken: "token",
		DefaultRoot: gate.URL,
	}))
	return gate, path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Commands:")

	code, _, stderr = runCLI(t, "teleport")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Unknown command: teleport")

	code, _, _ = runCLI(t, "process")
	assert.Equal(t, exitUsage, code)

	code, _, _ = runCLI(t, "process", "-param", "novalue", "face_detection")
	assert.Equal(t, exitUsage, code)
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "commit:")
}

func TestRun_Configure(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	code, _, _ := runCLI(t, "configure", "-client-id", "id")
	assert.Equal(t, exitUsage, code)

	code, stdout, _ := runCLI(t, "configure", "-client-id", "id", "-access-token", "tok", "-root", "https://gate.angus.ai")
	require.Equal(t, exitOK, code)
	path, err := config.UserPath()
	require.NoError(t, err)
	assert.Contains(t, stdout, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var fc config.FileConfig
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "id", fc.ClientID)
	assert.Equal(t, "https://gate.angus.ai", fc.DefaultRoot)
	assert.Nil(t, fc.Insecure)
}

func TestRun_ServicesAndDescribe(t *testing.T) {
	_, cfg := setup(t)

	code, stdout, stderr := runCLI(t, "-config", cfg, "services")
	require.Equal(t, exitOK, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "age_and_gender_estimation\t"))
	assert.True(t, strings.HasPrefix(lines[1], "face_detection\t"))

	code, stdout, stderr = runCLI(t, "-config", cfg, "describe", "face_detection")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, `"name": "face_detection"`)

	code, _, stderr = runCLI(t, "-config", cfg, "describe", "teleportation")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "Error:")
}

func TestRun_Process(t *testing.T) {
	gate, cfg := setup(t)
	image := filepath.Join(t.TempDir(), "face.jpg")
	require.NoError(t, os.WriteFile(image, []byte("jpeg"), 0o600))

	code, stdout, stderr := runCLI(t, "-config", cfg, "process",
		"-param", "threshold=0.5", "-param", "label=front", "-file", "image="+image, "face_detection")
	require.Equal(t, exitOK, code, stderr)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.EqualValues(t, rest.Created, result["status"])

	reqs := gate.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Multipart)
	assert.Equal(t, 0.5, reqs[0].Params["threshold"])
	assert.Equal(t, "front", reqs[0].Params["label"])

	code, stdout, stderr = runCLI(t, "-config", cfg, "process", "-async", "-wait", "face_detection")
	require.Equal(t, exitOK, code, stderr)
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.EqualValues(t, rest.Created, result["status"])
	assert.Equal(t, "face_detection", result["service"])
}

func TestRun_Composite(t *testing.T) {
	gate, cfg := setup(t)
	image := filepath.Join(t.TempDir(), "face.jpg")
	require.NoError(t, os.WriteFile(image, []byte("jpeg"), 0o600))

	code, stdout, stderr := runCLI(t, "-config", cfg, "composite",
		"-service", "face_detection:1", "-service", "age_and_gender_estimation", "-file", "image="+image)
	require.Equal(t, exitOK, code, stderr)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Len(t, result, 3)
	assert.EqualValues(t, 200, result["status"])
	assert.Equal(t, 1, gate.Blobs())

	code, _, _ = runCLI(t, "-config", cfg, "composite", "-service", "face_detection:x")
	assert.Equal(t, exitUsage, code)
}

func TestRun_Stream(t *testing.T) {
	_, cfg := setup(t)
	dir := t.TempDir()
	for i, size := range []int{10, 20, 30} {
		name := filepath.Join(dir, "frame"+string(rune('0'+i))+".jpg")
		require.NoError(t, os.WriteFile(name, bytes.Repeat([]byte{0xff}, size), 0o600))
	}

	code, stdout, stderr := runCLI(t, "-config", cfg, "stream", "-dir", dir, "face_detection")
	require.Equal(t, exitOK, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	for i, size := range []int{10, 20, 30} {
		var part map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[i]), &part))
		assert.EqualValues(t, size, part["size"])
	}

	code, _, stderr = runCLI(t, "-config", cfg, "stream", "-dir", t.TempDir(), "face_detection")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "no frames")
}

func TestRun_Blob(t *testing.T) {
	gate, cfg := setup(t)
	payload := filepath.Join(t.TempDir(), "blob.bin")
	require.NoError(t, os.WriteFile(payload, []byte("12345"), 0o600))

	code, stdout, stderr := runCLI(t, "-config", cfg, "blob", "upload", payload)
	require.Equal(t, exitOK, code, stderr)
	endpoint := strings.TrimSpace(stdout)
	assert.True(t, strings.HasPrefix(endpoint, gate.URL+"/blobs/"))
	assert.Equal(t, 1, gate.Blobs())

	code, _, stderr = runCLI(t, "-config", cfg, "blob", "delete", endpoint)
	require.Equal(t, exitOK, code, stderr)
	assert.Zero(t, gate.Blobs())

	code, _, _ = runCLI(t, "-config", cfg, "blob", "delete", endpoint)
	assert.Equal(t, exitError, code)

	code, _, _ = runCLI(t, "-config", cfg, "blob", "list")
	assert.Equal(t, exitUsage, code)
}

func TestRun_MissingRoot(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvRoot, "")
	t.Chdir(t.TempDir())
	code, _, stderr := runCLI(t, "services")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "root url must be provided")
}
