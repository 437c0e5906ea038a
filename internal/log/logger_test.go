// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconfigureAttachesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Reconfigure(Config{Level: "debug", Output: &buf, Service: "angus-test", Version: "v0.0.0"})
	t.Cleanup(func() { Reconfigure(Config{}) })

	l := WithComponent("transport")
	l.Debug().Str(FieldEndpoint, "https://gate.example/services").Msg("probe")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "angus-test", entry["service"])
	assert.Equal(t, "v0.0.0", entry["version"])
	assert.Equal(t, "transport", entry[FieldComponent])
	assert.Equal(t, "https://gate.example/services", entry[FieldEndpoint])
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
