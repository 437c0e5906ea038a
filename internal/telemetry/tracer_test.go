// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, ExporterType: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)

	_, span := Tracer().Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording(), "noop tracer spans must not record")
	span.End()
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ExporterType: "invalid"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: invalid (supported: grpc, http)", err.Error())
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, sdktrace.AlwaysSample().Description()},
		{0.0, sdktrace.NeverSample().Description()},
		{0.5, sdktrace.TraceIDRatioBased(0.5).Description()},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sampler(tt.rate).Description())
	}
}

func TestProvider_ShutdownNoop(t *testing.T) {
	var nilProvider *Provider
	assert.NoError(t, nilProvider.Shutdown(context.Background()))
	assert.NoError(t, (&Provider{}).Shutdown(context.Background()))
}

func TestJobAttributes(t *testing.T) {
	attrs := JobAttributes("https://gate/services/face_detection/1", true, false, true)
	set := attribute.NewSet(attrs...)

	v, ok := set.Value(JobAsyncKey)
	require.True(t, ok)
	assert.True(t, v.AsBool())

	v, ok = set.Value(ServiceURLKey)
	require.True(t, ok)
	assert.Equal(t, "https://gate/services/face_detection/1", v.AsString())
}

func TestCompositeAttributes(t *testing.T) {
	set := attribute.NewSet(CompositeAttributes(3, 2)...)
	v, ok := set.Value(CompositeKeptKey)
	require.True(t, ok)
	assert.Equal(t, int64(2), v.AsInt64())
}
