// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	tests := []struct {
		err    error
		status int
		want   string
	}{
		{errors.New("dial"), 0, "error"},
		{nil, 201, "2xx"},
		{nil, 302, "3xx"},
		{nil, 404, "4xx"},
		{nil, 503, "5xx"},
		{nil, 101, "1xx"},
		{nil, 0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusClass(tt.err, tt.status))
	}
}

func TestRecordRequestIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(requestTotal.WithLabelValues("POST", "future", "2xx"))
	RecordRequest("POST", "future", 202, 10*time.Millisecond, nil)
	after := testutil.ToFloat64(requestTotal.WithLabelValues("POST", "future", "2xx"))
	assert.Equal(t, before+1, after)
}

func TestSetQueueDepth(t *testing.T) {
	SetQueueDepth(7)

	var m dto.Metric
	require.NoError(t, queueDepth.Write(&m))
	assert.Equal(t, 7.0, m.GetGauge().GetValue())
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(compositeDropped.WithLabelValues("dummy"))
	RecordCompositeDropped("dummy")
	assert.Equal(t, before+1, testutil.ToFloat64(compositeDropped.WithLabelValues("dummy")))

	hits := testutil.ToFloat64(blobCache.WithLabelValues("hit"))
	RecordBlobCache(true)
	assert.Equal(t, hits+1, testutil.ToFloat64(blobCache.WithLabelValues("hit")))

	async := testutil.ToFloat64(jobsSubmitted.WithLabelValues("async", "callback"))
	RecordJobSubmitted(true, true)
	assert.Equal(t, async+1, testutil.ToFloat64(jobsSubmitted.WithLabelValues("async", "callback")))

	sent := testutil.ToFloat64(streamFrames.WithLabelValues("sent"))
	RecordStreamFrame("sent")
	assert.Equal(t, sent+1, testutil.ToFloat64(streamFrames.WithLabelValues("sent")))
}
