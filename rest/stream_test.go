// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/angus/internal/gatetest"
	"github.com/ManuGH/angus/rest"
)

func frames(n int) iter.Seq[rest.Frame] {
	return func(yield func(rest.Frame) bool) {
		for i := 0; i < n; i++ {
			f := rest.Frame{
				Parameters: rest.Parameters{"timestamp": i},
				Field:      "image",
				Data:       make([]byte, 100+i),
			}
			if !yield(f) {
				return
			}
		}
	}
}

func TestStream_RoundTrip(t *testing.T) {
	gate, tr := setup(t)
	svc := faceService(t, gate, tr)

	st, err := svc.Stream(context.Background(), rest.Parameters{"fps": 5}, frames(3), rest.StreamOptions{})
	require.NoError(t, err)

	var sizes []float64
	for part, err := range st.All() {
		require.NoError(t, err)
		var res map[string]any
		require.NoError(t, json.Unmarshal(part, &res))
		sizes = append(sizes, res["size"].(float64))
	}
	assert.Equal(t, []float64{100, 101, 102}, sizes)

	_, err = st.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_NextUntilEOF(t *testing.T) {
	gate, tr := setup(t)
	svc := faceService(t, gate, tr)
	session := svc.EnableSession(nil)

	st, err := svc.Stream(context.Background(), nil, frames(2), rest.StreamOptions{})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	var n int
	for {
		_, err := st.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 2, n)

	reqs := gate.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]any{"session_id": session.ID()}, reqs[0].Params["state"])
	assert.NotContains(t, reqs[0].Params, "async")
}

func TestStream_EarlyBreakReleasesEverything(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	gate := gatetest.New()
	gate.AddService("face_detection", 1, gatetest.Echo("face_detection"))
	gate.HoldOutput(true)
	defer gate.Close()
	tr, err := rest.NewTransport(rest.Options{})
	require.NoError(t, err)
	defer func() { _ = tr.Close() }()

	svc := faceService(t, gate, tr)
	infinite := func(yield func(rest.Frame) bool) {
		for i := 0; ; i++ {
			if !yield(rest.Frame{Field: "image", Data: []byte{byte(i)}}) {
				return
			}
		}
	}

	st, err := svc.Stream(context.Background(), nil, infinite, rest.StreamOptions{})
	require.NoError(t, err)

	got := 0
	for _, err := range st.All() {
		require.NoError(t, err)
		got++
		if got == 3 {
			break
		}
	}
	assert.Equal(t, 3, got)
	assert.NoError(t, st.Close())
}

func TestStream_NegotiationFailure(t *testing.T) {
	gate, tr := setup(t)
	svc := rest.NewService(tr, gate.URL+"/services/missing", "1", nil)

	_, err := svc.Stream(context.Background(), nil, frames(1), rest.StreamOptions{})
	require.ErrorIs(t, err, rest.ErrHTTPStatus)
}
