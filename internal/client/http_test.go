package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stdb-loadgen/internal/metrics"
)

func newHTTPClient(t *testing.T, baseURL string, maxRetries int, retryDelay time.Duration) *Client {
	t.Helper()
	return New(Config{
		BaseURL:    baseURL,
		Module:     "bench",
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
	}, metrics.New(), testLogger())
}

func TestCallReducerHTTPSuccess(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c := newHTTPClient(t, srv.URL, 3, 10*time.Millisecond)
	res := c.CallReducerHTTP(context.Background(), "increment_counter", []any{"counter_1", 5})

	assert.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "/v1/database/bench/call/increment_counter", gotPath)

	var args []any
	require.NoError(t, json.Unmarshal(gotBody, &args))
	assert.Equal(t, "counter_1", args[0])
}

func TestCallReducerHTTPRetriesThenSucceeds(t *testing.T) {
	const maxRetries = 3
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= maxRetries {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := newHTTPClient(t, srv.URL, maxRetries, 5*time.Millisecond)
	res := c.CallReducerHTTP(context.Background(), "create_message", []any{"a", "b", "c"})

	assert.True(t, res.Success)
	assert.Equal(t, maxRetries+1, res.Attempts)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestCallReducerHTTPClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	c := newHTTPClient(t, srv.URL, 3, 5*time.Millisecond)
	res := c.CallReducerHTTP(context.Background(), "increment_counter", nil)

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.ErrorIs(t, res.Err, ErrHTTPClient)
	assert.Equal(t, metrics.ErrKindValidation, res.Kind)
}

func TestCallReducerHTTPExhaustedRetriesBackoffDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	const retryDelay = 100 * time.Millisecond
	c := newHTTPClient(t, srv.URL, 3, retryDelay)

	start := time.Now()
	res := c.CallReducerHTTP(context.Background(), "create_event", nil)
	elapsed := time.Since(start)

	assert.False(t, res.Success)
	assert.Equal(t, 4, res.Attempts)
	assert.ErrorIs(t, res.Err, ErrHTTPServer)
	// Three backoff sleeps between four attempts.
	assert.GreaterOrEqual(t, elapsed, 3*retryDelay)
}

func TestCallReducerHTTPTransportError(t *testing.T) {
	c := newHTTPClient(t, "http://127.0.0.1:1", 3, 5*time.Millisecond)
	res := c.CallReducerHTTP(context.Background(), "increment_counter", nil)

	assert.False(t, res.Success)
	assert.Equal(t, metrics.ErrKindConnection, res.Kind)
}

func TestCallReducerHTTPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL:        srv.URL,
		Module:         "bench",
		RequestTimeout: 50 * time.Millisecond,
		MaxRetries:     1,
		RetryDelay:     5 * time.Millisecond,
	}, metrics.New(), testLogger())

	res := c.CallReducerHTTP(context.Background(), "increment_counter", nil)
	assert.False(t, res.Success)
	assert.Equal(t, metrics.ErrKindTimeout, res.Kind)
}

func TestBreakerOpensUnderSustainedOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := newHTTPClient(t, srv.URL, 0, time.Millisecond)

	// Drive enough failed calls through to trip the breaker.
	for i := 0; i < 25; i++ {
		c.CallReducerHTTP(context.Background(), "increment_counter", nil)
	}

	res := c.CallReducerHTTP(context.Background(), "increment_counter", nil)
	assert.False(t, res.Success)
	// Fast failure without touching the target.
	assert.Equal(t, 0, res.Attempts)
	assert.ErrorIs(t, res.Err, ErrConnection)
}
