package mediamtx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meridian-video/camera-gateway/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	cfg := DefaultConfig(srv.URL)
	cfg.RetryBase = time.Millisecond
	cfg.RetryCap = 10 * time.Millisecond
	return NewClient(cfg, logging.NewLogger("test"))
}

func TestListPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"itemCount":1,"items":[{"name":"camera0","source":"publisher","ready":true,"readers":[1],"bytesReceived":100}]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	paths, err := c.ListPaths(context.Background())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "camera0", paths[0].Name)
	assert.True(t, paths[0].Ready)
	assert.Equal(t, 1, paths[0].ReaderCount)
}

func TestRetryOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"itemCount":0,"items":[]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.ListPaths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestCircuitBreakerOpensAfterFailureStreak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.RetryMax = 1
	cfg.CircuitBreaker.FailureThreshold = 2
	cfg.CircuitBreaker.RecoveryTimeout = time.Hour
	c := NewClient(cfg, logging.NewLogger("test"))

	_, _ = c.ListPaths(context.Background())
	_, _ = c.ListPaths(context.Background())
	assert.Equal(t, StateOpen, c.CircuitState())

	_, err := c.ListPaths(context.Background())
	require.Error(t, err)
	_, isBreakerErr := err.(*CircuitBreakerError)
	assert.True(t, isBreakerErr)
}

func TestDeletePathNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	err := c.DeletePath(context.Background(), "camera0")
	require.Error(t, err)
	mtxErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrNotFound, mtxErr.Class)
	assert.False(t, mtxErr.Retryable())
}
