/*
MediaMTX HTTP Client Implementation (C5)

Typed RPC to the external MediaMTX media server: path create/delete/get/list
and health, with bounded retries, exponential backoff with jitter, and
circuit-breaker protection for consecutive failures.
*/
package mediamtx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/meridian-video/camera-gateway/internal/logging"
)

// Config controls the client's transport, retry, and circuit-breaker behavior.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	RetryMax       int
	RetryBase      time.Duration
	RetryCap       time.Duration
	CircuitBreaker CircuitBreakerConfig
}

// DefaultConfig returns the spec defaults for the MediaMTX client.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		RequestTimeout: 3 * time.Second,
		RetryMax:       3,
		RetryBase:      200 * time.Millisecond,
		RetryCap:       5 * time.Second,
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		},
	}
}

// Client is the gateway's typed view of MediaMTX.
type Client struct {
	http   *http.Client
	cfg    Config
	cb     *CircuitBreaker
	logger *logging.Logger
}

// NewClient constructs a MediaMTX client with connection pooling.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	httpClient := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return &Client{
		http:   httpClient,
		cfg:    cfg,
		cb:     NewCircuitBreaker("mediamtx", cfg.CircuitBreaker, logger),
		logger: logger,
	}
}

// CreatePath ensures a MediaMTX path named `name` exists with the given
// source spec (e.g. an RTSP publish URL, or "publisher" for a pushed
// source). An existing path is not special-cased: if MediaMTX answers the
// add request with a non-2xx status, that is returned as an error.
func (c *Client) CreatePath(ctx context.Context, name, source string) error {
	body, _ := json.Marshal(map[string]interface{}{"name": name, "source": source})
	_, err := c.retryingCall(ctx, "create_path", true, func(ctx context.Context) ([]byte, error) {
		return c.doRequest(ctx, http.MethodPost, "/v3/config/paths/add/"+name, body)
	})
	return err
}

// CreateRecordingPath ensures a path exists with on-disk recording enabled,
// writing segments under recordPath in the given container format. Used by
// the Recording Manager (C8) to begin a session; the path's readiness is
// still observed through GetPath/ListPaths like any other path.
func (c *Client) CreateRecordingPath(ctx context.Context, name, source, recordPath, format string) error {
	body, _ := json.Marshal(map[string]interface{}{
		"name":         name,
		"source":       source,
		"record":       true,
		"recordPath":   recordPath,
		"recordFormat": format,
	})
	_, err := c.retryingCall(ctx, "create_recording_path", true, func(ctx context.Context) ([]byte, error) {
		return c.doRequest(ctx, http.MethodPost, "/v3/config/paths/add/"+name, body)
	})
	return err
}

// DeletePath removes a path. Deleting an absent path is classified NOT_FOUND.
func (c *Client) DeletePath(ctx context.Context, name string) error {
	_, err := c.retryingCall(ctx, "delete_path", true, func(ctx context.Context) ([]byte, error) {
		return c.doRequest(ctx, http.MethodDelete, "/v3/config/paths/delete/"+name, nil)
	})
	return err
}

// GetPath fetches the current state of a single path.
func (c *Client) GetPath(ctx context.Context, name string) (*MediaPath, error) {
	data, err := c.retryingCall(ctx, "get_path", true, func(ctx context.Context) ([]byte, error) {
		return c.doRequest(ctx, http.MethodGet, "/v3/paths/get/"+name, nil)
	})
	if err != nil {
		return nil, err
	}
	var raw rawPathResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newError("get_path", ErrInternal, "malformed path response: "+err.Error(), 0)
	}
	return raw.toMediaPath(), nil
}

// ListPaths returns every path currently configured on MediaMTX.
func (c *Client) ListPaths(ctx context.Context) ([]*MediaPath, error) {
	data, err := c.retryingCall(ctx, "list_paths", true, func(ctx context.Context) ([]byte, error) {
		return c.doRequest(ctx, http.MethodGet, "/v3/paths/list", nil)
	})
	if err != nil {
		return nil, err
	}
	var resp pathListResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, newError("list_paths", ErrInternal, "malformed paths response: "+err.Error(), 0)
	}
	paths := make([]*MediaPath, 0, len(resp.Items))
	for _, item := range resp.Items {
		paths = append(paths, item.toMediaPath())
	}
	return paths, nil
}

// Health probes MediaMTX liveness via the paths listing endpoint.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	paths, err := c.ListPaths(ctx)
	if err != nil {
		return &HealthStatus{Reachable: false, CheckedAt: time.Now()}, err
	}
	return &HealthStatus{Reachable: true, Paths: len(paths), CheckedAt: time.Now()}, nil
}

// Close releases client resources. The underlying transport is garbage
// collected; this exists for interface symmetry with other collaborators.
func (c *Client) Close() error { return nil }

// CircuitState exposes the breaker's state for health reporting.
func (c *Client) CircuitState() CircuitBreakerState { return c.cb.GetState() }

// retryingCall wraps a single HTTP attempt with the circuit breaker and, for
// idempotent operations, exponential backoff with jitter on retryable
// classes (network failure or 5xx).
func (c *Client) retryingCall(ctx context.Context, op string, idempotent bool, attempt func(context.Context) ([]byte, error)) ([]byte, error) {
	var lastErr error
	var result []byte

	maxAttempts := 1
	if idempotent {
		maxAttempts = c.cfg.RetryMax
	}

	for i := 0; i < maxAttempts; i++ {
		cbErr := c.cb.Call(func() error {
			res, err := attempt(ctx)
			if err != nil {
				return err
			}
			result = res
			return nil
		})

		if cbErr == nil {
			return result, nil
		}
		lastErr = cbErr

		if _, isBreakerOpen := cbErr.(*CircuitBreakerError); isBreakerOpen {
			return nil, cbErr
		}

		mtxErr, ok := cbErr.(*Error)
		if !ok || !mtxErr.Retryable() || i == maxAttempts-1 {
			break
		}

		backoff := backoffDuration(i, c.cfg.RetryBase, c.cfg.RetryCap)
		c.logger.WithFields(logging.Fields{
			"op":      op,
			"attempt": i + 1,
			"backoff": backoff,
		}).Warn("retrying mediamtx request")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// backoffDuration computes base * 2^attempt capped at max, with ±20% jitter.
func backoffDuration(attempt int, base, max time.Duration) time.Duration {
	d := base << attempt
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(float64(d) * 0.2 * (rand.Float64()*2 - 1))
	return d + jitter
}

func (c *Client) doRequest(ctx context.Context, method, path string, data []byte) ([]byte, error) {
	url := c.cfg.BaseURL + path
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, newError(method, ErrInternal, err.Error(), 0)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(method, ErrTimeout, ctx.Err().Error(), 0)
		}
		return nil, newError(method, ErrUnreachable, err.Error(), 0)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(method, ErrInternal, err.Error(), 0)
	}

	if resp.StatusCode >= 400 {
		return nil, classifyHTTPStatus(method, resp.StatusCode, string(bodyBytes))
	}

	return bodyBytes, nil
}
