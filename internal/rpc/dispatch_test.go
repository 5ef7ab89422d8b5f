package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/meridian-video/camera-gateway/internal/camera"
	"github.com/meridian-video/camera-gateway/internal/logging"
	"github.com/meridian-video/camera-gateway/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

// syncPool runs every submitted task inline, so dispatch tests don't need
// a real goroutine pool lifecycle.
type syncPool struct{}

func (syncPool) Start(context.Context) error               { return nil }
func (syncPool) Stop(context.Context) error                { return nil }
func (syncPool) IsRunning() bool                            { return true }
func (syncPool) GetStats() camera.WorkerPoolStats           { return camera.WorkerPoolStats{} }
func (syncPool) Submit(ctx context.Context, task func(context.Context)) error {
	task(ctx)
	return nil
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(Config{}, security.NewPermissionChecker(), syncPool{}, logging.NewLogger("test"))
}

func inFlightSem() *semaphore.Weighted { return semaphore.NewWeighted(64) }

func TestHandleFramePublicMethodWithoutSession(t *testing.T) {
	e := testEngine(t)
	e.Register("ping", func(context.Context, *security.Session, json.RawMessage) (interface{}, *Error) {
		return "pong", nil
	})

	raw := []byte(`{"version":"2.0","method":"ping","id":1}`)
	out := e.HandleFrame(context.Background(), nil, raw, inFlightSem())

	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Nil(t, resp.Error)
	assert.Equal(t, "pong", resp.Result)
}

func TestHandleFrameRejectsUnauthenticatedControlMethod(t *testing.T) {
	e := testEngine(t)
	e.Register("start_recording", func(context.Context, *security.Session, json.RawMessage) (interface{}, *Error) {
		return "should not run", nil
	})

	raw := []byte(`{"version":"2.0","method":"start_recording","id":1}`)
	out := e.HandleFrame(context.Background(), nil, raw, inFlightSem())

	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeAuthRequired, resp.Error.Code)
}

func TestHandleFrameRejectsReadScopeWithoutControl(t *testing.T) {
	e := testEngine(t)
	e.Register("start_recording", func(context.Context, *security.Session, json.RawMessage) (interface{}, *Error) {
		return "ok", nil
	})

	sess := &security.Session{SessionID: "s1", Claims: &security.Claims{Subject: "u1", Scopes: []string{"read"}, ExpiresAt: futureUnix()}}
	raw := []byte(`{"version":"2.0","method":"start_recording","id":1}`)
	out := e.HandleFrame(context.Background(), sess, raw, inFlightSem())

	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodePermissionDenied, resp.Error.Code)
}

func TestHandleFrameAllowsControlScope(t *testing.T) {
	e := testEngine(t)
	e.Register("start_recording", func(context.Context, *security.Session, json.RawMessage) (interface{}, *Error) {
		return "started", nil
	})

	sess := &security.Session{SessionID: "s1", Claims: &security.Claims{Subject: "u1", Scopes: []string{"read", "control"}, ExpiresAt: futureUnix()}}
	raw := []byte(`{"version":"2.0","method":"start_recording","id":1}`)
	out := e.HandleFrame(context.Background(), sess, raw, inFlightSem())

	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Nil(t, resp.Error)
	assert.Equal(t, "started", resp.Result)
}

func TestHandleFrameUnknownMethod(t *testing.T) {
	e := testEngine(t)
	raw := []byte(`{"version":"2.0","method":"does_not_exist","id":1}`)
	out := e.HandleFrame(context.Background(), nil, raw, inFlightSem())

	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestHandleFrameOversizedFrameIsRejected(t *testing.T) {
	e := NewEngine(Config{MaxFrameBytes: 10}, security.NewPermissionChecker(), syncPool{}, logging.NewLogger("test"))
	raw := []byte(`{"version":"2.0","method":"ping","id":1}`)
	out := e.HandleFrame(context.Background(), nil, raw, inFlightSem())

	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

func TestHandleFrameBatchDropsNotificationResponses(t *testing.T) {
	e := testEngine(t)
	e.Register("ping", func(context.Context, *security.Session, json.RawMessage) (interface{}, *Error) {
		return "pong", nil
	})

	raw := []byte(`[{"version":"2.0","method":"ping","id":1},{"version":"2.0","method":"ping"}]`)
	out := e.HandleFrame(context.Background(), nil, raw, inFlightSem())

	var resps []Response
	require.NoError(t, json.Unmarshal(out, &resps))
	assert.Len(t, resps, 1)
}

func TestHandleFrameInFlightCapRejectsExcess(t *testing.T) {
	e := testEngine(t)
	e.Register("ping", func(context.Context, *security.Session, json.RawMessage) (interface{}, *Error) {
		return "pong", nil
	})
	sem := semaphore.NewWeighted(1)
	require.True(t, sem.TryAcquire(1))

	raw := []byte(`{"version":"2.0","method":"ping","id":1}`)
	out := e.HandleFrame(context.Background(), nil, raw, sem)

	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeRateLimited, resp.Error.Code)
}

func futureUnix() int64 {
	return time.Now().Add(time.Hour).Unix()
}
