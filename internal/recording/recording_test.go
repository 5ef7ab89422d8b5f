package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meridian-video/camera-gateway/internal/camera"
	"github.com/meridian-video/camera-gateway/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu          sync.Mutex
	createErr   error
	deleteErr   error
	created     []string
	deleted     []string
}

func (f *fakeClient) CreateRecordingPath(_ context.Context, name, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return f.createErr
}

func (f *fakeClient) DeletePath(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return f.deleteErr
}

type fakeCameras struct {
	cams map[string]*camera.Camera
}

func (f *fakeCameras) Get(id string) (*camera.Camera, error) {
	cam, ok := f.cams[id]
	if !ok {
		return nil, &camera.ErrNotFound{Identifier: id}
	}
	return cam, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (f *fakePublisher) Publish(_ string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, payload)
}

type fakeClock struct {
	mu      sync.Mutex
	pending []func()
}

func (f *fakeClock) Now() int64 { return time.Now().UnixNano() }

func (f *fakeClock) AfterFunc(_ int64, fn func()) camera.CancelFunc {
	f.mu.Lock()
	idx := len(f.pending)
	f.pending = append(f.pending, fn)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.pending[idx] = nil
		f.mu.Unlock()
	}
}

func (f *fakeClock) fireAll() {
	f.mu.Lock()
	fns := append([]func(){}, f.pending...)
	f.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

func testManager(t *testing.T, client MediaClient, cams map[string]*camera.Camera) (*Manager, *fakePublisher, *fakeClock) {
	t.Helper()
	pub := &fakePublisher{}
	clk := &fakeClock{}
	mgr := New(Config{RecordingsDir: t.TempDir()}, client, &fakeCameras{cams: cams}, pub, clk, logging.NewLogger("test"))
	return mgr, pub, clk
}

func connectedCamera(id string) *camera.Camera {
	return &camera.Camera{Identifier: id, Status: camera.StatusConnected}
}

func TestStartTransitionsToRecordingOnSuccess(t *testing.T) {
	client := &fakeClient{}
	mgr, pub, _ := testManager(t, client, map[string]*camera.Camera{"camera0": connectedCamera("camera0")})

	session, err := mgr.Start(context.Background(), "camera0", StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateRecording, session.State)
	assert.Contains(t, client.created, "camera0")
	assert.NotEmpty(t, pub.events)
}

func TestStartRejectsWhenAlreadyRecording(t *testing.T) {
	client := &fakeClient{}
	mgr, _, _ := testManager(t, client, map[string]*camera.Camera{"camera0": connectedCamera("camera0")})

	_, err := mgr.Start(context.Background(), "camera0", StartOptions{})
	require.NoError(t, err)

	_, err = mgr.Start(context.Background(), "camera0", StartOptions{})
	var already *ErrAlreadyRecording
	assert.ErrorAs(t, err, &already)
}

func TestStartRejectsCameraNotReady(t *testing.T) {
	client := &fakeClient{}
	notReady := &camera.Camera{Identifier: "camera0", Status: camera.StatusDisconnected}
	mgr, _, _ := testManager(t, client, map[string]*camera.Camera{"camera0": notReady})

	_, err := mgr.Start(context.Background(), "camera0", StartOptions{})
	var notReadyErr *ErrCameraNotReady
	assert.ErrorAs(t, err, &notReadyErr)
}

func TestStartFailsWhenMediaMTXRejects(t *testing.T) {
	client := &fakeClient{createErr: errors.New("boom")}
	mgr, _, _ := testManager(t, client, map[string]*camera.Camera{"camera0": connectedCamera("camera0")})

	session, err := mgr.Start(context.Background(), "camera0", StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, session.State)
	assert.NotEmpty(t, session.Error)
}

func TestStopTransitionsToStopped(t *testing.T) {
	client := &fakeClient{}
	mgr, _, _ := testManager(t, client, map[string]*camera.Camera{"camera0": connectedCamera("camera0")})

	_, err := mgr.Start(context.Background(), "camera0", StartOptions{})
	require.NoError(t, err)

	session, err := mgr.Stop(context.Background(), "camera0", "user")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, session.State)
	assert.Contains(t, client.deleted, "camera0")
}

func TestStopWithNoActiveSessionErrors(t *testing.T) {
	client := &fakeClient{}
	mgr, _, _ := testManager(t, client, map[string]*camera.Camera{"camera0": connectedCamera("camera0")})

	_, err := mgr.Stop(context.Background(), "camera0", "user")
	var noActive *ErrNoActiveSession
	assert.ErrorAs(t, err, &noActive)
}

func TestDurationBoundedSessionStopsOnTimer(t *testing.T) {
	client := &fakeClient{}
	mgr, _, clk := testManager(t, client, map[string]*camera.Camera{"camera0": connectedCamera("camera0")})

	_, err := mgr.Start(context.Background(), "camera0", StartOptions{Duration: time.Minute})
	require.NoError(t, err)

	clk.fireAll()

	assert.Eventually(t, func() bool {
		s, err := mgr.Get("camera0")
		return err == nil && s.State == StateStopped
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "timer", func() string {
		s, _ := mgr.Get("camera0")
		return s.StopReason
	}())
}

func TestFailCancelsDeadlineAndTransitions(t *testing.T) {
	client := &fakeClient{}
	mgr, _, clk := testManager(t, client, map[string]*camera.Camera{"camera0": connectedCamera("camera0")})

	_, err := mgr.Start(context.Background(), "camera0", StartOptions{Duration: time.Hour})
	require.NoError(t, err)

	mgr.Fail("camera0", "media_backend_lost")

	session, err := mgr.Get("camera0")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, session.State)
	assert.Equal(t, "media_backend_lost", session.Error)

	clk.fireAll() // deadline was cancelled; must not re-stop or panic
	session, err = mgr.Get("camera0")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, session.State)
}

func TestStopAllForShutdownStopsEverySession(t *testing.T) {
	client := &fakeClient{}
	mgr, _, _ := testManager(t, client, map[string]*camera.Camera{
		"camera0": connectedCamera("camera0"),
		"camera1": connectedCamera("camera1"),
	})

	_, err := mgr.Start(context.Background(), "camera0", StartOptions{})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), "camera1", StartOptions{})
	require.NoError(t, err)

	mgr.StopAllForShutdown(context.Background())

	assert.Empty(t, mgr.ListActive())
}
