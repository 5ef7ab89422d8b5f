package snapshot

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/meridian-video/camera-gateway/internal/camera"
	"github.com/meridian-video/camera-gateway/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCapturer struct {
	mu      sync.Mutex
	calls   int
	err     error
	writeOK bool
}

func (f *fakeCapturer) Capture(_ context.Context, _, destPath string, _ int) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.writeOK {
		return os.WriteFile(destPath, []byte("jpeg-bytes"), 0o644)
	}
	return nil
}

type fakeCameras struct{ cams map[string]*camera.Camera }

func (f *fakeCameras) Get(id string) (*camera.Camera, error) {
	cam, ok := f.cams[id]
	if !ok {
		return nil, &camera.ErrNotFound{Identifier: id}
	}
	return cam, nil
}

type fakePaths struct {
	createErr error
	created   []string
	deleted   []string
}

func (f *fakePaths) CreatePath(_ context.Context, name, _ string) error {
	f.created = append(f.created, name)
	return f.createErr
}

func (f *fakePaths) DeletePath(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
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

func withStreamURL(id string) *camera.Camera {
	return &camera.Camera{Identifier: id, Status: camera.StatusConnected, StreamURLs: camera.StreamURLs{RTSP: "rtsp://127.0.0.1/" + id}}
}

func TestTakeSucceedsWithExistingStream(t *testing.T) {
	capturer := &fakeCapturer{writeOK: true}
	cams := &fakeCameras{cams: map[string]*camera.Camera{"camera0": withStreamURL("camera0")}}
	pub := &fakePublisher{}
	mgr := New(Config{SnapshotsDir: t.TempDir()}, capturer, cams, &fakePaths{}, pub, logging.NewLogger("test"))

	result, err := mgr.Take(context.Background(), "camera0", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.FileExists(t, result.FilePath)
	assert.NotEmpty(t, pub.events)
}

func TestTakeRejectsCameraNotReady(t *testing.T) {
	capturer := &fakeCapturer{writeOK: true}
	notReady := &camera.Camera{Identifier: "camera0", Status: camera.StatusDisconnected}
	cams := &fakeCameras{cams: map[string]*camera.Camera{"camera0": notReady}}
	mgr := New(Config{SnapshotsDir: t.TempDir()}, capturer, cams, &fakePaths{}, nil, logging.NewLogger("test"))

	_, err := mgr.Take(context.Background(), "camera0", Options{})
	var notReadyErr *ErrCameraNotReady
	assert.ErrorAs(t, err, &notReadyErr)
}

func TestTakeLeavesNoZeroLengthFileOnCaptureError(t *testing.T) {
	capturer := &fakeCapturer{err: errors.New("capture failed")}
	cams := &fakeCameras{cams: map[string]*camera.Camera{"camera0": withStreamURL("camera0")}}
	mgr := New(Config{SnapshotsDir: t.TempDir()}, capturer, cams, &fakePaths{}, nil, logging.NewLogger("test"))

	result, err := mgr.Take(context.Background(), "camera0", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	_, statErr := os.Stat(result.FilePath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTakeCreatesTransientPathWhenNoStreamURL(t *testing.T) {
	capturer := &fakeCapturer{writeOK: true}
	noStream := &camera.Camera{Identifier: "camera0", Status: camera.StatusConnected, DevicePath: "/dev/video0"}
	cams := &fakeCameras{cams: map[string]*camera.Camera{"camera0": noStream}}
	paths := &fakePaths{}
	mgr := New(Config{SnapshotsDir: t.TempDir()}, capturer, cams, paths, nil, logging.NewLogger("test"))

	result, err := mgr.Take(context.Background(), "camera0", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Contains(t, paths.created, "snapshot-camera0")
	assert.Contains(t, paths.deleted, "snapshot-camera0")
}

func TestTakeReturnsFailedResultWhenTransientPathFails(t *testing.T) {
	capturer := &fakeCapturer{writeOK: true}
	noStream := &camera.Camera{Identifier: "camera0", Status: camera.StatusConnected, DevicePath: "/dev/video0"}
	cams := &fakeCameras{cams: map[string]*camera.Camera{"camera0": noStream}}
	paths := &fakePaths{createErr: errors.New("mediamtx unreachable")}
	mgr := New(Config{SnapshotsDir: t.TempDir()}, capturer, cams, paths, nil, logging.NewLogger("test"))

	result, err := mgr.Take(context.Background(), "camera0", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Error, "transient path creation failed")
}

func TestConcurrentSameCameraSnapshotsAllComplete(t *testing.T) {
	capturer := &fakeCapturer{writeOK: true}
	cams := &fakeCameras{cams: map[string]*camera.Camera{"camera0": withStreamURL("camera0")}}
	mgr := New(Config{SnapshotsDir: t.TempDir()}, capturer, cams, &fakePaths{}, nil, logging.NewLogger("test"))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mgr.Take(context.Background(), "camera0", Options{})
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, capturer.calls)
}
