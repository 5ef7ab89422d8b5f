/*
Snapshot Manager (C9): single-frame captures with at-most-one in flight
per camera (a size-1 weighted semaphore), a transient-MediaMTX-path
fallback for cameras with no active path, and the invariant that a failed
capture never leaves a zero-length file on disk.
*/
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meridian-video/camera-gateway/internal/camera"
	"github.com/meridian-video/camera-gateway/internal/logging"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Status is the outcome of a Take call.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Result is the Snapshot Manager's response to take().
type Result struct {
	FilePath string `json:"file_path"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
}

// ErrCameraNotReady is returned when the camera is not CONNECTED.
type ErrCameraNotReady struct{ CameraID string }

func (e *ErrCameraNotReady) Error() string { return "camera not ready: " + e.CameraID }

// Options carries the optional parameters to Take.
type Options struct {
	Filename string
	Format   string
	Quality  int
}

// Capturer performs the actual single-frame grab from a media source.
// The real implementation shells out the way the capability prober does
// for v4l2-ctl; tests substitute a fake.
type Capturer interface {
	Capture(ctx context.Context, sourceURL, destPath string, quality int) error
}

// CameraLookup is the slice of the Camera Registry (C6) the manager needs.
type CameraLookup interface {
	Get(identifier string) (*camera.Camera, error)
}

// PathEnsurer is the slice of the MediaMTX client (C5) needed to create and
// tear down a transient path for a camera with no active path.
type PathEnsurer interface {
	CreatePath(ctx context.Context, name, source string) error
	DeletePath(ctx context.Context, name string) error
}

// EventPublisher is the narrow slice of the Event Bus (C11) the manager
// needs: publishing snapshot_taken notifications.
type EventPublisher interface {
	Publish(topic string, payload map[string]interface{})
}

// Config carries the Snapshot Manager's recognized options from spec §6.
type Config struct {
	SnapshotsDir  string
	DefaultFormat string
}

// Manager serializes same-camera snapshots via a bounded per-camera
// semaphore (default size 1) while letting unrelated cameras proceed in
// parallel.
type Manager struct {
	mu         sync.Mutex
	semaphores map[string]*semaphore.Weighted

	capturer      Capturer
	cameras       CameraLookup
	paths         PathEnsurer
	publisher     EventPublisher
	logger        *logging.Logger
	snapshotsDir  string
	defaultFormat string
	transientSF   singleflight.Group
}

// New constructs a Manager.
func New(cfg Config, capturer Capturer, cameras CameraLookup, paths PathEnsurer, publisher EventPublisher, logger *logging.Logger) *Manager {
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = "jpg"
	}
	if logger == nil {
		logger = logging.GetLogger("snapshot")
	}
	return &Manager{
		semaphores:    make(map[string]*semaphore.Weighted),
		capturer:      capturer,
		cameras:       cameras,
		paths:         paths,
		publisher:     publisher,
		logger:        logger,
		snapshotsDir:  cfg.SnapshotsDir,
		defaultFormat: cfg.DefaultFormat,
	}
}

func (m *Manager) semaphoreFor(cameraID string) *semaphore.Weighted {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.semaphores[cameraID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		m.semaphores[cameraID] = sem
	}
	return sem
}

func (m *Manager) canonicalFilename(cameraID, format string) string {
	return fmt.Sprintf("%s_%s.%s", cameraID, time.Now().UTC().Format("2006-01-02T15-04-05Z"), format)
}

// Take captures a single frame from cameraID (spec §4.4 algorithm).
func (m *Manager) Take(ctx context.Context, cameraID string, opts Options) (*Result, error) {
	cam, err := m.cameras.Get(cameraID)
	if err != nil {
		return nil, err
	}
	if cam.Status != camera.StatusConnected {
		return nil, &ErrCameraNotReady{CameraID: cameraID}
	}

	sem := m.semaphoreFor(cameraID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer sem.Release(1)

	format := opts.Format
	if format == "" {
		format = m.defaultFormat
	}
	filename := opts.Filename
	if filename == "" {
		filename = m.canonicalFilename(cameraID, format)
	}
	destPath := filepath.Join(m.snapshotsDir, filename)

	sourceURL, cleanup, err := m.resolveSource(ctx, cam)
	if err != nil {
		return m.fail(destPath, err), nil
	}
	defer cleanup()

	if err := m.capturer.Capture(ctx, sourceURL, destPath, opts.Quality); err != nil {
		_ = os.Remove(destPath)
		return m.fail(destPath, err), nil
	}

	if info, statErr := os.Stat(destPath); statErr != nil || info.Size() == 0 {
		_ = os.Remove(destPath)
		return m.fail(destPath, fmt.Errorf("capture produced no data")), nil
	}

	result := &Result{FilePath: destPath, Status: StatusCompleted}
	m.emit(cameraID, result)
	return result, nil
}

func (m *Manager) fail(destPath string, err error) *Result {
	return &Result{FilePath: destPath, Status: StatusFailed, Error: err.Error()}
}

// resolveSource returns the source URL to capture from, creating a
// transient MediaMTX path if the camera has none yet. The transient path
// is de-duplicated across concurrent callers for the same camera via
// singleflight, and torn down by the returned cleanup func.
func (m *Manager) resolveSource(ctx context.Context, cam *camera.Camera) (string, func(), error) {
	if cam.StreamURLs.RTSP != "" {
		return cam.StreamURLs.RTSP, func() {}, nil
	}

	transientName := "snapshot-" + cam.Identifier
	_, err, _ := m.transientSF.Do(transientName, func() (interface{}, error) {
		createCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return nil, m.paths.CreatePath(createCtx, transientName, cam.DevicePath)
	})
	if err != nil {
		return "", func() {}, fmt.Errorf("transient path creation failed: %w", err)
	}

	cleanup := func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.paths.DeletePath(cleanupCtx, transientName)
	}
	return "rtsp://127.0.0.1/" + transientName, cleanup, nil
}

func (m *Manager) emit(cameraID string, result *Result) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish("snapshot_taken", map[string]interface{}{
		"camera_id": cameraID,
		"file_path": result.FilePath,
		"status":    string(result.Status),
	})
}
