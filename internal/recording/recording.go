/*
Recording Manager (C8): one active session per camera, open-ended or
duration-bounded, backed by a MediaMTX path with recording enabled. A
per-camera non-reentrant mutex serializes start/stop so there is never more
than one writer deciding a camera's session state at a time; readers get a
copy-on-read snapshot via Get/ListActive.
*/
package recording

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-video/camera-gateway/internal/camera"
	"github.com/meridian-video/camera-gateway/internal/logging"
)

// State is a RecordingSession's lifecycle state (spec §4.11).
type State string

const (
	StateStarting  State = "STARTING"
	StateRecording State = "RECORDING"
	StateStopping  State = "STOPPING"
	StateStopped   State = "STOPPED"
	StateFailed    State = "FAILED"
)

// Session is one camera's recording attempt.
type Session struct {
	SessionID  string    `json:"session_id"`
	CameraID   string    `json:"camera_id"`
	FilePath   string    `json:"file_path"`
	Format     string    `json:"format"`
	State      State     `json:"state"`
	Error      string    `json:"error,omitempty"`
	StopReason string    `json:"stop_reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`

	cancelDeadline camera.CancelFunc
}

// Clone returns an independent copy suitable for a copy-on-read snapshot.
func (s *Session) Clone() *Session {
	clone := *s
	clone.cancelDeadline = nil
	return &clone
}

// ErrAlreadyRecording is returned by Start when a camera already has an
// active session.
type ErrAlreadyRecording struct{ CameraID string }

func (e *ErrAlreadyRecording) Error() string { return "already recording: " + e.CameraID }

// ErrCameraNotReady is returned by Start when the camera exists but is not
// CONNECTED.
type ErrCameraNotReady struct{ CameraID string }

func (e *ErrCameraNotReady) Error() string { return "camera not ready: " + e.CameraID }

// ErrNoActiveSession is returned by Stop/Get when a camera has no session.
type ErrNoActiveSession struct{ CameraID string }

func (e *ErrNoActiveSession) Error() string { return "no active session: " + e.CameraID }

// MediaClient is the slice of the MediaMTX client (C5) the manager needs.
type MediaClient interface {
	CreateRecordingPath(ctx context.Context, name, source, recordPath, format string) error
	DeletePath(ctx context.Context, name string) error
}

// CameraLookup is the slice of the Camera Registry (C6) the manager needs.
type CameraLookup interface {
	Get(identifier string) (*camera.Camera, error)
}

// EventPublisher is the narrow slice of the Event Bus (C11) the manager
// needs: publishing recording_status_update notifications.
type EventPublisher interface {
	Publish(topic string, payload map[string]interface{})
}

// StartOptions carries the optional parameters to Start.
type StartOptions struct {
	Duration time.Duration
	Format   string
}

type cameraSlot struct {
	mu      sync.Mutex
	session *Session
}

// Manager owns every camera's RecordingSession, keyed by camera id.
type Manager struct {
	mu    sync.Mutex
	slots map[string]*cameraSlot

	client        MediaClient
	cameras       CameraLookup
	publisher     EventPublisher
	clock         camera.Clock
	logger        *logging.Logger
	recordingsDir string
	defaultFormat string
	stopSettle    time.Duration
}

// Config carries the Recording Manager's recognized options from spec §6.
type Config struct {
	RecordingsDir string
	DefaultFormat string
	StopSettle    time.Duration
}

// New constructs a Manager.
func New(cfg Config, client MediaClient, cameras CameraLookup, publisher EventPublisher, clock camera.Clock, logger *logging.Logger) *Manager {
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = "mp4"
	}
	if cfg.StopSettle <= 0 {
		cfg.StopSettle = 5 * time.Second
	}
	if logger == nil {
		logger = logging.GetLogger("recording")
	}
	return &Manager{
		slots:         make(map[string]*cameraSlot),
		client:        client,
		cameras:       cameras,
		publisher:     publisher,
		clock:         clock,
		logger:        logger,
		recordingsDir: cfg.RecordingsDir,
		defaultFormat: cfg.DefaultFormat,
		stopSettle:    cfg.StopSettle,
	}
}

func (m *Manager) slotFor(cameraID string) *cameraSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[cameraID]
	if !ok {
		slot = &cameraSlot{}
		m.slots[cameraID] = slot
	}
	return slot
}

// canonicalFilePath builds the canonical recording filename for a camera at
// the given start time: camera{N}_YYYY-MM-DDThh-mm-ssZ.<ext>.
func (m *Manager) canonicalFilePath(cameraID string, startedAt time.Time, format string) string {
	name := fmt.Sprintf("%s_%s.%s", cameraID, startedAt.UTC().Format("2006-01-02T15-04-05Z"), format)
	return filepath.Join(m.recordingsDir, name)
}

// Start begins a recording session for cameraID (spec §4.3 algorithm).
func (m *Manager) Start(ctx context.Context, cameraID string, opts StartOptions) (*Session, error) {
	slot := m.slotFor(cameraID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.session != nil && slot.session.State != StateStopped && slot.session.State != StateFailed {
		return nil, &ErrAlreadyRecording{CameraID: cameraID}
	}

	cam, err := m.cameras.Get(cameraID)
	if err != nil {
		return nil, err
	}
	if cam.Status != camera.StatusConnected {
		return nil, &ErrCameraNotReady{CameraID: cameraID}
	}

	format := opts.Format
	if format == "" {
		format = m.defaultFormat
	}

	startedAt := time.Now()
	session := &Session{
		SessionID: uuid.New().String(),
		CameraID:  cameraID,
		FilePath:  m.canonicalFilePath(cameraID, startedAt, format),
		Format:    format,
		State:     StateStarting,
		StartedAt: startedAt,
	}
	slot.session = session

	if err := m.client.CreateRecordingPath(ctx, cameraID, "publisher", session.FilePath, format); err != nil {
		session.State = StateFailed
		session.Error = err.Error()
		m.emit(session)
		return session.Clone(), nil
	}

	session.State = StateRecording
	m.emit(session)

	if opts.Duration > 0 && m.clock != nil {
		cancel := m.clock.AfterFunc(opts.Duration.Nanoseconds(), func() {
			_, _ = m.Stop(context.Background(), cameraID, "timer")
		})
		session.cancelDeadline = cancel
	}

	return session.Clone(), nil
}

// Stop ends cameraID's active session (spec §4.3 algorithm). Idempotent
// while the session is already STOPPING.
func (m *Manager) Stop(ctx context.Context, cameraID string, stopReason string) (*Session, error) {
	slot := m.slotFor(cameraID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	session := slot.session
	if session == nil {
		return nil, &ErrNoActiveSession{CameraID: cameraID}
	}
	if session.State == StateStopped || session.State == StateFailed {
		return nil, &ErrNoActiveSession{CameraID: cameraID}
	}
	if session.State == StateStopping {
		return session.Clone(), nil
	}

	if session.cancelDeadline != nil {
		session.cancelDeadline()
		session.cancelDeadline = nil
	}

	session.State = StateStopping
	session.StopReason = stopReason
	m.emit(session)

	stopCtx, cancel := context.WithTimeout(ctx, m.stopSettle)
	defer cancel()

	if err := m.client.DeletePath(stopCtx, cameraID); err != nil {
		session.State = StateFailed
		session.Error = err.Error()
		m.emit(session)
		return session.Clone(), nil
	}

	session.State = StateStopped
	m.emit(session)
	return session.Clone(), nil
}

// Fail transitions cameraID's active session to FAILED with the given
// reason, e.g. on media_backend_lost once C5's failure streak trips.
// Cancels any pending duration-bounded deadline to avoid a double-stop.
func (m *Manager) Fail(cameraID, reason string) {
	slot := m.slotFor(cameraID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	session := slot.session
	if session == nil || session.State == StateStopped || session.State == StateFailed {
		return
	}
	if session.cancelDeadline != nil {
		session.cancelDeadline()
		session.cancelDeadline = nil
	}
	session.State = StateFailed
	session.Error = reason
	m.emit(session)
}

// Get returns a snapshot of cameraID's session.
func (m *Manager) Get(cameraID string) (*Session, error) {
	slot := m.slotFor(cameraID)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.session == nil {
		return nil, &ErrNoActiveSession{CameraID: cameraID}
	}
	return slot.session.Clone(), nil
}

// ListActive returns a snapshot of every session currently RECORDING or
// transitioning (STARTING/STOPPING).
func (m *Manager) ListActive() []*Session {
	m.mu.Lock()
	slots := make([]*cameraSlot, 0, len(m.slots))
	for _, s := range m.slots {
		slots = append(slots, s)
	}
	m.mu.Unlock()

	active := make([]*Session, 0, len(slots))
	for _, slot := range slots {
		slot.mu.Lock()
		s := slot.session
		if s != nil && s.State != StateStopped && s.State != StateFailed {
			active = append(active, s.Clone())
		}
		slot.mu.Unlock()
	}
	return active
}

// StopAllForShutdown stops every active session with stop_reason=shutdown
// (spec §4.12 partial-failure-during-shutdown rule).
func (m *Manager) StopAllForShutdown(ctx context.Context) {
	for _, s := range m.ListActive() {
		_, _ = m.Stop(ctx, s.CameraID, "shutdown")
	}
}

func (m *Manager) emit(session *Session) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish("recording_status_update", map[string]interface{}{
		"session_id": session.SessionID,
		"camera_id":  session.CameraID,
		"state":      string(session.State),
		"file_path":  session.FilePath,
		"error":      session.Error,
	})
}
