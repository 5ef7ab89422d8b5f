/*
Camera Registry (C6): the authoritative in-memory map of known cameras,
merging local-device presence (C4) with MediaMTX path readiness (C5) per
the rule in §4.1. Single writer, many readers via copy-on-read snapshots.
*/
package camera

import (
	"sync"
	"time"

	"github.com/meridian-video/camera-gateway/internal/logging"
)

// EventPublisher is the narrow slice of the Event Bus (C11) the registry
// needs: publishing camera_status_update notifications.
type EventPublisher interface {
	Publish(topic string, payload map[string]interface{})
}

// ErrNotFound is returned by Get for an unknown camera identifier.
type ErrNotFound struct{ Identifier string }

func (e *ErrNotFound) Error() string { return "camera not found: " + e.Identifier }

type deviceState struct {
	present    bool
	lastSeenAt time.Time
}

type pathState struct {
	ready        bool
	sinceUnready time.Time
}

type transitionState struct {
	current           Status
	previous          Status
	lastTransitionAt  time.Time
}

// Registry implements the Camera Registry.
type Registry struct {
	mu         sync.RWMutex
	cameras    map[string]*Camera
	devices    map[string]*deviceState
	paths      map[string]*pathState
	transition map[string]*transitionState

	urlBuilder *URLBuilder
	publisher  EventPublisher
	logger     *logging.Logger

	unreadyErrorGrace time.Duration
	flapWindow        time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// RegistryConfig carries the merge-rule tunables from §4.1 and §6.
type RegistryConfig struct {
	UnreadyErrorGrace time.Duration
	FlapWindow        time.Duration
}

// NewRegistry constructs an empty registry.
func NewRegistry(cfg RegistryConfig, urlBuilder *URLBuilder, publisher EventPublisher, logger *logging.Logger) *Registry {
	if cfg.UnreadyErrorGrace <= 0 {
		cfg.UnreadyErrorGrace = 10 * time.Second
	}
	if cfg.FlapWindow <= 0 {
		cfg.FlapWindow = 2 * time.Second
	}
	return &Registry{
		cameras:           make(map[string]*Camera),
		devices:           make(map[string]*deviceState),
		paths:             make(map[string]*pathState),
		transition:        make(map[string]*transitionState),
		urlBuilder:        urlBuilder,
		publisher:         publisher,
		logger:            logger,
		unreadyErrorGrace: cfg.UnreadyErrorGrace,
		flapWindow:        cfg.FlapWindow,
		stopCh:            make(chan struct{}),
	}
}

// Start launches the background tick that re-evaluates unready_error_grace
// for cameras whose path has been unready for a while.
func (r *Registry) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.reevaluateAll()
			}
		}
	}()
}

// Stop halts the background re-evaluation loop.
func (r *Registry) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// OnDeviceEvent updates presence for the device behind a DeviceEvent and
// re-evaluates that camera's merged status.
func (r *Registry) OnDeviceEvent(ev DeviceEvent) {
	identifier, err := IdentifierFromDevicePath(ev.DevicePath)
	if err != nil {
		r.logger.WithField("device_path", ev.DevicePath).Debug("ignoring unsupported device path")
		return
	}

	r.mu.Lock()
	ds, ok := r.devices[identifier]
	if !ok {
		ds = &deviceState{}
		r.devices[identifier] = ds
	}
	switch ev.Kind {
	case DeviceAdded:
		ds.present = true
		ds.lastSeenAt = time.Now()
	case DeviceRemoved:
		ds.present = false
	case DeviceError:
		// presence unchanged; surfaced via status=ERROR through path grace
	}
	r.ensureCameraLocked(identifier, ev.DevicePath)
	r.mu.Unlock()

	r.reevaluate(identifier)
}

// OnPathUpdate updates MediaMTX path readiness for a camera identifier.
func (r *Registry) OnPathUpdate(identifier string, ready bool) {
	r.mu.Lock()
	ps, ok := r.paths[identifier]
	if !ok {
		ps = &pathState{}
		r.paths[identifier] = ps
	}
	if ps.ready != ready {
		ps.sinceUnready = time.Now()
	}
	if !ready && ps.sinceUnready.IsZero() {
		ps.sinceUnready = time.Now()
	}
	ps.ready = ready
	r.ensureCameraLocked(identifier, "")
	r.mu.Unlock()

	r.reevaluate(identifier)
}

func (r *Registry) ensureCameraLocked(identifier, devicePath string) {
	cam, ok := r.cameras[identifier]
	if !ok {
		cam = &Camera{Identifier: identifier, Status: StatusUnknown}
		if r.urlBuilder != nil {
			cam.StreamURLs = r.urlBuilder.Build(identifier)
		}
		cam.DisplayName = identifier
		r.cameras[identifier] = cam
		r.transition[identifier] = &transitionState{current: StatusUnknown}
	}
	if devicePath != "" {
		cam.DevicePath = devicePath
	}
}

func (r *Registry) reevaluateAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.cameras))
	for id := range r.cameras {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		r.reevaluate(id)
	}
}

// reevaluate applies the merge rule and emits camera_status_update,
// suppressing a transition identical to the one before last if it occurs
// within flap_window.
func (r *Registry) reevaluate(identifier string) {
	r.mu.Lock()
	cam, ok := r.cameras[identifier]
	if !ok {
		r.mu.Unlock()
		return
	}
	ds := r.devices[identifier]
	ps := r.paths[identifier]

	newStatus := computeStatus(ds, ps, r.unreadyErrorGrace)

	t := r.transition[identifier]
	if t == nil {
		t = &transitionState{current: StatusUnknown}
		r.transition[identifier] = t
	}

	if newStatus == t.current {
		r.mu.Unlock()
		return
	}

	flapping := newStatus == t.previous && time.Since(t.lastTransitionAt) < r.flapWindow

	cam.Status = newStatus
	if ds != nil {
		cam.LastSeenAt = ds.lastSeenAt
	}
	prev := t.current
	if !flapping {
		t.previous = prev
		t.lastTransitionAt = time.Now()
	}
	t.current = newStatus
	snapshot := cam.Clone()
	r.mu.Unlock()

	if flapping {
		return
	}

	if r.publisher != nil {
		r.publisher.Publish("camera_status_update", map[string]interface{}{
			"identifier": snapshot.Identifier,
			"status":     string(snapshot.Status),
			"previous":   string(prev),
		})
	}
}

func computeStatus(ds *deviceState, ps *pathState, grace time.Duration) Status {
	devicePresent := ds != nil && ds.present
	if ds == nil {
		return StatusUnknown
	}
	if !devicePresent {
		return StatusDisconnected
	}
	if ps == nil {
		return StatusUnknown
	}
	if ps.ready {
		return StatusConnected
	}
	if time.Since(ps.sinceUnready) > grace {
		return StatusError
	}
	return StatusUnknown
}

// ListResult is the copy-on-read snapshot returned by List.
type ListResult struct {
	Cameras       []*Camera
	Total         int
	ConnectedCount int
}

// List returns a consistent snapshot of every known camera.
func (r *Registry) List() ListResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := ListResult{Cameras: make([]*Camera, 0, len(r.cameras))}
	for _, cam := range r.cameras {
		clone := cam.Clone()
		result.Cameras = append(result.Cameras, clone)
		if clone.Status == StatusConnected {
			result.ConnectedCount++
		}
	}
	result.Total = len(result.Cameras)
	return result
}

// Get returns one camera record or ErrNotFound.
func (r *Registry) Get(identifier string) (*Camera, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cam, ok := r.cameras[identifier]
	if !ok {
		return nil, &ErrNotFound{Identifier: identifier}
	}
	return cam.Clone(), nil
}

// SetCapabilities records a capability probe result for the camera behind
// devicePath, if one exists.
func (r *Registry) SetCapabilities(devicePath string, caps Capabilities) {
	identifier, err := IdentifierFromDevicePath(devicePath)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cam, ok := r.cameras[identifier]; ok {
		cam.Capabilities = caps
	}
}

// ResolveDevice returns the device path for a camera identifier.
func (r *Registry) ResolveDevice(identifier string) (string, error) {
	return DevicePathFromIdentifier(identifier)
}

// ResolveIdentifier returns the camera identifier for a device path.
func (r *Registry) ResolveIdentifier(devicePath string) (string, error) {
	return IdentifierFromDevicePath(devicePath)
}
