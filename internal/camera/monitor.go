/*
Device Monitor (C4): observes the OS for appearance/disappearance of local
video devices and emits presence events. fsnotify is the default, portable
mechanism; udev is used when available on bare metal. Both satisfy the
DeviceSource interface. FsnotifyMonitor debounces duplicate add/remove events
for the same path within debounce_window; UdevMonitor emits no real-time
events and only reports presence through Reconcile.
*/
package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/meridian-video/camera-gateway/internal/logging"
)

// FsnotifyMonitor implements DeviceSource using fsnotify, watching /dev for
// device-node create/remove/change events filtered to "video*" paths.
type FsnotifyMonitor struct {
	logger         *logging.Logger
	watcher        *fsnotify.Watcher
	events         chan DeviceEvent
	stopChan       chan struct{}
	running        int32
	done           sync.WaitGroup
	debounceWindow time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewFsnotifyMonitor constructs a monitor with the given debounce window
// (spec default 500ms).
func NewFsnotifyMonitor(logger *logging.Logger, debounceWindow time.Duration) *FsnotifyMonitor {
	if logger == nil {
		logger = logging.NewLogger("device-monitor")
	}
	if debounceWindow <= 0 {
		debounceWindow = 500 * time.Millisecond
	}
	return &FsnotifyMonitor{
		logger:         logger,
		events:         make(chan DeviceEvent, 100),
		stopChan:       make(chan struct{}),
		debounceWindow: debounceWindow,
		lastSeen:       make(map[string]time.Time),
	}
}

func (f *FsnotifyMonitor) Events() <-chan DeviceEvent { return f.events }

func (f *FsnotifyMonitor) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !atomic.CompareAndSwapInt32(&f.running, 0, 1) {
		return fmt.Errorf("device monitor is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		atomic.StoreInt32(&f.running, 0)
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	f.watcher = watcher
	f.events = make(chan DeviceEvent, 100)
	f.stopChan = make(chan struct{})

	if err := f.watcher.Add("/dev"); err != nil {
		f.logger.WithError(err).Warn("fsnotify unavailable on /dev, events will not be emitted")
		f.watcher.Close()
		f.watcher = nil
	}

	f.done.Add(1)
	go f.eventLoop(ctx)
	return nil
}

func (f *FsnotifyMonitor) Stop() error {
	if !atomic.CompareAndSwapInt32(&f.running, 1, 0) {
		return nil
	}
	select {
	case <-f.stopChan:
	default:
		close(f.stopChan)
	}
	f.done.Wait()
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

// Reconcile lists /dev/video* paths present right now, for level-triggered
// recovery after a restart.
func (f *FsnotifyMonitor) Reconcile() ([]string, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "video") {
			paths = append(paths, filepath.Join("/dev", e.Name()))
		}
	}
	return paths, nil
}

func (f *FsnotifyMonitor) eventLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.WithField("panic", fmt.Sprintf("%v", r)).Error("recovered from panic in device monitor loop")
		}
		close(f.events)
		f.done.Done()
	}()

	if f.watcher == nil {
		select {
		case <-ctx.Done():
		case <-f.stopChan:
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopChan:
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			f.processEvent(ev)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.WithError(err).Warn("fsnotify watcher error")
		}
	}
}

func (f *FsnotifyMonitor) processEvent(ev fsnotify.Event) {
	if !strings.HasPrefix(filepath.Base(ev.Name), "video") {
		return
	}

	var kind DeviceEventKind
	switch {
	case ev.Op&fsnotify.Create != 0:
		kind = DeviceAdded
	case ev.Op&fsnotify.Remove != 0:
		kind = DeviceRemoved
	case ev.Op&fsnotify.Write != 0 || ev.Op&fsnotify.Chmod != 0:
		return // attribute-only change; not a presence transition
	default:
		return
	}

	if f.debounced(ev.Name, kind) {
		return
	}

	select {
	case f.events <- DeviceEvent{Kind: kind, DevicePath: ev.Name}:
	default:
		f.logger.WithFields(logging.Fields{
			"device_path": ev.Name,
			"kind":        kind,
		}).Warn("device event dropped, channel full")
	}
}

// debounced coalesces repeated events for the same path+kind within the
// debounce window, keeping only the latest.
func (f *FsnotifyMonitor) debounced(path string, kind DeviceEventKind) bool {
	key := string(kind) + ":" + path
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	if last, ok := f.lastSeen[key]; ok && now.Sub(last) < f.debounceWindow {
		f.lastSeen[key] = now
		return true
	}
	f.lastSeen[key] = now
	return false
}

// UdevMonitor is a thin alternative DeviceSource for bare-metal hosts where
// udevadm is installed; its Reconcile lists /dev/video* directly (udevadm is
// only checked for presence) and its event loop just waits for stop, since
// real-time netlink events require CGO bindings out of scope here.
type UdevMonitor struct {
	logger   *logging.Logger
	events   chan DeviceEvent
	stopChan chan struct{}
	running  int32
	done     sync.WaitGroup
}

func NewUdevMonitor(logger *logging.Logger) (*UdevMonitor, error) {
	if !udevadmAvailable() {
		return nil, fmt.Errorf("udevadm not found")
	}
	return &UdevMonitor{
		logger:   logger,
		events:   make(chan DeviceEvent, 100),
		stopChan: make(chan struct{}),
	}, nil
}

func (u *UdevMonitor) Events() <-chan DeviceEvent { return u.events }

func (u *UdevMonitor) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&u.running, 0, 1) {
		return fmt.Errorf("device monitor is already running")
	}
	u.events = make(chan DeviceEvent, 100)
	u.stopChan = make(chan struct{})
	u.done.Add(1)
	go func() {
		defer u.done.Done()
		defer close(u.events)
		select {
		case <-ctx.Done():
		case <-u.stopChan:
		}
	}()
	return nil
}

func (u *UdevMonitor) Stop() error {
	if !atomic.CompareAndSwapInt32(&u.running, 1, 0) {
		return nil
	}
	close(u.stopChan)
	u.done.Wait()
	return nil
}

func (u *UdevMonitor) Reconcile() ([]string, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "video") {
			paths = append(paths, filepath.Join("/dev", e.Name()))
		}
	}
	return paths, nil
}

func udevadmAvailable() bool {
	for _, p := range []string{"/usr/bin/udevadm", "/sbin/udevadm", "/bin/udevadm"} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

func isContainerEnvironment() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	content, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	for _, kw := range []string{"docker", "containerd", "kubepods", "crio"} {
		if strings.Contains(string(content), kw) {
			return true
		}
	}
	return false
}

// NewDefaultMonitor picks fsnotify in containers (the common, portable
// case) and udev on bare metal when available, falling back to fsnotify
// otherwise.
func NewDefaultMonitor(logger *logging.Logger, debounceWindow time.Duration) DeviceSource {
	if !isContainerEnvironment() {
		if m, err := NewUdevMonitor(logger); err == nil {
			return m
		}
	}
	return NewFsnotifyMonitor(logger, debounceWindow)
}
