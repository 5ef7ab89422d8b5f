/*
Manager loads the YAML configuration tree via viper, applies environment
overrides, and watches the file for hot reload. Defaults are re-applied
after Unmarshal so an incomplete YAML section's zero values don't clobber
viper's defaults -- a bug the teacher's own history records and that any
struct-unmarshal-then-zero-fill load path reintroduces if skipped.
*/
package config

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
	"github.com/spf13/viper"
)

// Manager owns the current configuration snapshot and, when enabled,
// reloads it on file changes and notifies registered callbacks.
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string

	callbacks []func(*Config)
	cbMu      sync.Mutex

	watcher       *fsnotify.Watcher
	watcherActive int32
	watcherMu     sync.RWMutex
	stopChan      chan struct{}
	wg            sync.WaitGroup

	logger *logging.Logger
}

// NewManager constructs an unloaded configuration manager.
func NewManager() *Manager {
	return &Manager{
		logger:   logging.GetLogger("config"),
		stopChan: make(chan struct{}),
	}
}

// Load reads configPath with viper, applies environment overrides under the
// CAMERA_GATEWAY_ prefix, validates the result, and stores it as current.
func (m *Manager) Load(configPath string) error {
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("configuration file not found: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("CAMERA_GATEWAY")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("cannot read configuration file %q: %w", configPath, err)
	}

	cfg := *defaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	applyDefaultsAfterUnmarshal(&cfg)

	if err := Validate(&cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m.mu.Lock()
	old := m.config
	m.config = &cfg
	m.configPath = configPath
	m.mu.Unlock()

	m.notify(old, &cfg)
	m.logger.WithFields(logging.Fields{"config_path": configPath}).Info("configuration loaded")
	return nil
}

// applyDefaultsAfterUnmarshal restores zero-valued fields that viper's
// Unmarshal overwrote because the YAML document specified its parent
// section without every leaf key.
func applyDefaultsAfterUnmarshal(cfg *Config) {
	d := defaultConfig()

	if cfg.Server.WSPath == "" {
		cfg.Server.WSPath = d.Server.WSPath
	}
	if cfg.Server.HeartbeatInterval == 0 {
		cfg.Server.HeartbeatInterval = d.Server.HeartbeatInterval
	}
	if cfg.Server.HeartbeatMiss == 0 {
		cfg.Server.HeartbeatMiss = d.Server.HeartbeatMiss
	}
	if cfg.Server.MaxInFlight == 0 {
		cfg.Server.MaxInFlight = d.Server.MaxInFlight
	}
	if cfg.Server.MaxFrameBytes == 0 {
		cfg.Server.MaxFrameBytes = d.Server.MaxFrameBytes
	}
	if cfg.Server.OutboundStallTimeout == 0 {
		cfg.Server.OutboundStallTimeout = d.Server.OutboundStallTimeout
	}
	if cfg.Auth.Algorithm == "" {
		cfg.Auth.Algorithm = d.Auth.Algorithm
	}
	if cfg.Auth.ClockSkewS == 0 {
		cfg.Auth.ClockSkewS = d.Auth.ClockSkewS
	}
	if cfg.Auth.JWKSRefresh == 0 {
		cfg.Auth.JWKSRefresh = d.Auth.JWKSRefresh
	}
	if cfg.MediaMTX.BaseURL == "" {
		cfg.MediaMTX.BaseURL = d.MediaMTX.BaseURL
	}
	if cfg.MediaMTX.RequestTimeout == 0 {
		cfg.MediaMTX.RequestTimeout = d.MediaMTX.RequestTimeout
	}
	if cfg.MediaMTX.RetryMax == 0 {
		cfg.MediaMTX.RetryMax = d.MediaMTX.RetryMax
	}
	if cfg.MediaMTX.FailureStreak == 0 {
		cfg.MediaMTX.FailureStreak = d.MediaMTX.FailureStreak
	}
	if cfg.MediaMTX.OpenCooldown == 0 {
		cfg.MediaMTX.OpenCooldown = d.MediaMTX.OpenCooldown
	}
	if cfg.MediaMTX.Host == "" {
		cfg.MediaMTX.Host = d.MediaMTX.Host
	}
	if cfg.MediaMTX.RTSPPort == 0 {
		cfg.MediaMTX.RTSPPort = d.MediaMTX.RTSPPort
	}
	if cfg.MediaMTX.HLSPort == 0 {
		cfg.MediaMTX.HLSPort = d.MediaMTX.HLSPort
	}
	if cfg.MediaMTX.WebRTCPort == 0 {
		cfg.MediaMTX.WebRTCPort = d.MediaMTX.WebRTCPort
	}
	if cfg.Storage.RecordingsDir == "" {
		cfg.Storage.RecordingsDir = d.Storage.RecordingsDir
	}
	if cfg.Storage.SnapshotsDir == "" {
		cfg.Storage.SnapshotsDir = d.Storage.SnapshotsDir
	}
	if cfg.Storage.WarnPercent == 0 {
		cfg.Storage.WarnPercent = d.Storage.WarnPercent
	}
	if cfg.Storage.BlockPercent == 0 {
		cfg.Storage.BlockPercent = d.Storage.BlockPercent
	}
	if cfg.Camera.UnreadyErrorGrace == 0 {
		cfg.Camera.UnreadyErrorGrace = d.Camera.UnreadyErrorGrace
	}
	if cfg.Camera.FlapWindow == 0 {
		cfg.Camera.FlapWindow = d.Camera.FlapWindow
	}
	if cfg.Camera.DebounceWindow == 0 {
		cfg.Camera.DebounceWindow = d.Camera.DebounceWindow
	}
	if cfg.Recording.DefaultFormat == "" {
		cfg.Recording.DefaultFormat = d.Recording.DefaultFormat
	}
	if cfg.Recording.StopSettle == 0 {
		cfg.Recording.StopSettle = d.Recording.StopSettle
	}
	if cfg.Events.QueueSize == 0 {
		cfg.Events.QueueSize = d.Events.QueueSize
	}
	if cfg.Events.OutboundStallTimeout == 0 {
		cfg.Events.OutboundStallTimeout = d.Events.OutboundStallTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
}

// Config returns the current configuration snapshot. Callers must not
// mutate it; it is shared with any concurrent StartWatching reload.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnUpdate registers a callback invoked with the new configuration after a
// successful hot reload.
func (m *Manager) OnUpdate(cb func(*Config)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func (m *Manager) notify(old, next *Config) {
	if old == nil {
		return
	}
	m.cbMu.Lock()
	cbs := append([]func(*Config){}, m.callbacks...)
	m.cbMu.Unlock()
	for _, cb := range cbs {
		cb(next)
	}
}

// StartWatching enables hot reload: the config file's directory is watched
// and a changed file triggers a debounced reload.
func (m *Manager) StartWatching() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	m.mu.RLock()
	configPath := m.configPath
	m.mu.RUnlock()
	if configPath == "" {
		watcher.Close()
		return fmt.Errorf("load a configuration file before watching")
	}

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	m.watcherMu.Lock()
	m.watcher = watcher
	m.watcherMu.Unlock()
	atomic.StoreInt32(&m.watcherActive, 1)

	m.wg.Add(1)
	go m.watchLoop(configPath)
	m.logger.Info("configuration hot reload enabled")
	return nil
}

func (m *Manager) watchLoop(configPath string) {
	defer m.wg.Done()

	var reloadTimer *time.Timer
	for {
		m.watcherMu.RLock()
		w := m.watcher
		m.watcherMu.RUnlock()
		if w == nil || atomic.LoadInt32(&m.watcherActive) == 0 {
			return
		}

		select {
		case <-m.stopChan:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Name != configPath {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(100*time.Millisecond, func() {
					if err := m.Load(configPath); err != nil {
						m.logger.WithError(err).Error("configuration reload failed")
					}
				})
			case ev.Op&fsnotify.Remove != 0:
				m.logger.Warn("configuration file removed, hot reload disabled")
				m.StopWatching()
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			m.logger.WithError(err).Warn("configuration watcher error")
		}
	}
}

// StopWatching disables hot reload, if enabled.
func (m *Manager) StopWatching() {
	if !atomic.CompareAndSwapInt32(&m.watcherActive, 1, 0) {
		return
	}
	m.watcherMu.Lock()
	w := m.watcher
	m.watcher = nil
	m.watcherMu.Unlock()
	if w != nil {
		w.Close()
	}
}

// Stop tears down hot reload and waits for the watch goroutine to exit.
func (m *Manager) Stop(ctx context.Context) error {
	select {
	case <-m.stopChan:
	default:
		close(m.stopChan)
	}
	m.StopWatching()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
