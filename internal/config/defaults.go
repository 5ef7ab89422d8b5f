package config

import "time"

// defaultConfig returns the baseline configuration applied before a YAML
// file and environment overrides are layered on top, matching the spec §6
// defaults named throughout §4.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:              "0.0.0.0",
			Port:                 8002,
			WSPath:               "/ws",
			HeartbeatInterval:    30 * time.Second,
			HeartbeatMiss:        2,
			MaxInFlight:          64,
			MaxFrameBytes:        256 * 1024,
			OutboundStallTimeout: 20 * time.Second,
		},
		Auth: AuthConfig{
			Algorithm:   AuthHS256,
			ClockSkewS:  60,
			JWKSRefresh: 15 * time.Minute,
		},
		MediaMTX: MediaMTXConfig{
			BaseURL:        "http://127.0.0.1:9997",
			RequestTimeout: 3 * time.Second,
			RetryMax:       3,
			FailureStreak:  5,
			OpenCooldown:   30 * time.Second,
			Host:           "127.0.0.1",
			RTSPPort:       8554,
			HLSPort:        8888,
			WebRTCPort:     8889,
		},
		Storage: StorageConfig{
			RecordingsDir: "/opt/camera-gateway/recordings",
			SnapshotsDir:  "/opt/camera-gateway/snapshots",
			WarnPercent:   80,
			BlockPercent:  90,
		},
		Camera: CameraConfig{
			UnreadyErrorGrace: 10 * time.Second,
			FlapWindow:        2 * time.Second,
			DebounceWindow:    500 * time.Millisecond,
		},
		Recording: RecordingConfig{
			DefaultFormat: "mp4",
			StopSettle:    5 * time.Second,
		},
		Events: EventsConfig{
			QueueSize:            256,
			OutboundStallTimeout: 20 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
