package config

import "time"

// ServerConfig is the RPC transport surface (§6): bind address, frame path,
// and the session-layer tunables (C13).
type ServerConfig struct {
	Address            string        `mapstructure:"address"`
	Port               int           `mapstructure:"port"`
	WSPath             string        `mapstructure:"ws_path"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatMiss      int           `mapstructure:"heartbeat_miss"`
	MaxInFlight        int           `mapstructure:"max_in_flight"`
	MaxFrameBytes      int64         `mapstructure:"max_frame_bytes"`
	OutboundStallTimeout time.Duration `mapstructure:"outbound_stall_timeout"`
}

// AuthAlgorithm is the JWT signing algorithm accepted by the Auth Verifier (C3).
type AuthAlgorithm string

const (
	AuthHS256 AuthAlgorithm = "hs256"
	AuthRS256 AuthAlgorithm = "rs256"
)

// AuthConfig configures the Auth Verifier (C3): algorithm, key material, and
// clock-skew tolerance for exp/nbf checks.
type AuthConfig struct {
	Algorithm     AuthAlgorithm `mapstructure:"algorithm"`
	Secret        string        `mapstructure:"secret"`
	PublicKeyPEM  string        `mapstructure:"public_key_pem"`
	JWKSURL       string        `mapstructure:"jwks_url"`
	JWKSRefresh   time.Duration `mapstructure:"jwks_refresh"`
	ClockSkewS    int           `mapstructure:"clock_skew_s"`
}

// MediaMTXConfig configures the MediaMTX Client (C5): endpoint, timeouts,
// retry budget, and circuit breaker thresholds. RTSPPort/HLSPort/WebRTCPort
// and Host feed the Stream URL Builder (C7) directly; BaseURL is the
// separate control-plane API endpoint the client issues requests against.
type MediaMTXConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryMax       int           `mapstructure:"retry_max"`
	FailureStreak  int           `mapstructure:"failure_streak"`
	OpenCooldown   time.Duration `mapstructure:"open_cooldown"`

	Host       string `mapstructure:"host"`
	RTSPPort   int    `mapstructure:"rtsp_port"`
	HLSPort    int    `mapstructure:"hls_port"`
	WebRTCPort int    `mapstructure:"webrtc_port"`
	TLS        bool   `mapstructure:"tls"`
}

// StorageConfig configures recording/snapshot directories and the usage
// thresholds the Health & Metrics component (C14) classifies against.
type StorageConfig struct {
	RecordingsDir string `mapstructure:"recordings_dir"`
	SnapshotsDir  string `mapstructure:"snapshots_dir"`
	WarnPercent   int    `mapstructure:"warn_percent"`
	BlockPercent  int    `mapstructure:"block_percent"`
}

// CameraConfig configures the Device Monitor (C4) and Camera Registry (C6)
// merge-rule tunables from §4.1/§4.10.
type CameraConfig struct {
	UnreadyErrorGrace time.Duration `mapstructure:"unready_error_grace"`
	FlapWindow        time.Duration `mapstructure:"flap_window"`
	DebounceWindow    time.Duration `mapstructure:"debounce_window"`
}

// StreamURLConfig is the subset of server/mediamtx settings the Stream URL
// Builder (C7) needs to assemble canonical camera URLs.
type StreamURLConfig struct {
	Host       string
	RTSPPort   int
	HLSPort    int
	WebRTCPort int
	TLS        bool
}

// RecordingConfig configures the Recording Manager (C8).
type RecordingConfig struct {
	DefaultFormat string        `mapstructure:"default_format"`
	StopSettle    time.Duration `mapstructure:"stop_settle"`
}

// EventsConfig configures the Event Bus (C11).
type EventsConfig struct {
	QueueSize            int           `mapstructure:"queue_size"`
	OutboundStallTimeout time.Duration `mapstructure:"outbound_stall_timeout"`
}

// LoggingConfig configures the Logger (C2).
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Config is the top-level, fully-merged configuration tree for the gateway,
// matching the recognized option groups in spec §6.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	MediaMTX  MediaMTXConfig  `mapstructure:"mediamtx"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Camera    CameraConfig    `mapstructure:"camera"`
	Recording RecordingConfig `mapstructure:"recording"`
	Events    EventsConfig    `mapstructure:"events"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StreamURLs derives the Stream URL Builder's narrow config from the full
// tree's mediamtx section.
func (c *Config) StreamURLs() StreamURLConfig {
	return StreamURLConfig{
		Host:       c.MediaMTX.Host,
		RTSPPort:   c.MediaMTX.RTSPPort,
		HLSPort:    c.MediaMTX.HLSPort,
		WebRTCPort: c.MediaMTX.WebRTCPort,
		TLS:        c.MediaMTX.TLS,
	}
}
