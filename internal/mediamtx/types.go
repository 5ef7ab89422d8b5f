/*
Package mediamtx implements the typed client (C5) for the external MediaMTX
media server: path create/delete/get/list and health, with retry/backoff and
circuit-breaker protection.
*/
package mediamtx

import "time"

// MediaPath is the gateway's read-only view of a MediaMTX path, keyed by
// camera identifier. The registry treats it as input; only the client
// mutates MediaMTX's own state via CreatePath/DeletePath.
type MediaPath struct {
	Name          string `json:"name"`
	Source        string `json:"source"`
	Ready         bool   `json:"ready"`
	ReaderCount   int    `json:"reader_count"`
	BytesReceived int64  `json:"bytes_received"`
}

// HealthStatus is the normalized result of a MediaMTX health probe.
type HealthStatus struct {
	Reachable bool
	Paths     int
	CheckedAt time.Time
}

// CircuitBreakerConfig controls the MediaMTX client's circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_streak"`
	RecoveryTimeout  time.Duration `mapstructure:"open_cooldown"`
}

// pathListResponse mirrors MediaMTX's /v3/paths/list envelope, reading only
// the field names the gateway depends on: name, source, ready, readers,
// bytesReceived.
type pathListResponse struct {
	ItemCount int                `json:"itemCount"`
	Items     []rawPathResponse `json:"items"`
}

type rawPathResponse struct {
	Name          string      `json:"name"`
	Source        interface{} `json:"source"`
	Ready         bool        `json:"ready"`
	Readers       []any       `json:"readers"`
	BytesReceived int64       `json:"bytesReceived"`
}

func (r rawPathResponse) toMediaPath() *MediaPath {
	return &MediaPath{
		Name:          r.Name,
		Source:        sourceString(r.Source),
		Ready:         r.Ready,
		ReaderCount:   len(r.Readers),
		BytesReceived: r.BytesReceived,
	}
}

func sourceString(source interface{}) string {
	switch v := source.(type) {
	case string:
		return v
	case map[string]interface{}:
		if t, ok := v["type"].(string); ok {
			return t
		}
	}
	return ""
}
