package camera

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/meridian-video/camera-gateway/internal/config"
)

var devicePathPattern = regexp.MustCompile(`^/dev/video(\d+)$`)
var identifierPattern = regexp.MustCompile(`^camera(\d+)$`)

// ErrUnsupportedDevicePath is returned when a device path does not match
// the /dev/video{N} shape the identifier mapping requires.
type ErrUnsupportedDevicePath struct {
	Path string
}

func (e *ErrUnsupportedDevicePath) Error() string {
	return fmt.Sprintf("unsupported device path: %s", e.Path)
}

// IdentifierFromDevicePath implements the bijective mapping
// /dev/video{N} <-> camera{N}. Any other shape is rejected.
func IdentifierFromDevicePath(devicePath string) (string, error) {
	m := devicePathPattern.FindStringSubmatch(devicePath)
	if m == nil {
		return "", &ErrUnsupportedDevicePath{Path: devicePath}
	}
	return "camera" + m[1], nil
}

// DevicePathFromIdentifier is the inverse of IdentifierFromDevicePath.
func DevicePathFromIdentifier(identifier string) (string, error) {
	m := identifierPattern.FindStringSubmatch(identifier)
	if m == nil {
		return "", &ErrUnsupportedDevicePath{Path: identifier}
	}
	return "/dev/video" + m[1], nil
}

// DeviceNumber extracts the numeric suffix N from camera{N}, or -1 if the
// identifier is not well-formed.
func DeviceNumber(identifier string) int {
	m := identifierPattern.FindStringSubmatch(identifier)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}

// URLBuilder constructs canonical RTSP/HLS/WebRTC URLs (C7) from camera
// identity and the configured MediaMTX host/ports.
type URLBuilder struct {
	cfg config.StreamURLConfig
}

// NewURLBuilder constructs a URLBuilder from the static stream URL config.
func NewURLBuilder(cfg config.StreamURLConfig) *URLBuilder {
	return &URLBuilder{cfg: cfg}
}

// Build returns the three canonical URLs for a camera identifier.
func (b *URLBuilder) Build(identifier string) StreamURLs {
	scheme := "http"
	if b.cfg.TLS {
		scheme = "https"
	}
	return StreamURLs{
		RTSP:   fmt.Sprintf("rtsp://%s:%d/%s", b.cfg.Host, b.cfg.RTSPPort, identifier),
		HLS:    fmt.Sprintf("%s://%s:%d/%s/index.m3u8", scheme, b.cfg.Host, b.cfg.HLSPort, identifier),
		WebRTC: fmt.Sprintf("%s://%s:%d/%s/whep", scheme, b.cfg.Host, b.cfg.WebRTCPort, identifier),
	}
}
