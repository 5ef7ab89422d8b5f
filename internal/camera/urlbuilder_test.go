package camera

import (
	"testing"

	"github.com/meridian-video/camera-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierFromDevicePath(t *testing.T) {
	id, err := IdentifierFromDevicePath("/dev/video0")
	require.NoError(t, err)
	assert.Equal(t, "camera0", id)

	_, err = IdentifierFromDevicePath("/dev/ttyUSB0")
	assert.Error(t, err)
}

func TestDevicePathFromIdentifierRoundTrip(t *testing.T) {
	for _, n := range []string{"0", "1", "42"} {
		id := "camera" + n
		path, err := DevicePathFromIdentifier(id)
		require.NoError(t, err)
		back, err := IdentifierFromDevicePath(path)
		require.NoError(t, err)
		assert.Equal(t, id, back)
	}
}

func TestURLBuilderBuild(t *testing.T) {
	b := NewURLBuilder(config.StreamURLConfig{Host: "example.com", RTSPPort: 8554, HLSPort: 8888, WebRTCPort: 8889})
	urls := b.Build("camera3")
	assert.Equal(t, "rtsp://example.com:8554/camera3", urls.RTSP)
	assert.Equal(t, "http://example.com:8888/camera3/index.m3u8", urls.HLS)
	assert.Equal(t, "http://example.com:8889/camera3/whep", urls.WebRTC)
}
