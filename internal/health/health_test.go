package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHealthHealthyWithNoComponents(t *testing.T) {
	hm := NewHealthMonitor("test")
	resp, err := hm.GetHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthStatusHealthy, resp.Status)
}

func TestUpdateComponentStatusDegradesOverall(t *testing.T) {
	hm := NewHealthMonitor("test")
	hm.UpdateComponentStatus("mediamtx", HealthStatusDegraded, "unreachable", nil)

	resp, err := hm.GetHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthStatusDegraded, resp.Status)
}

func TestUnhealthyComponentFailsReadiness(t *testing.T) {
	hm := NewHealthMonitor("test")
	hm.UpdateComponentStatus("cameras", HealthStatusUnhealthy, "registry down", nil)

	ready, err := hm.IsReady(context.Background())
	require.NoError(t, err)
	assert.False(t, ready.Ready)
}

func TestIsAliveAlwaysTrue(t *testing.T) {
	hm := NewHealthMonitor("test")
	alive, err := hm.IsAlive(context.Background())
	require.NoError(t, err)
	assert.True(t, alive.Alive)
}

func TestClassifyDirectoryExistingPathReturnsKnownStatus(t *testing.T) {
	dir := t.TempDir()
	status, _, err := ClassifyDirectory(dir, 80, 90)
	require.NoError(t, err)
	assert.Contains(t, []HealthStatus{HealthStatusHealthy, HealthStatusDegraded, HealthStatusUnhealthy}, status)
}

func TestClassifyDirectoryMissingPathErrors(t *testing.T) {
	_, _, err := ClassifyDirectory(filepath.Join(t.TempDir(), "does-not-exist"), 80, 90)
	assert.Error(t, err)
}

func TestRefreshStorageRecordsBothDirectories(t *testing.T) {
	hm := NewHealthMonitor("test")
	recordings := t.TempDir()
	snapshots := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(recordings, "f"), []byte("x"), 0o644))

	hm.RefreshStorage(recordings, snapshots, 80, 90)

	detailed, err := hm.GetDetailedHealth(context.Background())
	require.NoError(t, err)
	names := map[string]bool{}
	for _, c := range detailed.Components {
		names[c.Name] = true
	}
	assert.True(t, names["recordings_storage"])
	assert.True(t, names["snapshots_storage"])
}

func TestRefreshMediaMTXDegradesWhenUnreachable(t *testing.T) {
	hm := NewHealthMonitor("test")
	hm.RefreshMediaMTX(false, "open")
	resp, err := hm.GetHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthStatusDegraded, resp.Status)
}

func TestRefreshCamerasDegradesWithNoneConnected(t *testing.T) {
	hm := NewHealthMonitor("test")
	hm.RefreshCameras(2, 0)
	resp, err := hm.GetHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthStatusDegraded, resp.Status)
}
