package health

import (
	"fmt"

	"github.com/meridian-video/camera-gateway/internal/catalog"
)

// ClassifyDirectory maps a directory's disk utilization to a HealthStatus
// against the configured storage thresholds (spec §12): below warnPercent
// is healthy, at or above warnPercent but below blockPercent is degraded,
// at or above blockPercent is unhealthy.
func ClassifyDirectory(dir string, warnPercent, blockPercent int) (HealthStatus, float64, error) {
	usedPercent, err := catalog.DiskUsage(dir)
	if err != nil {
		return HealthStatusDegraded, 0, err
	}
	switch {
	case usedPercent >= float64(blockPercent):
		return HealthStatusUnhealthy, usedPercent, nil
	case usedPercent >= float64(warnPercent):
		return HealthStatusDegraded, usedPercent, nil
	default:
		return HealthStatusHealthy, usedPercent, nil
	}
}

// RefreshStorage re-probes the recordings and snapshots directories and
// records their classification as components, so GetHealth/GetDetailedHealth
// reflect the current storage pressure without a caller having to poll
// get_storage_info separately.
func (hm *HealthMonitor) RefreshStorage(recordingsDir, snapshotsDir string, warnPercent, blockPercent int) {
	for _, d := range []struct{ name, dir string }{
		{"recordings_storage", recordingsDir},
		{"snapshots_storage", snapshotsDir},
	} {
		status, usedPercent, err := ClassifyDirectory(d.dir, warnPercent, blockPercent)
		message := fmt.Sprintf("%.1f%% used", usedPercent)
		if err != nil {
			message = err.Error()
		}
		hm.UpdateComponentStatus(d.name, status, message, map[string]interface{}{
			"used_percent": usedPercent,
			"directory":    d.dir,
		})
	}
}
