package health

// RefreshMediaMTX records the MediaMTX client's reachability as a
// component, driven by the same circuit-breaker/health-probe result the
// control plane's get_system_status surfaces.
func (hm *HealthMonitor) RefreshMediaMTX(reachable bool, circuitState string) {
	status := HealthStatusHealthy
	message := "MediaMTX reachable, circuit " + circuitState
	if !reachable {
		status = HealthStatusDegraded
		message = "MediaMTX unreachable, circuit " + circuitState
	}
	hm.UpdateComponentStatus("mediamtx", status, message, map[string]interface{}{
		"reachable":     reachable,
		"circuit_state": circuitState,
	})
}

// RefreshCameras records the Camera Registry's aggregate connectivity as a
// component. Known cameras with none connected is reported degraded rather
// than unhealthy; with no cameras known at all the component is healthy,
// since the gateway itself is still fully operational with zero cameras
// attached.
func (hm *HealthMonitor) RefreshCameras(total, connected int) {
	status := HealthStatusHealthy
	message := "cameras nominal"
	if total > 0 && connected == 0 {
		status = HealthStatusDegraded
		message = "no cameras connected"
	}
	hm.UpdateComponentStatus("cameras", status, message, map[string]interface{}{
		"total":     total,
		"connected": connected,
	})
}
