package server

import (
	"context"
	"time"
)

// pathPollInterval is how often MediaMTX's path list is polled to detect
// readiness transitions; the teacher polled similarly rather than relying
// solely on webhook callbacks.
const pathPollInterval = 2 * time.Second

// runPathReadinessLoop polls MediaMTX's path list and feeds readiness
// transitions into the registry, which has no other way to learn that a
// camera's stream became (un)ready.
func (s *Server) runPathReadinessLoop(ctx context.Context) {
	ticker := time.NewTicker(pathPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollPaths(ctx)
		}
	}
}

func (s *Server) pollPaths(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, pathPollInterval)
	defer cancel()

	paths, err := s.mediaClient.ListPaths(pollCtx)
	if err != nil {
		s.logger.WithError(err).Debug("path list poll failed")
		return
	}
	for _, p := range paths {
		s.registry.OnPathUpdate(p.Name, p.Ready)
	}
}

// runHealthRefreshLoop periodically re-probes storage, MediaMTX, and camera
// connectivity into the Health Monitor's component registry.
func (s *Server) runHealthRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		s.refreshHealth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) refreshHealth(ctx context.Context) {
	cfg := s.cfg.Config()
	s.healthMonitor.RefreshStorage(cfg.Storage.RecordingsDir, cfg.Storage.SnapshotsDir, cfg.Storage.WarnPercent, cfg.Storage.BlockPercent)

	healthCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	status, err := s.mediaClient.Health(healthCtx)
	reachable := err == nil && status != nil && status.Reachable
	s.healthMonitor.RefreshMediaMTX(reachable, string(s.mediaClient.CircuitState()))

	list := s.registry.List()
	s.healthMonitor.RefreshCameras(list.Total, list.ConnectedCount)
}
