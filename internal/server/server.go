/*
Package server is the composition root (replaces the teacher's cmd/server
main.go layering): it loads configuration, constructs every domain
component in dependency order, wires them into the RPC dispatch engine and
the file-serving/health HTTP surfaces, and owns the process's run/shutdown
lifecycle.
*/
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/meridian-video/camera-gateway/internal/camera"
	"github.com/meridian-video/camera-gateway/internal/catalog"
	"github.com/meridian-video/camera-gateway/internal/config"
	"github.com/meridian-video/camera-gateway/internal/eventbus"
	"github.com/meridian-video/camera-gateway/internal/health"
	"github.com/meridian-video/camera-gateway/internal/logging"
	"github.com/meridian-video/camera-gateway/internal/mediamtx"
	"github.com/meridian-video/camera-gateway/internal/recording"
	"github.com/meridian-video/camera-gateway/internal/rpc"
	"github.com/meridian-video/camera-gateway/internal/security"
	"github.com/meridian-video/camera-gateway/internal/snapshot"
)

const serverName = "camera-gateway"

// Version is stamped at build time (see cmd/camera-gateway).
var Version = "dev"

// Server owns every constructed component and the two HTTP listeners
// (control-plane websocket + file serving, and the separate health probe
// surface) for their lifetime.
type Server struct {
	cfg       *config.Manager
	logger    *logging.Logger
	startedAt time.Time

	deviceSource  camera.DeviceSource
	registry      *camera.Registry
	capDispatcher *camera.CapabilityDispatcher
	urlBuilder    *camera.URLBuilder
	mediaClient   *mediamtx.Client

	recordings *recording.Manager
	snapshots  *snapshot.Manager
	catalogSvc *catalog.Catalog
	bus        *eventbus.Bus

	jwt         *security.JWTHandler
	sessions    *security.SessionManager
	permissions *security.PermissionChecker
	rateLimiter *security.EnhancedRateLimiter
	audit       *security.SecurityAuditLogger
	validator   *security.InputValidator

	pool      camera.BoundedWorkerPool
	rpcEngine *rpc.Engine
	rpcServer *rpc.Server

	healthMonitor *health.HealthMonitor
	healthServer  *health.HTTPHealthServer

	httpServer *http.Server
}

// New loads configPath and constructs every component, wiring domain
// dependencies in the order the spec's components depend on each other:
// registry before recording/snapshot (they look cameras up), the bus before
// anything that publishes to it, security before the RPC engine, the RPC
// engine before the server that accepts connections.
func New(configPath string) (*Server, error) {
	cfgMgr := config.NewManager()
	if err := cfgMgr.Load(configPath); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	cfg := cfgMgr.Config()
	logger := logging.GetLogger(serverName)

	bus := eventbus.New(cfg.Events.QueueSize, logging.GetLogger("eventbus"))

	urlBuilder := camera.NewURLBuilder(cfg.StreamURLs())
	registry := camera.NewRegistry(camera.RegistryConfig{
		UnreadyErrorGrace: cfg.Camera.UnreadyErrorGrace,
		FlapWindow:        cfg.Camera.FlapWindow,
	}, urlBuilder, bus, logging.GetLogger("registry"))

	deviceSource := camera.NewDefaultMonitor(logging.GetLogger("monitor"), cfg.Camera.DebounceWindow)
	capDispatcher := camera.NewCapabilityDispatcher(registry, &camera.RealCapabilityProber{}, 4, 2*time.Second, logging.GetLogger("capability-dispatch"))

	mediaCfg := mediamtx.DefaultConfig(cfg.MediaMTX.BaseURL)
	mediaCfg.RequestTimeout = cfg.MediaMTX.RequestTimeout
	mediaCfg.RetryMax = cfg.MediaMTX.RetryMax
	mediaCfg.CircuitBreaker.FailureThreshold = cfg.MediaMTX.FailureStreak
	mediaCfg.CircuitBreaker.RecoveryTimeout = cfg.MediaMTX.OpenCooldown
	mediaClient := mediamtx.NewClient(mediaCfg, logging.GetLogger("mediamtx"))

	recordings := recording.New(recording.Config{
		RecordingsDir: cfg.Storage.RecordingsDir,
		DefaultFormat: cfg.Recording.DefaultFormat,
		StopSettle:    cfg.Recording.StopSettle,
	}, mediaClient, registry, bus, camera.SystemClock{}, logging.GetLogger("recording"))

	snapshots := snapshot.New(snapshot.Config{
		SnapshotsDir: cfg.Storage.SnapshotsDir,
	}, snapshot.FFmpegCapturer{}, registry, mediaClient, bus, logging.GetLogger("snapshot"))

	catalogSvc := catalog.New(catalog.Config{
		RecordingsDir: cfg.Storage.RecordingsDir,
		SnapshotsDir:  cfg.Storage.SnapshotsDir,
		URLPrefix:     "/files",
	}, logging.GetLogger("catalog"))

	jwtHandler, err := security.NewJWTHandler(security.Config{
		Algorithm:    string(cfg.Auth.Algorithm),
		Secret:       cfg.Auth.Secret,
		PublicKeyPEM: cfg.Auth.PublicKeyPEM,
		JWKSURL:      cfg.Auth.JWKSURL,
		JWKSRefresh:  cfg.Auth.JWKSRefresh,
		ClockSkewS:   cfg.Auth.ClockSkewS,
	}, logging.GetLogger("auth"))
	if err != nil {
		return nil, fmt.Errorf("construct auth verifier: %w", err)
	}
	sessions := security.NewSessionManager(30*time.Minute, 5*time.Minute)
	permissions := security.NewPermissionChecker()
	rateLimiter := security.NewEnhancedRateLimiter(logging.GetLogger("rate-limiter"), nil)
	validator := security.NewInputValidator(logging.GetLogger("validator"))
	audit, err := security.NewSecurityAuditLogger(&security.AuditLoggerConfig{
		BufferSize:           1000,
		EnableFileLogging:    false,
		EnableConsoleLogging: true,
		RotationInterval:     time.Hour,
		MaxFileAge:           30 * 24 * time.Hour,
		MaxFileSize:          100 * 1024 * 1024,
	}, logger.Logger, nil)
	if err != nil {
		return nil, fmt.Errorf("construct audit logger: %w", err)
	}

	pool := camera.NewBoundedWorkerPool(16, 30*time.Second, logging.GetLogger("rpc-pool"))

	rpcEngine := rpc.NewEngine(rpc.Config{
		MaxFrameBytes: cfg.Server.MaxFrameBytes,
		MaxInFlight:   cfg.Server.MaxInFlight,
	}, permissions, pool, logging.GetLogger("rpc"))
	rpcEngine.SetRateLimiter(rateLimiter)
	rpcEngine.SetAuditLogger(audit)

	rpc.RegisterAll(rpcEngine, rpc.Dependencies{
		Registry:    registry,
		URLs:        urlBuilder,
		MediaClient: mediaClient,
		Recordings:  recordings,
		Snapshots:   snapshots,
		Catalog:     catalogSvc,
		Bus:         bus,
		JWT:         jwtHandler,
		Sessions:    sessions,
		Validator:   validator,
		Audit:       audit,
		Info: rpc.ServerInfo{
			Name:      serverName,
			Version:   Version,
			StartedAt: time.Now(),
		},
		Storage: rpc.StorageThresholds{
			RecordingsDir: cfg.Storage.RecordingsDir,
			SnapshotsDir:  cfg.Storage.SnapshotsDir,
			WarnPercent:   cfg.Storage.WarnPercent,
			BlockPercent:  cfg.Storage.BlockPercent,
		},
	})

	connCfg := rpc.ConnectionConfigFromServer(cfg.Server.HeartbeatInterval, cfg.Server.HeartbeatMiss, 256, cfg.Server.OutboundStallTimeout)
	rpcServer := rpc.NewServer(rpcEngine, sessions, bus, connCfg, logging.GetLogger("rpc-server"))

	healthMonitor := health.NewHealthMonitor(Version)
	healthCfg := health.DefaultConfig()
	healthSrv, err := health.NewHTTPHealthServer(healthCfg, healthMonitor, logging.GetLogger("health"))
	if err != nil {
		return nil, fmt.Errorf("construct health server: %w", err)
	}

	s := &Server{
		cfg:           cfgMgr,
		logger:        logger,
		startedAt:     time.Now(),
		deviceSource:  deviceSource,
		registry:      registry,
		capDispatcher: capDispatcher,
		urlBuilder:    urlBuilder,
		mediaClient:   mediaClient,
		recordings:    recordings,
		snapshots:     snapshots,
		catalogSvc:    catalogSvc,
		bus:           bus,
		jwt:           jwtHandler,
		sessions:      sessions,
		permissions:   permissions,
		rateLimiter:   rateLimiter,
		audit:         audit,
		validator:     validator,
		pool:          pool,
		rpcEngine:     rpcEngine,
		rpcServer:     rpcServer,
		healthMonitor: healthMonitor,
		healthServer:  healthSrv,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.WSPath, rpcServer.HandleUpgrade)
	mux.HandleFunc("/files/recordings/", s.handleServeFile(catalog.CategoryRecording))
	mux.HandleFunc("/files/snapshots/", s.handleServeFile(catalog.CategorySnapshot))
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler: mux,
	}

	return s, nil
}

// Run starts every background component and blocks until ctx is cancelled,
// then tears everything down in reverse dependency order.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.pool.Start(runCtx); err != nil {
		return fmt.Errorf("start rpc worker pool: %w", err)
	}
	if err := s.capDispatcher.Start(runCtx); err != nil {
		return fmt.Errorf("start capability dispatcher: %w", err)
	}
	if err := s.deviceSource.Start(runCtx); err != nil {
		return fmt.Errorf("start device monitor: %w", err)
	}
	s.registry.Start()

	go s.runDeviceEventLoop(runCtx)
	go s.runPathReadinessLoop(runCtx)
	go s.runHealthRefreshLoop(runCtx)

	go func() {
		s.logger.WithField("address", s.httpServer.Addr).Info("starting control-plane HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("control-plane HTTP server failed")
		}
	}()
	go func() {
		if err := s.healthServer.Start(runCtx); err != nil {
			s.logger.WithError(err).Error("health HTTP server failed")
		}
	}()

	<-ctx.Done()
	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down")
	_ = s.deviceSource.Stop()
	s.registry.Stop()
	_ = s.capDispatcher.Stop(shutdownCtx)
	_ = s.pool.Stop(shutdownCtx)
	_ = s.rpcServer.Shutdown(shutdownCtx)
	_ = s.httpServer.Shutdown(shutdownCtx)
	_ = s.healthServer.Stop()
	_ = s.sessions.Stop(shutdownCtx)
	_ = s.audit.Close()
	return nil
}

// runDeviceEventLoop forwards every device presence event from the monitor
// into the registry, dispatching a capability probe for newly-added devices.
func (s *Server) runDeviceEventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.deviceSource.Events():
			if !ok {
				return
			}
			s.registry.OnDeviceEvent(ev)
			if ev.Kind == camera.DeviceAdded {
				s.capDispatcher.ProbeAsync(ctx, ev.DevicePath)
			}
		}
	}
}
