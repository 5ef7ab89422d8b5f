/*
Server (C13 listener half): upgrades incoming HTTP connections on the
configured websocket path and spins up a Connection per client, the same
upgrade-then-delegate shape as the teacher's WebSocketServer but without its
inline method dispatch -- that now lives entirely in Engine/Connection.
*/
package rpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meridian-video/camera-gateway/internal/eventbus"
	"github.com/meridian-video/camera-gateway/internal/logging"
	"github.com/meridian-video/camera-gateway/internal/security"
)

// Server accepts websocket upgrades and runs one Connection per client.
type Server struct {
	engine  *Engine
	sessMgr *security.SessionManager
	bus     *eventbus.Bus
	connCfg ConnectionConfig
	logger  *logging.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Connection]struct{}
	wg    sync.WaitGroup
}

// NewServer constructs the websocket listener half of the control plane.
func NewServer(engine *Engine, sessMgr *security.SessionManager, bus *eventbus.Bus, connCfg ConnectionConfig, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetLogger("rpc-server")
	}
	return &Server{
		engine:  engine,
		sessMgr: sessMgr,
		bus:     bus,
		connCfg: connCfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*Connection]struct{}),
	}
}

// HandleUpgrade is the http.HandlerFunc mounted at the configured
// websocket path.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := NewConnection(conn, s.engine, s.sessMgr, s.bus, s.connCfg, s.logger)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
		}()
		// r.Context() is canceled once this handler returns (the connection
		// is hijacked, not held open by ServeHTTP); Connection tears itself
		// down via read errors and the heartbeat stall path instead.
		c.Serve(context.Background())
	}()
}

// Shutdown waits (bounded by ctx) for every live connection to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectionConfigFromServer builds a ConnectionConfig from the gateway's
// server config section.
func ConnectionConfigFromServer(heartbeatInterval time.Duration, heartbeatMiss int, outboundQueueSize int, outboundStallTimeout time.Duration) ConnectionConfig {
	return ConnectionConfig{
		HeartbeatInterval:    heartbeatInterval,
		HeartbeatMiss:        heartbeatMiss,
		OutboundQueueSize:    outboundQueueSize,
		OutboundStallTimeout: outboundStallTimeout,
	}
}
