/*
Connection (C13 transport half): one websocket's reader and writer tasks,
split the way the teacher split client read/write pumps, but with the
outbound side changed to a bounded queue instead of direct synchronous
writes. A full queue displaces its oldest notification rather than
blocking; responses are never dropped, and a write that cannot make
progress for outbound_stall_timeout closes the connection instead of
wedging it open.
*/
package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meridian-video/camera-gateway/internal/eventbus"
	"github.com/meridian-video/camera-gateway/internal/logging"
	"github.com/meridian-video/camera-gateway/internal/security"
	"golang.org/x/sync/semaphore"
)

// outboundFrame tags a queued write so the writer knows whether it may be
// displaced under backpressure.
type outboundFrame struct {
	data           []byte
	isNotification bool
}

// ConnectionConfig carries the per-connection tunables (spec §4.7/§5),
// sourced from config.ServerConfig.
type ConnectionConfig struct {
	HeartbeatInterval    time.Duration
	HeartbeatMiss        int
	OutboundQueueSize    int
	OutboundStallTimeout time.Duration
}

// Connection owns one client's websocket, session, and event subscription.
type Connection struct {
	conn    *websocket.Conn
	engine  *Engine
	session *security.Session
	sessMgr *security.SessionManager
	bus     *eventbus.Bus
	logger  *logging.Logger
	cfg     ConnectionConfig

	inFlight *semaphore.Weighted
	outbound chan outboundFrame

	missedPongs int32
}

// NewConnection wraps an upgraded websocket connection with a freshly
// opened, unauthenticated session.
func NewConnection(conn *websocket.Conn, engine *Engine, sessMgr *security.SessionManager, bus *eventbus.Bus, cfg ConnectionConfig, logger *logging.Logger) *Connection {
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = 256
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.HeartbeatMiss <= 0 {
		cfg.HeartbeatMiss = 2
	}
	if cfg.OutboundStallTimeout <= 0 {
		cfg.OutboundStallTimeout = 20 * time.Second
	}
	if logger == nil {
		logger = logging.GetLogger("rpc-connection")
	}
	return &Connection{
		conn:     conn,
		engine:   engine,
		session:  sessMgr.Open(),
		sessMgr:  sessMgr,
		bus:      bus,
		logger:   logger,
		cfg:      cfg,
		inFlight: semaphore.NewWeighted(int64(engine.MaxInFlight())),
		outbound: make(chan outboundFrame, cfg.OutboundQueueSize),
	}
}

// Serve runs the connection's reader, writer, heartbeat, and event-delivery
// loops until the client disconnects or a stall closes it. It blocks until
// the connection is fully torn down.
func (c *Connection) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := c.bus.Subscribe(c.session.SessionID, nil)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); c.readLoop(ctx, cancel) }()
	go func() { defer wg.Done(); c.writeLoop(ctx) }()
	go func() { defer wg.Done(); c.eventLoop(ctx, events) }()

	c.heartbeatLoop(ctx, cancel)
	cancel()
	wg.Wait()

	c.bus.Close(c.session.SessionID)
	c.sessMgr.Close(c.session.SessionID)
	c.conn.Close()
}

func (c *Connection) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	c.conn.SetPongHandler(func(string) error {
		atomic.StoreInt32(&c.missedPongs, 0)
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.sessMgr.Touch(c.session.SessionID)
		select {
		case <-ctx.Done():
			return
		default:
		}
		resp := c.engine.HandleFrame(ctx, c.session, data, c.inFlight)
		if resp != nil {
			c.enqueueResponse(ctx, resp)
		}
	}
}

func (c *Connection) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.outbound:
			if err := c.writeWithStallTimeout(frame.data); err != nil {
				return
			}
		}
	}
}

func (c *Connection) writeWithStallTimeout(data []byte) error {
	done := make(chan error, 1)
	go func() { done <- c.conn.WriteMessage(websocket.TextMessage, data) }()
	select {
	case err := <-done:
		return err
	case <-time.After(c.cfg.OutboundStallTimeout):
		c.logger.Warn("outbound write stalled past timeout, closing connection")
		c.conn.Close()
		return context.DeadlineExceeded
	}
}

// enqueueResponse never drops a response; it blocks (bounded by the
// connection's own shutdown) until the writer has room.
func (c *Connection) enqueueResponse(ctx context.Context, data []byte) {
	select {
	case c.outbound <- outboundFrame{data: data}:
	case <-ctx.Done():
	}
}

// enqueueNotification displaces the oldest queued notification when full,
// the same drop-oldest rule the event bus itself uses.
func (c *Connection) enqueueNotification(data []byte) {
	frame := outboundFrame{data: data, isNotification: true}
	select {
	case c.outbound <- frame:
		return
	default:
	}
	select {
	case <-c.outbound:
	default:
	}
	select {
	case c.outbound <- frame:
	default:
	}
}

func (c *Connection) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(newNotification(ev.Topic, ev.Data))
			if err != nil {
				continue
			}
			c.enqueueNotification(data)
		}
	}
}

func (c *Connection) heartbeatLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.missedPongs) >= int32(c.cfg.HeartbeatMiss) {
				c.logger.Warn("heartbeat misses exceeded threshold, closing connection")
				cancel()
				return
			}
			atomic.AddInt32(&c.missedPongs, 1)
			deadline := time.Now().Add(c.cfg.HeartbeatInterval)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				cancel()
				return
			}
		}
	}
}
