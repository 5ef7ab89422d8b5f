/*
Dispatch Engine (C12): parses a raw frame into one or more Requests, checks
size and in-flight bounds, authorizes each call against the session's claims,
and runs handlers on the shared bounded worker pool so a slow handler (a
recording start, a snapshot capture) never blocks the connection's reader
from draining the next frame. This replaces the teacher's inline
checkMethodPermissions + direct handler invocation on the connection's own
goroutine.
*/
package rpc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/meridian-video/camera-gateway/internal/camera"
	"github.com/meridian-video/camera-gateway/internal/logging"
	"github.com/meridian-video/camera-gateway/internal/security"
	"golang.org/x/sync/semaphore"
)

// HandlerFunc implements one RPC method. A nil error paired with a nil
// result is valid for methods with no meaningful return value.
type HandlerFunc func(ctx context.Context, sess *security.Session, params json.RawMessage) (interface{}, *Error)

type methodEntry struct {
	handler HandlerFunc
}

// Engine owns the method registry and the concurrency bounds shared by
// every connection.
type Engine struct {
	mu      sync.RWMutex
	methods map[string]methodEntry

	permissions *security.PermissionChecker
	pool        camera.BoundedWorkerPool
	logger      *logging.Logger

	rateLimiter *security.EnhancedRateLimiter
	audit       *security.SecurityAuditLogger

	maxFrameBytes int64
	maxInFlight   int
}

// Config carries the Dispatch Engine's bounds (spec §4.7/§5).
type Config struct {
	MaxFrameBytes int64
	MaxInFlight   int
}

// NewEngine constructs a Dispatch Engine bound to a permission checker and
// worker pool. Callers register methods with Register before serving any
// connection.
func NewEngine(cfg Config, permissions *security.PermissionChecker, pool camera.BoundedWorkerPool, logger *logging.Logger) *Engine {
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 256 * 1024
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 64
	}
	if logger == nil {
		logger = logging.GetLogger("rpc")
	}
	return &Engine{
		methods:       make(map[string]methodEntry),
		permissions:   permissions,
		pool:          pool,
		logger:        logger,
		maxFrameBytes: cfg.MaxFrameBytes,
		maxInFlight:   cfg.MaxInFlight,
	}
}

// Register adds a method handler. Its required authorization scope comes
// from the PermissionChecker's own catalogue (spec §4.8), not from the
// registration call, so the two can never drift out of sync.
func (e *Engine) Register(method string, handler HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.methods[method] = methodEntry{handler: handler}
}

// MaxInFlight returns the per-connection in-flight request cap, used by
// Connection to size its semaphore.
func (e *Engine) MaxInFlight() int { return e.maxInFlight }

// SetRateLimiter attaches a per-method/per-client rate limiter (teacher's
// EnhancedRateLimiter), checked in handleOne ahead of the in-flight cap.
// Optional: a nil limiter disables the check.
func (e *Engine) SetRateLimiter(rl *security.EnhancedRateLimiter) { e.rateLimiter = rl }

// SetAuditLogger attaches a security audit logger that records every method
// call's access outcome. Optional: a nil logger disables the check.
func (e *Engine) SetAuditLogger(a *security.SecurityAuditLogger) { e.audit = a }

func (e *Engine) lookup(method string) (HandlerFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.methods[method]
	if !ok {
		return nil, false
	}
	return entry.handler, true
}

// HandleFrame parses and dispatches one raw websocket frame, returning the
// bytes to write back (nil if the frame was all notifications). inFlight
// bounds concurrent in-flight requests for the connection that owns it
// (spec §4.7: per-connection cap of 64, RATE_LIMITED beyond that).
func (e *Engine) HandleFrame(ctx context.Context, sess *security.Session, frame []byte, inFlight *semaphore.Weighted) []byte {
	if int64(len(frame)) > e.maxFrameBytes {
		return mustMarshal(newErrorResponse(nil, newError(CodeParseError, "frame exceeds maximum size")))
	}

	var batch []json.RawMessage
	trimmed := trimLeadingSpace(frame)
	isBatch := len(trimmed) > 0 && trimmed[0] == '['
	if isBatch {
		if err := json.Unmarshal(frame, &batch); err != nil {
			return mustMarshal(newErrorResponse(nil, newError(CodeParseError, "invalid JSON batch")))
		}
		if len(batch) == 0 {
			return mustMarshal(newErrorResponse(nil, newError(CodeInvalidRequest, "empty batch")))
		}
	} else {
		batch = []json.RawMessage{frame}
	}

	responses := make([]*Response, len(batch))
	var wg sync.WaitGroup
	for i, raw := range batch {
		i, raw := i, raw
		wg.Add(1)
		go func() {
			defer wg.Done()
			responses[i] = e.handleOne(ctx, sess, raw, inFlight)
		}()
	}
	wg.Wait()

	kept := make([]*Response, 0, len(responses))
	for _, r := range responses {
		if r != nil {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	if !isBatch {
		return mustMarshal(kept[0])
	}
	return mustMarshal(kept)
}

func (e *Engine) handleOne(ctx context.Context, sess *security.Session, raw json.RawMessage, inFlight *semaphore.Weighted) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return newErrorResponse(nil, newError(CodeParseError, "invalid JSON request"))
	}
	if req.Method == "" {
		return maybeResponse(req.ID, newErrorResponse(req.ID, newError(CodeInvalidRequest, "missing method")))
	}

	handler, ok := e.lookup(req.Method)
	if !ok {
		return maybeResponse(req.ID, newErrorResponse(req.ID, newErrorf(CodeMethodNotFound, "unknown method: %s", req.Method)))
	}

	scope, err := e.permissions.RequiredScope(req.Method)
	if err != nil {
		return maybeResponse(req.ID, newErrorResponse(req.ID, newErrorf(CodeMethodNotFound, "unknown method: %s", req.Method)))
	}
	if scope != security.ScopePublic {
		if sess == nil || !sess.Authenticated() {
			return maybeResponse(req.ID, newErrorResponse(req.ID, newError(CodeAuthRequired, "authentication required")))
		}
		if !e.permissions.Authorize(sess.Claims, req.Method) {
			return maybeResponse(req.ID, newErrorResponse(req.ID, newError(CodePermissionDenied, "missing required scope")))
		}
	}

	clientID := "anonymous"
	if sess != nil {
		clientID = sess.SessionID
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLimit(req.Method, clientID); err != nil {
			if e.audit != nil {
				e.audit.LogRateLimitExceeded(clientID, req.Method, "")
			}
			return maybeResponse(req.ID, newErrorResponse(req.ID, newErrorf(CodeRateLimited, "%v", err)))
		}
	}

	if !inFlight.TryAcquire(1) {
		e.logger.WithField("method", req.Method).Warn("in-flight cap exceeded, rejecting request")
		return maybeResponse(req.ID, newErrorResponse(req.ID, newError(CodeRateLimited, "too many in-flight requests")))
	}
	defer inFlight.Release(1)

	var result interface{}
	var handlerErr *Error
	done := make(chan struct{})
	submitErr := e.pool.Submit(ctx, func(taskCtx context.Context) {
		defer close(done)
		result, handlerErr = handler(taskCtx, sess, req.Params)
	})
	if submitErr != nil {
		return maybeResponse(req.ID, newErrorResponse(req.ID, newError(CodeRateLimited, "worker pool saturated")))
	}
	select {
	case <-done:
	case <-ctx.Done():
		return maybeResponse(req.ID, newErrorResponse(req.ID, newError(CodeInternal, "request cancelled")))
	}

	if e.audit != nil {
		userID, role := "", ""
		if sess != nil && sess.Claims != nil {
			userID = sess.Claims.Subject
		}
		e.audit.LogMethodAccess(clientID, userID, role, req.Method, handlerErr == nil)
	}

	if handlerErr != nil {
		return maybeResponse(req.ID, newErrorResponse(req.ID, handlerErr))
	}
	return maybeResponse(req.ID, newResponse(req.ID, result))
}

// maybeResponse drops the response for notifications (nil ID), matching
// spec §4.7's batching rule: notifications produce no element in the
// response array.
func maybeResponse(id interface{}, resp *Response) *Response {
	if id == nil {
		return nil
	}
	return resp
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(newErrorResponse(nil, newError(CodeInternal, "failed to encode response")))
	}
	return b
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}
