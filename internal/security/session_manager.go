/*
Session Layer (C13): per-connection state -- claims (once authenticated),
subscriptions, and activity tracking. Sessions start unauthenticated; only
public methods (ping, authenticate, get_server_info) are callable until
authenticate succeeds. An expired Claims record demotes the session back to
unauthenticated rather than being treated as a hard disconnect.
*/
package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-video/camera-gateway/internal/logging"
)

// Session is one connection's authentication and activity state.
type Session struct {
	SessionID    string
	Claims       *Claims
	CreatedAt    time.Time
	LastActivity time.Time

	mu            sync.RWMutex
	subscriptions map[string]bool
}

// Authenticated reports whether the session currently carries valid,
// unexpired claims.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claimsValidLocked()
}

func (s *Session) claimsValidLocked() bool {
	if s.Claims == nil {
		return false
	}
	return time.Now().Unix() <= s.Claims.ExpiresAt
}

// Subscribe records the session as subscribed to a topic.
func (s *Session) Subscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriptions == nil {
		s.subscriptions = make(map[string]bool)
	}
	s.subscriptions[topic] = true
}

// Unsubscribe removes a topic subscription.
func (s *Session) Unsubscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, topic)
}

// Subscriptions returns a copy of the session's subscribed topics.
func (s *Session) Subscriptions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := make([]string, 0, len(s.subscriptions))
	for t := range s.subscriptions {
		topics = append(topics, t)
	}
	return topics
}

// SessionManager owns every connection's Session, keyed by session id.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *logging.Logger

	sessionTimeout  time.Duration
	cleanupInterval time.Duration
	cleanupTicker   *time.Ticker
	stopChan        chan struct{}
	wg              sync.WaitGroup
}

// NewSessionManager constructs a manager and starts its idle-session sweep.
func NewSessionManager(sessionTimeout, cleanupInterval time.Duration) *SessionManager {
	m := &SessionManager{
		sessions:        make(map[string]*Session),
		logger:          logging.GetLogger("sessions"),
		sessionTimeout:  sessionTimeout,
		cleanupInterval: cleanupInterval,
		stopChan:        make(chan struct{}),
	}
	m.startCleanup()
	return m
}

// Open creates a new, unauthenticated session for a freshly connected client.
func (m *SessionManager) Open() *Session {
	now := time.Now()
	s := &Session{
		SessionID:    uuid.New().String(),
		CreatedAt:    now,
		LastActivity: now,
	}
	m.mu.Lock()
	m.sessions[s.SessionID] = s
	m.mu.Unlock()
	return s
}

// Authenticate attaches validated claims to a session, promoting it out of
// the unauthenticated tier.
func (m *SessionManager) Authenticate(sessionID string, claims *Claims) error {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	s.mu.Lock()
	s.Claims = claims
	s.LastActivity = time.Now()
	s.mu.Unlock()
	return nil
}

// Touch updates a session's last-activity timestamp.
func (m *SessionManager) Touch(sessionID string) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// Get returns the session for an id, or an error if it has closed.
func (m *SessionManager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return s, nil
}

// Close removes a session, e.g. on client disconnect.
func (m *SessionManager) Close(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Count returns the number of open sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) startCleanup() {
	m.cleanupTicker = time.NewTicker(m.cleanupInterval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.cleanupTicker.C:
				m.sweepIdle()
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *SessionManager) sweepIdle() {
	cutoff := time.Now().Add(-m.sessionTimeout)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.mu.RLock()
		idle := s.LastActivity.Before(cutoff)
		s.mu.RUnlock()
		if idle {
			delete(m.sessions, id)
		}
	}
}

// Stop halts the idle-session sweep.
func (m *SessionManager) Stop(ctx context.Context) error {
	if m.cleanupTicker != nil {
		m.cleanupTicker.Stop()
	}
	select {
	case <-m.stopChan:
	default:
		close(m.stopChan)
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
