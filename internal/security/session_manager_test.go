package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSessionStartsUnauthenticated(t *testing.T) {
	m := NewSessionManager(time.Minute, time.Minute)
	defer m.Stop(context.Background())

	s := m.Open()
	assert.False(t, s.Authenticated())
	assert.Equal(t, 1, m.Count())
}

func TestAuthenticateAttachesClaims(t *testing.T) {
	m := NewSessionManager(time.Minute, time.Minute)
	defer m.Stop(context.Background())

	s := m.Open()
	claims := &Claims{Subject: "alice", Scopes: []string{"read"}, ExpiresAt: time.Now().Add(time.Hour).Unix()}
	require.NoError(t, m.Authenticate(s.SessionID, claims))
	assert.True(t, s.Authenticated())
}

func TestAuthenticateUnknownSessionFails(t *testing.T) {
	m := NewSessionManager(time.Minute, time.Minute)
	defer m.Stop(context.Background())

	err := m.Authenticate("nonexistent", &Claims{})
	assert.Error(t, err)
}

func TestExpiredClaimsDemoteSession(t *testing.T) {
	m := NewSessionManager(time.Minute, time.Minute)
	defer m.Stop(context.Background())

	s := m.Open()
	claims := &Claims{Subject: "bob", ExpiresAt: time.Now().Add(-time.Second).Unix()}
	require.NoError(t, m.Authenticate(s.SessionID, claims))
	assert.False(t, s.Authenticated())
}

func TestSubscriptionsTrackedPerSession(t *testing.T) {
	m := NewSessionManager(time.Minute, time.Minute)
	defer m.Stop(context.Background())

	s := m.Open()
	s.Subscribe("camera_status_update")
	s.Subscribe("recording_status_update")
	assert.ElementsMatch(t, []string{"camera_status_update", "recording_status_update"}, s.Subscriptions())

	s.Unsubscribe("camera_status_update")
	assert.Equal(t, []string{"recording_status_update"}, s.Subscriptions())
}

func TestIdleSweepClosesStaleSessions(t *testing.T) {
	m := NewSessionManager(20*time.Millisecond, 10*time.Millisecond)
	defer m.Stop(context.Background())

	m.Open()
	require.Equal(t, 1, m.Count())

	assert.Eventually(t, func() bool {
		return m.Count() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCloseRemovesSession(t *testing.T) {
	m := NewSessionManager(time.Minute, time.Minute)
	defer m.Stop(context.Background())

	s := m.Open()
	m.Close(s.SessionID)
	_, err := m.Get(s.SessionID)
	assert.Error(t, err)
}
