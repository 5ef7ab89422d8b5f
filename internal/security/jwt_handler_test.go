package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHS256(t *testing.T, secret, role, sub string, extraScopes []string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": sub,
		"role":    role,
		"iat":     time.Now().Unix(),
		"exp":     exp.Unix(),
	}
	if extraScopes != nil {
		scopes := make([]interface{}, len(extraScopes))
		for i, s := range extraScopes {
			scopes[i] = s
		}
		claims["scopes"] = scopes
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateTokenHS256GrantsRoleScopes(t *testing.T) {
	h, err := NewJWTHandler(Config{Algorithm: "hs256", Secret: "topsecret", ClockSkewS: 5}, nil)
	require.NoError(t, err)

	token := signHS256(t, "topsecret", "operator", "alice", nil, time.Now().Add(time.Hour))
	claims, err := h.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.True(t, claims.HasScope("read"))
	assert.True(t, claims.HasScope("control"))
	assert.False(t, claims.HasScope("admin_ops"))
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	h, err := NewJWTHandler(Config{Algorithm: "hs256", Secret: "topsecret", ClockSkewS: 0}, nil)
	require.NoError(t, err)

	token := signHS256(t, "topsecret", "viewer", "bob", nil, time.Now().Add(-time.Hour))
	_, err = h.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsUnknownRole(t *testing.T) {
	h, err := NewJWTHandler(Config{Algorithm: "hs256", Secret: "topsecret"}, nil)
	require.NoError(t, err)

	token := signHS256(t, "topsecret", "superuser", "eve", nil, time.Now().Add(time.Hour))
	_, err = h.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	h, err := NewJWTHandler(Config{Algorithm: "hs256", Secret: "topsecret"}, nil)
	require.NoError(t, err)

	token := signHS256(t, "wrongsecret", "viewer", "bob", nil, time.Now().Add(time.Hour))
	_, err = h.ValidateToken(token)
	assert.Error(t, err)
}

func TestNewJWTHandlerRequiresSecretForHS256(t *testing.T) {
	_, err := NewJWTHandler(Config{Algorithm: "hs256"}, nil)
	assert.Error(t, err)
}

func TestNewJWTHandlerRequiresKeySourceForRS256(t *testing.T) {
	_, err := NewJWTHandler(Config{Algorithm: "rs256"}, nil)
	assert.Error(t, err)
}

func TestAdditionalScopesAreHonored(t *testing.T) {
	h, err := NewJWTHandler(Config{Algorithm: "hs256", Secret: "topsecret"}, nil)
	require.NoError(t, err)

	token := signHS256(t, "topsecret", "viewer", "carol", []string{"control"}, time.Now().Add(time.Hour))
	claims, err := h.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.HasScope("control"))
}
