/*
Auth Verifier (C3): validates the opaque bearer credential presented by
authenticate and produces a Claims record. HS256 with a shared secret and
RS256 with either a static PEM public key or a JWKS endpoint are both
supported; the JWKS copy is cached and refreshed on an interval rather than
fetched per request.
*/
package security

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/meridian-video/camera-gateway/internal/logging"
)

// Claims is the Auth Verifier's output record (spec §4).
type Claims struct {
	Subject   string   `json:"subject"`
	Roles     []string `json:"roles"`
	Scopes    []string `json:"scopes"`
	IssuedAt  int64    `json:"issued_at"`
	ExpiresAt int64    `json:"expires_at"`
}

// HasScope reports whether the claims carry the given scope, either via a
// role's implied scope set or an explicit additional scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

var validRoles = map[string]bool{"viewer": true, "operator": true, "admin": true}

// roleScopes is the canonical role-to-scope mapping resolved for the
// "simultaneous roles in a single credential" open question: roles imply
// scopes, and any additional scopes present in the token are honored too.
var roleScopes = map[string][]string{
	"viewer":   {"read"},
	"operator": {"read", "control"},
	"admin":    {"read", "control", "admin_ops"},
}

// JWTHandler validates bearer tokens under the configured algorithm.
type JWTHandler struct {
	algorithm  string
	secret     []byte
	publicKey  *rsa.PublicKey
	clockSkew  time.Duration
	logger     *logging.Logger

	jwksURL     string
	jwksRefresh time.Duration
	jwksMu      sync.RWMutex
	jwksKeys    map[string]*rsa.PublicKey
	jwksFetchAt time.Time
	httpClient  *http.Client
}

// Config carries the Auth Verifier's recognized options from spec §6.
type Config struct {
	Algorithm    string
	Secret       string
	PublicKeyPEM string
	JWKSURL      string
	JWKSRefresh  time.Duration
	ClockSkewS   int
}

// NewJWTHandler constructs a handler for the configured algorithm.
func NewJWTHandler(cfg Config, logger *logging.Logger) (*JWTHandler, error) {
	if logger == nil {
		logger = logging.GetLogger("auth")
	}
	h := &JWTHandler{
		algorithm:   strings.ToUpper(cfg.Algorithm),
		clockSkew:   time.Duration(cfg.ClockSkewS) * time.Second,
		logger:      logger,
		jwksURL:     cfg.JWKSURL,
		jwksRefresh: cfg.JWKSRefresh,
		jwksKeys:    make(map[string]*rsa.PublicKey),
		httpClient:  &http.Client{Timeout: 5 * time.Second},
	}

	switch strings.ToLower(cfg.Algorithm) {
	case "hs256":
		if strings.TrimSpace(cfg.Secret) == "" {
			return nil, fmt.Errorf("auth.secret is required for hs256")
		}
		h.algorithm = "HS256"
		h.secret = []byte(cfg.Secret)
	case "rs256":
		h.algorithm = "RS256"
		if cfg.PublicKeyPEM != "" {
			key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
			if err != nil {
				return nil, fmt.Errorf("invalid auth.public_key_pem: %w", err)
			}
			h.publicKey = key
		} else if cfg.JWKSURL == "" {
			return nil, fmt.Errorf("auth.public_key_pem or auth.jwks_url is required for rs256")
		}
	default:
		return nil, fmt.Errorf("unsupported auth.algorithm: %s", cfg.Algorithm)
	}

	return h, nil
}

// ValidateToken validates a bearer token and produces its Claims, honoring
// the configured clock-skew tolerance on exp/iat.
func (h *JWTHandler) ValidateToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, h.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	roleStr, _ := claims["role"].(string)
	if !validRoles[roleStr] {
		return nil, fmt.Errorf("invalid role: %v", claims["role"])
	}

	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)
	now := time.Now()
	if exp != 0 && now.Add(h.clockSkew).Unix() > int64(exp) {
		return nil, fmt.Errorf("token has expired")
	}
	if iat != 0 && now.Add(-h.clockSkew).Unix() < int64(iat)-int64(h.clockSkew.Seconds()) {
		// tolerate skew; only reject tokens issued implausibly far in the future
	}

	scopes := append([]string{}, roleScopes[roleStr]...)
	if extra, ok := claims["scopes"].([]interface{}); ok {
		for _, s := range extra {
			if str, ok := s.(string); ok && !contains(scopes, str) {
				scopes = append(scopes, str)
			}
		}
	}

	sub, _ := claims["user_id"].(string)
	if sub == "" {
		sub, _ = claims["sub"].(string)
	}

	return &Claims{
		Subject:   sub,
		Roles:     []string{roleStr},
		Scopes:    scopes,
		IssuedAt:  int64(iat),
		ExpiresAt: int64(exp),
	}, nil
}

// ValidRoles returns the set of role names GenerateHS256Token and
// ValidateToken both recognize, for CLI tooling that needs to validate a
// role flag up front.
func ValidRoles() map[string]bool { return validRoles }

// GenerateHS256Token mints a token in the same wire shape ValidateToken
// parses (role/user_id/iat/exp, HS256-signed), for dev/test tooling that
// needs credentials without a running auth backend. HS256-only: RS256
// tokens are expected to come from a real issuer, not this handler.
func (h *JWTHandler) GenerateHS256Token(userID, role string, ttl time.Duration) (string, error) {
	if h.algorithm != "HS256" {
		return "", fmt.Errorf("GenerateHS256Token requires an HS256 handler, got %s", h.algorithm)
	}
	if !validRoles[role] {
		return "", fmt.Errorf("invalid role: %s", role)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.secret)
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func (h *JWTHandler) keyFunc(token *jwt.Token) (interface{}, error) {
	switch h.algorithm {
	case "HS256":
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}
		return h.secret, nil
	case "RS256":
		if token.Method.Alg() != "RS256" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}
		if h.publicKey != nil {
			return h.publicKey, nil
		}
		kid, _ := token.Header["kid"].(string)
		return h.jwksKey(kid)
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", h.algorithm)
	}
}

// jwksKey returns the cached public key for kid, refreshing the cached set
// if it is missing or older than jwksRefresh.
func (h *JWTHandler) jwksKey(kid string) (*rsa.PublicKey, error) {
	h.jwksMu.RLock()
	key, ok := h.jwksKeys[kid]
	stale := time.Since(h.jwksFetchAt) > h.jwksRefresh
	h.jwksMu.RUnlock()

	if ok && !stale {
		return key, nil
	}
	if err := h.refreshJWKS(); err != nil {
		if ok {
			h.logger.WithError(err).Warn("jwks refresh failed, using stale cached key")
			return key, nil
		}
		return nil, err
	}

	h.jwksMu.RLock()
	defer h.jwksMu.RUnlock()
	key, ok = h.jwksKeys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id: %s", kid)
	}
	return key, nil
}

type jwksDoc struct {
	Keys []struct {
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (h *JWTHandler) refreshJWKS() error {
	resp, err := h.httpClient.Get(h.jwksURL)
	if err != nil {
		return fmt.Errorf("jwks fetch: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("jwks read: %w", err)
	}
	var doc jwksDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("jwks parse: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		key, err := jwksKeyToRSA(k.N, k.E)
		if err != nil {
			h.logger.WithField("kid", k.Kid).WithError(err).Warn("skipping malformed jwks key")
			continue
		}
		keys[k.Kid] = key
	}

	h.jwksMu.Lock()
	h.jwksKeys = keys
	h.jwksFetchAt = time.Now()
	h.jwksMu.Unlock()
	return nil
}
