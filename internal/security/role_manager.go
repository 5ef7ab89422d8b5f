/*
Method-level authorization (spec §4.8): every RPC method falls into one of
three tiers — public (no claims needed), read, or control. Unlike the
teacher's ordinal Role hierarchy, tiers here are scopes a Claims record
either has or doesn't; there is no "higher tier implies lower" ordering
beyond what the role->scope table in jwt_handler.go already encodes.
*/
package security

import (
	"fmt"
	"strings"

	"github.com/meridian-video/camera-gateway/internal/logging"
)

const (
	ScopePublic  = ""
	ScopeRead    = "read"
	ScopeControl = "control"
)

// PermissionChecker maps RPC methods to their required scope.
type PermissionChecker struct {
	methodScopes map[string]string
	logger       *logging.Logger
}

// NewPermissionChecker builds the method -> scope matrix from spec §4.8:
// a small public set, an explicit control set for the mutating camera
// operations, and an explicit read set listing the "get_*"/"list_*"
// queries and the event subscription methods. A method in none of the
// three lists is unknown to RequiredScope until it is registered via
// AddMethodScope; names are not matched by prefix.
func NewPermissionChecker() *PermissionChecker {
	c := &PermissionChecker{
		methodScopes: make(map[string]string),
		logger:       logging.GetLogger("permissions"),
	}

	publicMethods := []string{"ping", "authenticate", "get_server_info"}
	controlMethods := []string{
		"take_snapshot", "start_recording", "stop_recording",
		"delete_recording", "delete_snapshot",
	}
	readMethods := []string{
		"get_camera_list", "get_camera_status", "get_camera_capabilities",
		"get_stream_url", "get_streams", "get_stream_status",
		"list_recordings", "list_snapshots", "get_recording_info", "get_snapshot_info",
		"get_server_info", "get_status", "get_system_status", "get_storage_info", "get_metrics",
		"subscribe_events", "unsubscribe_events", "get_subscription_stats",
	}

	for _, m := range publicMethods {
		c.methodScopes[m] = ScopePublic
	}
	for _, m := range controlMethods {
		c.methodScopes[m] = ScopeControl
	}
	for _, m := range readMethods {
		if _, already := c.methodScopes[m]; !already {
			c.methodScopes[m] = ScopeRead
		}
	}
	return c
}

// RequiredScope returns the scope a method requires, or an error if the
// method is unknown to the permission matrix.
func (c *PermissionChecker) RequiredScope(method string) (string, error) {
	if scope, ok := c.methodScopes[method]; ok {
		return scope, nil
	}
	return "", fmt.Errorf("method not found in permission matrix: %s", method)
}

// Authorize reports whether claims satisfy the scope method requires.
// Public methods are always authorized, even with nil claims.
func (c *PermissionChecker) Authorize(claims *Claims, method string) bool {
	scope, err := c.RequiredScope(method)
	if err != nil {
		c.logger.WithField("method", method).Warn("authorization check against unknown method")
		return false
	}
	if scope == ScopePublic {
		return true
	}
	allowed := claims != nil && claims.HasScope(scope)
	c.logger.WithFields(logging.Fields{
		"method":  method,
		"scope":   scope,
		"subject": subjectOf(claims),
		"allowed": allowed,
	}).Debug("authorization check")
	return allowed
}

func subjectOf(c *Claims) string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// AddMethodScope registers or overrides a method's required scope.
func (c *PermissionChecker) AddMethodScope(method, scope string) error {
	method = strings.TrimSpace(method)
	if method == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	switch scope {
	case ScopePublic, ScopeRead, ScopeControl:
	default:
		return fmt.Errorf("invalid scope: %s", scope)
	}
	c.methodScopes[method] = scope
	return nil
}
