package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicMethodsAuthorizeWithoutClaims(t *testing.T) {
	c := NewPermissionChecker()
	assert.True(t, c.Authorize(nil, "ping"))
	assert.True(t, c.Authorize(nil, "authenticate"))
	assert.True(t, c.Authorize(nil, "get_server_info"))
}

func TestControlMethodsRequireControlScope(t *testing.T) {
	c := NewPermissionChecker()
	viewer := &Claims{Subject: "v", Scopes: []string{"read"}}
	operator := &Claims{Subject: "o", Scopes: []string{"read", "control"}}

	assert.False(t, c.Authorize(viewer, "start_recording"))
	assert.True(t, c.Authorize(operator, "start_recording"))
}

func TestReadMethodsRequireReadScope(t *testing.T) {
	c := NewPermissionChecker()
	noScopes := &Claims{Subject: "n"}
	viewer := &Claims{Subject: "v", Scopes: []string{"read"}}

	assert.False(t, c.Authorize(noScopes, "get_camera_list"))
	assert.True(t, c.Authorize(viewer, "get_camera_list"))
}

func TestUnknownMethodIsNotAuthorized(t *testing.T) {
	c := NewPermissionChecker()
	admin := &Claims{Subject: "a", Scopes: []string{"read", "control", "admin_ops"}}
	assert.False(t, c.Authorize(admin, "does_not_exist"))

	_, err := c.RequiredScope("does_not_exist")
	assert.Error(t, err)
}

func TestAddMethodScopeRegistersNewMethod(t *testing.T) {
	c := NewPermissionChecker()
	require.NoError(t, c.AddMethodScope("custom_admin_action", ScopeControl))

	scope, err := c.RequiredScope("custom_admin_action")
	require.NoError(t, err)
	assert.Equal(t, ScopeControl, scope)
}

func TestAddMethodScopeRejectsInvalidScope(t *testing.T) {
	c := NewPermissionChecker()
	err := c.AddMethodScope("whatever", "superadmin")
	assert.Error(t, err)
}
