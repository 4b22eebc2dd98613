package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleChecker_HasMinimumRole_BuiltinHierarchy(t *testing.T) {
	c := NewRoleChecker(nil)
	assert.True(t, c.HasMinimumRole(context.Background(), "owner", "admin"))
	assert.True(t, c.HasMinimumRole(context.Background(), "admin", "admin"))
	assert.False(t, c.HasMinimumRole(context.Background(), "member", "admin"))
}

func TestRoleChecker_HasPermission_BuiltinUnion(t *testing.T) {
	c := NewRoleChecker(nil)
	assert.True(t, c.HasPermission(context.Background(), "member", "probe:read"))
	assert.False(t, c.HasPermission(context.Background(), "member", "agent:write"))
	assert.True(t, c.HasPermission(context.Background(), "admin", "probe:read"))
	assert.True(t, c.HasPermission(context.Background(), "admin", "agent:write"))
	assert.True(t, c.HasPermission(context.Background(), "owner", "agent:write"))
	assert.True(t, c.HasPermission(context.Background(), "owner", "settings:write"))
}

func TestRoleChecker_RequireRole_BlocksBelowMinimum(t *testing.T) {
	c := NewRoleChecker(nil)
	handlerCalled := false
	h := c.RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithAuthContext(req.Context(), AuthContext{Type: "session", Role: "member"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, handlerCalled)
}

func TestRoleChecker_RequireRole_AllowsAtMinimum(t *testing.T) {
	c := NewRoleChecker(nil)
	handlerCalled := false
	h := c.RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithAuthContext(req.Context(), AuthContext{Type: "session", Role: "owner"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, handlerCalled)
}

func TestRoleChecker_RequireRole_UnauthenticatedRejected(t *testing.T) {
	c := NewRoleChecker(nil)
	h := c.RequireRole("member")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
