package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/milsim-portal/internal/authz"
	"github.com/iliyamo/milsim-portal/internal/session"
)

func runGuarded(mw echo.MiddlewareFunc, sess *session.Session) int {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/cache/flush", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if sess != nil {
		SetSession(c, *sess)
	}
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec.Code
}

func TestRequireRole(t *testing.T) {
	mw := RequireRole(authz.RoleAdmin, authz.RoleDeveloper)

	assert.Equal(t, http.StatusUnauthorized, runGuarded(mw, nil))
	assert.Equal(t, http.StatusForbidden, runGuarded(mw, &session.Session{Roles: []string{"moderator"}}))
	assert.Equal(t, http.StatusNoContent, runGuarded(mw, &session.Session{Roles: []string{"member", "admin"}}))
}

func TestRequireMinRole(t *testing.T) {
	mw := RequireMinRole(authz.RoleModerator)

	assert.Equal(t, http.StatusForbidden, runGuarded(mw, &session.Session{Roles: []string{"recruiter"}}))
	assert.Equal(t, http.StatusNoContent, runGuarded(mw, &session.Session{Roles: []string{"developer"}}))
}
