package middleware

// identity.go holds the accessors for the session that the auth middleware
// stores in the Echo context. Handlers and other middleware read the caller
// through these helpers instead of touching context keys directly.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/milsim-portal/internal/authz"
	"github.com/iliyamo/milsim-portal/internal/session"
)

const sessionKey = "session"

// SetSession stores s on the request context.
func SetSession(c echo.Context, s session.Session) { c.Set(sessionKey, s) }

// CurrentSession returns the session of the signed-in caller, if any.
func CurrentSession(c echo.Context) (session.Session, bool) {
	s, ok := c.Get(sessionKey).(session.Session)
	return s, ok
}

// CurrentRoles returns the caller's recognised roles; nil for guests.
func CurrentRoles(c echo.Context) []authz.Role {
	s, ok := CurrentSession(c)
	if !ok {
		return nil
	}
	return s.RoleSet()
}

// userID identifies the caller for logs and rate limit keys. It returns
// "guest" when nobody is signed in.
func userID(c echo.Context) string {
	s, ok := CurrentSession(c)
	if !ok {
		return "guest"
	}
	if s.PerscomID != 0 {
		return "perscom:" + strconv.FormatInt(s.PerscomID, 10)
	}
	if s.Name != "" {
		return s.Name
	}
	return "guest"
}
