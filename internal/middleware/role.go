package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/milsim-portal/internal/authz"
)

// RequireRole aborts with 403 unless the signed-in caller holds one of roles.
// It relies on NewAuth having stored the session; guests get 401.
func RequireRole(roles ...authz.Role) echo.MiddlewareFunc {
	return requireRule(authz.Rule{Allow: roles})
}

// RequireMinRole aborts with 403 unless the caller's highest role is at
// least min in the hierarchy.
func RequireMinRole(min authz.Role) echo.MiddlewareFunc {
	return requireRule(authz.Rule{Min: min})
}

func requireRule(rule authz.Rule) echo.MiddlewareFunc {
	// Reuse the table's evaluation so JSON routes and page routes agree.
	table := authz.NewTable(map[string]authz.Rule{"/": rule})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := CurrentSession(c); !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if !table.Authorize("/", CurrentRoles(c)) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
