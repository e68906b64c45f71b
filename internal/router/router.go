package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/milsim-portal/internal/handler"
	"github.com/iliyamo/milsim-portal/internal/metrics"
)

// RegisterRoutes registers the probes: the health check used by load
// balancers and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAuth registers the session endpoints. Refresh and logout live under
// /api/auth, which the session middleware skips; /api/me sits behind it.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/api/auth")
	// Called server-to-server by the session middleware with the browser's
	// cookie forwarded.
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	e.GET("/api/me", a.Me)
}

// RegisterPublic registers the unauthenticated personnel listings.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler) {
	g := e.Group("/api")
	g.GET("/roster", p.Roster)
	g.GET("/ranks", p.Ranks)
	g.GET("/units", p.Units)
	g.GET("/positions", p.Positions)
	g.GET("/awards", p.Awards)
	g.GET("/qualifications", p.Qualifications)
}
