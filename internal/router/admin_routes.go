package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/milsim-portal/internal/authz"
	"github.com/iliyamo/milsim-portal/internal/handler"
	"github.com/iliyamo/milsim-portal/internal/middleware"
)

// RegisterAdmin registers the staff API under /api/admin. The permission
// table admits recruiters and up to the whole group; destructive routes
// additionally require an admin or developer.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler) {
	g := e.Group("/api/admin")

	// ---- Applications ----
	g.GET("/submissions", h.ListSubmissions)
	g.POST("/submissions/:id/status", h.SetSubmissionStatus)

	// ---- Personnel files ----
	g.POST("/users", h.CreateUser, middleware.RequireMinRole(authz.RoleModerator))
	g.PATCH("/users/:id", h.UpdateUser, middleware.RequireMinRole(authz.RoleModerator))
	g.POST("/users/:id/records/:kind", h.AttachRecord, middleware.RequireMinRole(authz.RoleModerator))

	// ---- Admin only ----
	adminOnly := middleware.RequireRole(authz.RoleAdmin, authz.RoleDeveloper)
	g.DELETE("/resources/:type/:id", h.DeleteResource, adminOnly)
	g.POST("/cache/flush", h.FlushCache, adminOnly)
	g.GET("/audit", h.ListAudit, adminOnly)
}
