package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/milsim-portal/internal/handler"
)

// RegisterMember registers endpoints for signed-in members. The session
// middleware has already turned guests away from these prefixes.
func RegisterMember(e *echo.Echo, h *handler.MemberHandler) {
	e.POST("/api/applications", h.SubmitApplication)
	e.GET("/api/me/records", h.MyRecords)
}
