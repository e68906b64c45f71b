package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is the liveness probe used by load balancers. It does not touch
// PERSCOM so an upstream outage never takes the portal out of rotation.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
