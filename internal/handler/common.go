package handler // HTTP handlers for the locker rental API

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// reqCtx bounds a database-touching request with a timeout.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// currentUserID reads the authenticated user ID injected by the JWT
// middleware. Zero means the route was mounted without it.
func currentUserID(c echo.Context) uint64 {
	if v, ok := c.Get("user_id").(uint64); ok {
		return v
	}
	return 0
}

// isAdmin reports whether the authenticated user carries the ADMIN
// role.
func isAdmin(c echo.Context) bool {
	role, _ := c.Get("role").(string)
	return role == "ADMIN"
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}
