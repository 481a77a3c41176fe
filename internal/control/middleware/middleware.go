// Package middleware carries the in-container control plane's HTTP
// authentication: every route under the control plane requires the
// per-container bearer token generated at creation time (the SECRET_TOKEN
// environment variable, §4.2). Grounded on the manager facade's own
// requireAuth shape (internal/manager/httpapi) — same bearer-check idiom,
// reused here for the sandbox side of the same contract.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireBearer returns an echo middleware enforcing that the Authorization
// header carries "Bearer <token>" for the configured per-container token.
func RequireBearer(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}
			auth := c.Request().Header.Get("Authorization")
			if auth != "Bearer "+token {
				c.Response().Header().Set("WWW-Authenticate", "Bearer")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}

// SessionHeader is the header the sandbox client stamps on every request so
// the in-container side can correlate calls with the owning session without
// trusting the request body.
const SessionHeader = "X-Sandbox-Session-Id"

// SessionID extracts the session id the caller attached, if any.
func SessionID(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(SessionHeader))
}
