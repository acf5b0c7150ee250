package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasAnyRole(c.Request().Context(), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasAnyRole reports whether the caller holds one of roles. Admins hold every role.
func HasAnyRole(ctx context.Context, roles ...string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}

// IsAdmin reports whether the caller holds the admin role.
func IsAdmin(ctx context.Context) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// RequireSelf returns middleware that only lets a user act on the resource
// named by the path parameter param when it is their own id. Admins pass.
func RequireSelf(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if IsAdmin(ctx) || c.Param(param) == UserIDFromContext(ctx) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "access to another user's data is not allowed")
		}
	}
}
