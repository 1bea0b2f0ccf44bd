package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/pesantren/core/rbac"
)

// activeRoleMiddleware lets through sessions acting with one of roles.
func activeRoleMiddleware(roles ...rbac.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			snap := getContextSnapshot(ctx)
			if !snap.Authenticated() {
				return errUnauthorized
			}
			if snap.Resolution().Subject().CanAccessWithActiveRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// moduleMiddleware lets through sessions whose active role may open module.
func moduleMiddleware(module string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			snap := getContextSnapshot(ctx)
			if !snap.Authenticated() {
				return errUnauthorized
			}
			if snap.Resolution().Subject().CanAccess(module) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
