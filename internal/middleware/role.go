package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/showbook/internal/auth"
)

// RequireRole lets the request through only when the authenticated
// caller holds role (auth.RoleAny admits every verified caller).  It must
// run after Authenticate.
func RequireRole(role string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            claims := ClaimsFrom(c)
            if claims == nil {
                return c.JSON(http.StatusUnauthorized, errNotAuthenticated)
            }
            if err := auth.Authorize(claims, role); err != nil {
                return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
            }
            return next(c)
        }
    }
}
