package middleware // middleware holds the request pipeline stages shared by routes

import (
    "errors"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/showbook/internal/auth"
    "github.com/iliyamo/showbook/internal/model"
    "github.com/iliyamo/showbook/internal/repository"
)

// Context keys set by Authenticate.
const (
    ctxClaims = "claims"
    ctxUser   = "user"
)

// TokenHeader carries the session token.  "Authorization: Bearer" is
// accepted as well.
const TokenHeader = "x-access-token"

var errNotAuthenticated = echo.Map{"error": "not authenticated"}

// Authenticate verifies the session token and resolves its identity to a
// live user.  Every failure answers 401 with the same body so a caller
// cannot tell a bad signature from an expired token or a deleted account;
// the reason is only logged.
func Authenticate(a *auth.Authenticator, users repository.UserRepository, log *zap.Logger) echo.MiddlewareFunc {
    if log == nil {
        log = zap.NewNop()
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            claims, err := a.Verify(tokenFrom(c.Request()))
            if err != nil {
                log.Debug("token rejected", zap.String("path", c.Path()), zap.Error(err))
                return c.JSON(http.StatusUnauthorized, errNotAuthenticated)
            }
            u, err := users.GetByEmail(c.Request().Context(), claims.Identity)
            if err != nil {
                if !errors.Is(err, repository.ErrUserNotFound) {
                    log.Error("identity lookup failed", zap.Error(err))
                    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
                }
                log.Debug("token rejected", zap.String("path", c.Path()), zap.Error(auth.ErrUnknownIdentity))
                return c.JSON(http.StatusUnauthorized, errNotAuthenticated)
            }
            // the stored role is authoritative over the one signed into the token
            claims.Role = u.Role
            c.Set(ctxClaims, claims)
            c.Set(ctxUser, u)
            return next(c)
        }
    }
}

func tokenFrom(r *http.Request) string {
    if t := r.Header.Get(TokenHeader); t != "" {
        return t
    }
    if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
        return strings.TrimPrefix(h, "Bearer ")
    }
    return ""
}

// ClaimsFrom returns the verified claims stored by Authenticate.
func ClaimsFrom(c echo.Context) *auth.Claims {
    cl, _ := c.Get(ctxClaims).(*auth.Claims)
    return cl
}

// UserFrom returns the resolved user stored by Authenticate.
func UserFrom(c echo.Context) *model.User {
    u, _ := c.Get(ctxUser).(*model.User)
    return u
}
