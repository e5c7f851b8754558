package handler // handler defines the HTTP handlers of the API

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/showbook/internal/auth"
    "github.com/iliyamo/showbook/internal/booking"
    "github.com/iliyamo/showbook/internal/repository"
    "github.com/iliyamo/showbook/internal/utils"
)

// respond maps a domain error onto a status code and an {"error": ...}
// body.  Unclassified errors are logged and reported as 500 without
// detail.
func respond(c echo.Context, log *zap.Logger, err error) error {
    var (
        ve *utils.ValidationError
        ie *booking.InsufficientError
        fe *auth.ForbiddenError
    )
    switch {
    case errors.As(err, &ve):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": ve.Fields})
    case errors.As(err, &ie):
        return c.JSON(http.StatusConflict, echo.Map{
            "error":     "insufficient availability",
            "reason":    "Sorry. Check Available Tickets and Retry.",
            "requested": ie.Requested,
            "remaining": ie.Remaining,
        })
    case errors.As(err, &fe):
        return c.JSON(http.StatusForbidden, echo.Map{"error": fe.Error()})
    case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrMalformedToken),
        errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrUnknownIdentity):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
    case errors.Is(err, repository.ErrVenueNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "venue not found"})
    case errors.Is(err, repository.ErrShowNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
    case errors.Is(err, repository.ErrBookingNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
    case errors.Is(err, repository.ErrUserNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
    case errors.Is(err, repository.ErrEmailExists):
        return c.JSON(http.StatusConflict, echo.Map{"error": "account with this email already exists"})
    case errors.Is(err, repository.ErrConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "conflicts with existing bookings"})
    }
    log.Error("request failed", zap.String("method", c.Request().Method), zap.String("path", c.Path()), zap.Error(err))
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// HTTPErrorHandler renders echo's own errors (404 route, 405, bind
// failures) in the same {"error": ...} shape as the handlers.
func HTTPErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
    return func(err error, c echo.Context) {
        if c.Response().Committed {
            return
        }
        code := http.StatusInternalServerError
        msg := "internal error"
        var he *echo.HTTPError
        if errors.As(err, &he) {
            code = he.Code
            if s, ok := he.Message.(string); ok {
                msg = s
            } else {
                msg = http.StatusText(code)
            }
        } else {
            log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
        }
        if c.Request().Method == http.MethodHead {
            _ = c.NoContent(code)
            return
        }
        _ = c.JSON(code, echo.Map{"error": msg})
    }
}
