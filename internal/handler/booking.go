package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/showbook/internal/booking"
    "github.com/iliyamo/showbook/internal/middleware"
    "github.com/iliyamo/showbook/internal/repository"
)

// BookingHandler serves the caller's bookings.
type BookingHandler struct {
    Manager  *booking.Manager
    Bookings repository.BookingRepository
    Log      *zap.Logger
}

func NewBookingHandler(m *booking.Manager, bookings repository.BookingRepository, log *zap.Logger) *BookingHandler {
    return &BookingHandler{Manager: m, Bookings: bookings, Log: log}
}

// bookReq accepts the client's show and ticket count.  Any price fields a
// client sends are ignored; price is taken from the show.
type bookReq struct {
    VenueID uint64 `json:"venueid"`
    ShowID  uint64 `json:"showid"`
    Tickets int    `json:"tickets"`
}

// Create handles POST /bookings.
func (h *BookingHandler) Create(c echo.Context) error {
    var req bookReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    u := middleware.UserFrom(c)
    res, err := h.Manager.Book(c.Request().Context(), middleware.ClaimsFrom(c), booking.Request{
        UserID:  u.ID,
        VenueID: req.VenueID,
        ShowID:  req.ShowID,
        Tickets: req.Tickets,
    })
    if err != nil {
        return respond(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "message":   "success",
        "booking":   res.Booking,
        "remaining": res.Remaining,
    })
}

// List handles GET /bookings.
func (h *BookingHandler) List(c echo.Context) error {
    u := middleware.UserFrom(c)
    list, err := h.Bookings.ListByUser(c.Request().Context(), u.ID)
    if err != nil {
        return respond(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "success", "bookings": list})
}

// Rate handles PUT /bookings/:id with {"rating": 1..5}.
func (h *BookingHandler) Rate(c echo.Context) error {
    id, ok := idParam(c, "id")
    if !ok {
        return badRequest(c, "invalid booking id")
    }
    var body struct {
        Rating int `json:"rating"`
    }
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid body")
    }
    u := middleware.UserFrom(c)
    b, err := h.Manager.Rate(c.Request().Context(), middleware.ClaimsFrom(c), u.ID, id, body.Rating)
    if err != nil {
        return respond(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "success", "booking": b})
}
