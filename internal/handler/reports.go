package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/showbook/internal/model"
	"github.com/iliyamo/showbook/internal/report"
	"github.com/iliyamo/showbook/internal/repository"
)

// ReportHandler serves admin occupancy reports as JSON or CSV.
type ReportHandler struct {
	Bookings repository.BookingRepository
	Log      *zap.Logger
	Now      func() time.Time
}

func NewReportHandler(bookings repository.BookingRepository, log *zap.Logger) *ReportHandler {
	return &ReportHandler{Bookings: bookings, Log: log, Now: time.Now}
}

// VenueBookings handles GET /venue_bookings.
func (h *ReportHandler) VenueBookings(c echo.Context) error {
	return h.serve(c, "venue_bookings", h.Bookings.OccupancyByVenue)
}

// ShowBookings handles GET /show_bookings.
func (h *ReportHandler) ShowBookings(c echo.Context) error {
	return h.serve(c, "show_bookings", h.Bookings.OccupancyByShow)
}

func (h *ReportHandler) serve(c echo.Context, name string, load func(context.Context) ([]model.Occupancy, error)) error {
	rows, err := load(c.Request().Context())
	if err != nil {
		return respond(c, h.Log, err)
	}
	if !strings.EqualFold(c.QueryParam("format"), "csv") {
		return c.JSON(http.StatusOK, echo.Map{"message": "success", "rows": rows})
	}
	filename := fmt.Sprintf("%s-%s.csv", name, h.Now().UTC().Format("20060102"))
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	res.WriteHeader(http.StatusOK)
	return report.WriteOccupancy(res, rows)
}
