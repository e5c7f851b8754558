package router // package router wires handlers and middleware onto echo routes

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/showbook/internal/auth"
	"github.com/iliyamo/showbook/internal/handler"
	"github.com/iliyamo/showbook/internal/middleware"
	"github.com/iliyamo/showbook/internal/model"
	"github.com/iliyamo/showbook/internal/repository"
)

// Deps is everything the routes need.  RateLimit and ResponseCache may be
// nil, in which case those stages are skipped.
type Deps struct {
	Log           *zap.Logger
	Authn         *auth.Authenticator
	Users         repository.UserRepository
	DB            handler.Pinger
	Auth          *handler.AuthHandler
	Catalog       *handler.CatalogHandler
	Bookings      *handler.BookingHandler
	Reports       *handler.ReportHandler
	RateLimit     echo.MiddlewareFunc
	ResponseCache echo.MiddlewareFunc
}

// New builds the echo instance with the global middleware and all routes.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler(d.Log)
	e.Use(middleware.RequestLogger(d.Log), middleware.Recover(d.Log))

	r := &routes{d: d}
	r.public(e)
	r.catalog(e)
	r.bookings(e)
	r.reports(e)
	return e
}

type routes struct{ d Deps }

// gate returns the authentication and role stages for a route followed
// by any extra stages that are set.
func (r *routes) gate(role string, extra ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	mws := []echo.MiddlewareFunc{
		middleware.Authenticate(r.d.Authn, r.d.Users, r.d.Log),
		middleware.RequireRole(role),
	}
	for _, m := range extra {
		if m != nil {
			mws = append(mws, m)
		}
	}
	return mws
}

func optional(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (r *routes) public(e *echo.Echo) {
	e.GET("/healthz", handler.Health(r.d.DB))
	e.POST("/register", r.d.Auth.Register, optional(r.d.RateLimit)...)
	e.POST("/login/:role", r.d.Auth.Login, optional(r.d.RateLimit)...)
}

func (r *routes) catalog(e *echo.Echo) {
	c := r.d.Catalog

	e.GET("/venues", c.ListVenues, r.gate(auth.RoleAny, r.d.ResponseCache)...)
	e.POST("/venues", c.CreateVenue, r.gate(model.RoleAdmin)...)
	e.PUT("/venues/:id", c.UpdateVenue, r.gate(model.RoleAdmin)...)
	e.DELETE("/venues/:id", c.DeleteVenue, r.gate(model.RoleAdmin)...)

	e.GET("/shows", c.ListShows, r.gate(auth.RoleAny, r.d.ResponseCache)...)
	e.POST("/shows", c.CreateShow, r.gate(model.RoleAdmin)...)
	e.PUT("/shows/:id", c.UpdateShow, r.gate(model.RoleAdmin)...)
	e.DELETE("/shows/:id", c.DeleteShow, r.gate(model.RoleAdmin)...)

	// availability has its own short-lived cache in the ledger
	e.GET("/tickets", c.Availability, r.gate(auth.RoleAny)...)
	e.GET("/tickets/:showid", c.ShowAvailability, r.gate(auth.RoleAny)...)

	e.GET("/search", c.Search, r.gate(auth.RoleAny, r.d.ResponseCache)...)
}

func (r *routes) bookings(e *echo.Echo) {
	b := r.d.Bookings
	e.POST("/bookings", b.Create, r.gate(model.RoleUser, r.d.RateLimit)...)
	e.GET("/bookings", b.List, r.gate(model.RoleUser)...)
	e.PUT("/bookings/:id", b.Rate, r.gate(model.RoleUser)...)
}

func (r *routes) reports(e *echo.Echo) {
	e.GET("/venue_bookings", r.d.Reports.VenueBookings, r.gate(model.RoleAdmin)...)
	e.GET("/show_bookings", r.d.Reports.ShowBookings, r.gate(model.RoleAdmin)...)
}
