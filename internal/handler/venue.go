package handler

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/showbook/internal/middleware"
    "github.com/iliyamo/showbook/internal/model"
    "github.com/iliyamo/showbook/internal/utils"
)

type venueReq struct {
    Name     string `json:"name" validate:"required,max=200"`
    Place    string `json:"place" validate:"required,max=200"`
    Location string `json:"location" validate:"required,max=200"`
    Capacity int    `json:"capacity" validate:"gte=1"`
}

func (r *venueReq) venue() model.Venue {
    return model.Venue{
        Name:     strings.TrimSpace(r.Name),
        Place:    strings.TrimSpace(r.Place),
        Location: strings.TrimSpace(r.Location),
        Capacity: r.Capacity,
    }
}

// ListVenues handles GET /venues.
func (h *CatalogHandler) ListVenues(c echo.Context) error {
    venues, err := h.Store.Venues.List(c.Request().Context())
    if err != nil {
        return respond(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"venues": venues})
}

// CreateVenue handles POST /venues.
func (h *CatalogHandler) CreateVenue(c echo.Context) error {
    var req venueReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    if err := utils.Validate(req); err != nil {
        return respond(c, h.Log, err)
    }
    v := req.venue()
    if err := h.Store.Venues.Create(c.Request().Context(), &v); err != nil {
        return respond(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"message": "success", "venue": v})
}

// UpdateVenue handles PUT /venues/:id.
func (h *CatalogHandler) UpdateVenue(c echo.Context) error {
    id, ok := idParam(c, "id")
    if !ok {
        return badRequest(c, "invalid venue id")
    }
    var req venueReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    if err := utils.Validate(req); err != nil {
        return respond(c, h.Log, err)
    }
    v := req.venue()
    v.ID = id
    if err := h.Store.Venues.Update(c.Request().Context(), &v); err != nil {
        return respond(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "success", "venue": v})
}

// DeleteVenue handles DELETE /venues/:id.  The venue's shows go with it,
// which is refused when any of them has bookings.
func (h *CatalogHandler) DeleteVenue(c echo.Context) error {
    id, ok := idParam(c, "id")
    if !ok {
        return badRequest(c, "invalid venue id")
    }
    ctx := c.Request().Context()
    showIDs, err := h.Store.Venues.Delete(ctx, id)
    if err != nil {
        return respond(c, h.Log, err)
    }
    for _, sid := range showIDs {
        h.Ledger.Invalidate(ctx, sid)
    }
    actor := ""
    if cl := middleware.ClaimsFrom(c); cl != nil {
        actor = cl.Identity
    }
    h.Log.Info("venue deleted",
        zap.Uint64("venue_id", id),
        zap.Uint64s("cascaded_show_ids", showIDs),
        zap.String("actor", actor),
    )
    return c.JSON(http.StatusOK, echo.Map{"message": "success", "deleted_shows": len(showIDs)})
}
