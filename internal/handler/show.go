package handler

import (
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/showbook/internal/middleware"
    "github.com/iliyamo/showbook/internal/model"
    "github.com/iliyamo/showbook/internal/utils"
)

type showReq struct {
    Name    string `json:"name" validate:"required,max=200"`
    Time    string `json:"time" validate:"required,max=64"`
    Tag     string `json:"tag" validate:"max=100"`
    Rating  int    `json:"rating" validate:"gte=0,lte=5"`
    Tickets int    `json:"tickets" validate:"gte=1"`
    Price   int    `json:"price" validate:"gte=0"`
    Venue   uint64 `json:"venue" validate:"required"`
}

func (r *showReq) show() model.Show {
    return model.Show{
        VenueID: r.Venue,
        Name:    strings.TrimSpace(r.Name),
        Time:    strings.TrimSpace(r.Time),
        Tag:     strings.TrimSpace(r.Tag),
        Rating:  r.Rating,
        Tickets: r.Tickets,
        Price:   r.Price,
    }
}

// ListShows handles GET /shows and GET /shows?venueid=.
func (h *CatalogHandler) ListShows(c echo.Context) error {
    ctx := c.Request().Context()
    var (
        shows []model.Show
        err   error
    )
    if raw := c.QueryParam("venueid"); raw != "" {
        id, perr := strconv.ParseUint(raw, 10, 64)
        if perr != nil {
            return badRequest(c, "invalid venueid")
        }
        shows, err = h.Store.Shows.ListByVenue(ctx, id)
    } else {
        shows, err = h.Store.Shows.List(ctx)
    }
    if err != nil {
        return respond(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"shows": shows})
}

// CreateShow handles POST /shows.
func (h *CatalogHandler) CreateShow(c echo.Context) error {
    var req showReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    if err := utils.Validate(req); err != nil {
        return respond(c, h.Log, err)
    }
    s := req.show()
    if err := h.Store.Shows.Create(c.Request().Context(), &s); err != nil {
        return respond(c, h.Log, err)
    }
    h.Ledger.Invalidate(c.Request().Context(), s.ID)
    return c.JSON(http.StatusCreated, echo.Map{"message": "success", "show": s})
}

// UpdateShow handles PUT /shows/:id.  Existing bookings keep the price
// and details they were booked with.
func (h *CatalogHandler) UpdateShow(c echo.Context) error {
    id, ok := idParam(c, "id")
    if !ok {
        return badRequest(c, "invalid show id")
    }
    var req showReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    if err := utils.Validate(req); err != nil {
        return respond(c, h.Log, err)
    }
    s := req.show()
    s.ID = id
    if err := h.Store.Shows.Update(c.Request().Context(), &s); err != nil {
        return respond(c, h.Log, err)
    }
    h.Ledger.Invalidate(c.Request().Context(), id)
    return c.JSON(http.StatusOK, echo.Map{"message": "success", "show": s})
}

// DeleteShow handles DELETE /shows/:id.
func (h *CatalogHandler) DeleteShow(c echo.Context) error {
    id, ok := idParam(c, "id")
    if !ok {
        return badRequest(c, "invalid show id")
    }
    ctx := c.Request().Context()
    if err := h.Store.Shows.Delete(ctx, id); err != nil {
        return respond(c, h.Log, err)
    }
    h.Ledger.Invalidate(ctx, id)
    actor := ""
    if cl := middleware.ClaimsFrom(c); cl != nil {
        actor = cl.Identity
    }
    h.Log.Info("show deleted", zap.Uint64("show_id", id), zap.String("actor", actor))
    return c.JSON(http.StatusOK, echo.Map{"message": "success"})
}
