package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/showbook/internal/model"
)

// Search handles GET /search?q=.  It matches q as a case-insensitive
// substring of venue name, place and location, and of show name and tag.
func (h *CatalogHandler) Search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return badRequest(c, "q is required")
	}
	if len(q) > 100 {
		return badRequest(c, "q is too long")
	}
	var (
		venues []model.Venue
		shows  []model.Show
	)
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() (err error) {
		venues, err = h.Store.Venues.Search(ctx, q)
		return err
	})
	g.Go(func() (err error) {
		shows, err = h.Store.Shows.Search(ctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"query": q, "venues": venues, "shows": shows})
}
