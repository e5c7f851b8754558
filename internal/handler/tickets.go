package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Availability handles GET /tickets.  Values may lag the latest booking by
// the inventory cache TTL.
func (h *CatalogHandler) Availability(c echo.Context) error {
	m, err := h.Ledger.AvailabilityCached(c.Request().Context())
	if err != nil {
		return respond(c, h.Log, err)
	}
	out := make(map[string]int, len(m))
	for id, n := range m {
		out[strconv.FormatUint(id, 10)] = n
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "success", "available": out})
}

// ShowAvailability handles GET /tickets/:showid.  With ?fresh=true the
// count is read under the show's lock instead of from the cache.
func (h *CatalogHandler) ShowAvailability(c echo.Context) error {
	id, ok := idParam(c, "showid")
	if !ok {
		return badRequest(c, "invalid show id")
	}
	ctx := c.Request().Context()
	fresh, _ := strconv.ParseBool(c.QueryParam("fresh"))
	var (
		n   int
		err error
	)
	if fresh {
		n, err = h.Ledger.Remaining(ctx, id)
	} else {
		n, err = h.Ledger.RemainingCached(ctx, id)
	}
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": id, "available": n, "fresh": fresh})
}
