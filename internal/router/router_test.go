package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/showbook/internal/auth"
	"github.com/iliyamo/showbook/internal/booking"
	"github.com/iliyamo/showbook/internal/cache"
	"github.com/iliyamo/showbook/internal/handler"
	"github.com/iliyamo/showbook/internal/inventory"
	"github.com/iliyamo/showbook/internal/repository"
)

type api struct {
	t *testing.T
	e *echo.Echo
}

func newAPI(t *testing.T) *api {
	t.Helper()
	log := zap.NewNop()
	st := repository.NewMemoryStore().Store()
	authn := auth.NewAuthenticator("test-secret", 30*time.Minute)
	ledger := inventory.New(st, cache.NewMemory(), time.Second, log)
	mgr := booking.NewManager(st, ledger, nil, log)

	e := New(Deps{
		Log:      log,
		Authn:    authn,
		Users:    st.Users,
		Auth:     handler.NewAuthHandler(st.Users, authn, 4, log),
		Catalog:  handler.NewCatalogHandler(st, ledger, log),
		Bookings: handler.NewBookingHandler(mgr, st.Bookings, log),
		Reports:  handler.NewReportHandler(st.Bookings, log),
	})
	return &api{t: t, e: e}
}

func (a *api) call(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(bs)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("x-access-token", token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

// account registers and logs in, returning the session token.
func (a *api) account(name string, admin bool) string {
	a.t.Helper()
	email := name + "@example.com"
	rec := a.call(http.MethodPost, "/register", "", map[string]interface{}{
		"email": email, "password": "password1", "username": name, "admin": admin,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	role := "user"
	if admin {
		role = "admin"
	}
	req := httptest.NewRequest(http.MethodPost, "/login/"+role, nil)
	req.SetBasicAuth(email, "password1")
	out := httptest.NewRecorder()
	a.e.ServeHTTP(out, req)
	require.Equal(a.t, http.StatusOK, out.Code, out.Body.String())
	return decode(a.t, out)["token"].(string)
}

func (a *api) id(rec *httptest.ResponseRecorder, key string) uint64 {
	a.t.Helper()
	obj := decode(a.t, rec)[key].(map[string]interface{})
	return uint64(obj["id"].(float64))
}

func (a *api) catalog(admin string, capacity, price int) (venueID, showID uint64) {
	a.t.Helper()
	rec := a.call(http.MethodPost, "/venues", admin, map[string]interface{}{
		"name": "Globe", "place": "Bankside", "location": "London", "capacity": 1500,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	venueID = a.id(rec, "venue")
	rec = a.call(http.MethodPost, "/shows", admin, map[string]interface{}{
		"name": "Hamlet", "time": "19:30", "tag": "tragedy", "rating": 5,
		"tickets": capacity, "price": price, "venue": venueID,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return venueID, a.id(rec, "show")
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec := a.call(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGlobeHamletOverHTTP(t *testing.T) {
	a := newAPI(t)
	admin := a.account("root", true)
	venueID, showID := a.catalog(admin, 2, 10)
	ua, ub, uc := a.account("a", false), a.account("b", false), a.account("c", false)

	rec := a.call(http.MethodPost, "/bookings", ua, map[string]interface{}{"venueid": venueID, "showid": showID, "tickets": 1, "price": 0})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["remaining"])
	assert.EqualValues(t, 10, body["booking"].(map[string]interface{})["total_price"])

	rec = a.call(http.MethodPost, "/bookings", ub, map[string]interface{}{"showid": showID, "tickets": 2})
	require.Equal(t, http.StatusConflict, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "insufficient availability", body["error"])
	assert.EqualValues(t, 1, body["remaining"])

	rec = a.call(http.MethodPost, "/bookings", uc, map[string]interface{}{"showid": showID, "tickets": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["remaining"])

	rec = a.call(http.MethodGet, fmt.Sprintf("/tickets/%d?fresh=true", showID), ua, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["available"])

	rec = a.call(http.MethodGet, "/tickets", ua, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode(t, rec)["available"].(map[string]interface{})
	assert.EqualValues(t, 0, avail[fmt.Sprint(showID)])
}

func TestAuthFailures(t *testing.T) {
	a := newAPI(t)
	admin := a.account("root", true)
	user := a.account("bob", false)

	rec := a.call(http.MethodGet, "/venues", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"not authenticated"}`, rec.Body.String())

	rec = a.call(http.MethodGet, "/venues", "garbage", nil)
	assert.JSONEq(t, `{"error":"not authenticated"}`, rec.Body.String())

	rec = a.call(http.MethodPost, "/venues", user, map[string]interface{}{"name": "x", "place": "y", "location": "z", "capacity": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"requires admin"}`, rec.Body.String())

	rec = a.call(http.MethodPost, "/bookings", admin, map[string]interface{}{"showid": 1, "tickets": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"requires user"}`, rec.Body.String())
}

func TestRegisterAndLoginRules(t *testing.T) {
	a := newAPI(t)
	a.account("bob", false)

	rec := a.call(http.MethodPost, "/register", "", map[string]interface{}{
		"email": "BOB@example.com", "password": "password1", "username": "bob2",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.call(http.MethodPost, "/register", "", map[string]interface{}{"email": "nope", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.call(http.MethodPost, "/login/admin", "", map[string]interface{}{"email": "bob@example.com", "password": "password1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.call(http.MethodPost, "/login/user", "", map[string]interface{}{"email": "bob@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.call(http.MethodPost, "/login/user", "", map[string]interface{}{"email": "bob@example.com", "password": "password1"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["token"])
	assert.EqualValues(t, 1800, body["expires_in"])

	rec = a.call(http.MethodPost, "/login/root", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalogLifecycle(t *testing.T) {
	a := newAPI(t)
	admin := a.account("root", true)
	user := a.account("bob", false)
	venueID, showID := a.catalog(admin, 5, 10)

	rec := a.call(http.MethodGet, fmt.Sprintf("/shows?venueid=%d", venueID), user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["shows"], 1)

	rec = a.call(http.MethodPost, "/shows", admin, map[string]interface{}{"name": "X", "time": "t", "tickets": 1, "venue": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.call(http.MethodPost, "/bookings", user, map[string]interface{}{"showid": showID, "tickets": 3})
	require.Equal(t, http.StatusCreated, rec.Code)
	bookingID := uint64(decode(t, rec)["booking"].(map[string]interface{})["booking_id"].(float64))

	// price edit leaves the booking untouched; capacity below booked is refused
	rec = a.call(http.MethodPut, fmt.Sprintf("/shows/%d", showID), admin, map[string]interface{}{
		"name": "Hamlet", "time": "20:00", "tickets": 5, "price": 99, "venue": venueID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.call(http.MethodPut, fmt.Sprintf("/shows/%d", showID), admin, map[string]interface{}{
		"name": "Hamlet", "time": "20:00", "tickets": 2, "price": 99, "venue": venueID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.call(http.MethodGet, "/bookings", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["bookings"].([]interface{})
	require.Len(t, list, 1)
	assert.EqualValues(t, 10, list[0].(map[string]interface{})["price"])

	rec = a.call(http.MethodPut, fmt.Sprintf("/bookings/%d", bookingID), user, map[string]interface{}{"rating": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	other := a.account("eve", false)
	rec = a.call(http.MethodPut, fmt.Sprintf("/bookings/%d", bookingID), other, map[string]interface{}{"rating": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, http.StatusConflict, a.call(http.MethodDelete, fmt.Sprintf("/shows/%d", showID), admin, nil).Code)
	assert.Equal(t, http.StatusConflict, a.call(http.MethodDelete, fmt.Sprintf("/venues/%d", venueID), admin, nil).Code)

	rec = a.call(http.MethodGet, "/search?q=haml", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["shows"], 1)
}

func TestVenueDeleteCascadesWithoutBookings(t *testing.T) {
	a := newAPI(t)
	admin := a.account("root", true)
	user := a.account("bob", false)
	venueID, showID := a.catalog(admin, 5, 10)

	rec := a.call(http.MethodDelete, fmt.Sprintf("/venues/%d", venueID), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["deleted_shows"])

	rec = a.call(http.MethodGet, fmt.Sprintf("/tickets/%d", showID), user, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOccupancyReports(t *testing.T) {
	a := newAPI(t)
	admin := a.account("root", true)
	user := a.account("bob", false)
	_, showID := a.catalog(admin, 5, 10)
	require.Equal(t, http.StatusCreated, a.call(http.MethodPost, "/bookings", user, map[string]interface{}{"showid": showID, "tickets": 2}).Code)

	rec := a.call(http.MethodGet, "/show_bookings", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode(t, rec)["rows"].([]interface{})
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, rows[0].(map[string]interface{})["booked"])

	rec = a.call(http.MethodGet, "/venue_bookings?format=csv", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/csv"))
	assert.Contains(t, rec.Body.String(), "Globe,5,2,1")

	assert.Equal(t, http.StatusForbidden, a.call(http.MethodGet, "/show_bookings", user, nil).Code)
}
