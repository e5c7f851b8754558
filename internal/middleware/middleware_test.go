package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/showbook/internal/auth"
	"github.com/iliyamo/showbook/internal/cache"
	"github.com/iliyamo/showbook/internal/config"
	"github.com/iliyamo/showbook/internal/model"
	"github.com/iliyamo/showbook/internal/repository"
)

var now = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	e     *echo.Echo
	authn *auth.Authenticator
	store *repository.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := repository.NewMemoryStore().Store()
	ctx := context.Background()
	require.NoError(t, st.Users.Create(ctx, &model.User{Email: "admin@example.com", Name: "root", Role: model.RoleAdmin}))
	require.NoError(t, st.Users.Create(ctx, &model.User{Email: "bob@example.com", Name: "bob", Role: model.RoleUser}))
	a := auth.NewAuthenticator("secret", 30*time.Minute).WithClock(func() time.Time { return now.Add(time.Minute) })

	e := echo.New()
	whoami := func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"email": UserFrom(c).Email, "role": ClaimsFrom(c).Role})
	}
	g := e.Group("", Authenticate(a, st.Users, zap.NewNop()))
	g.GET("/any", whoami, RequireRole(auth.RoleAny))
	g.GET("/admin", whoami, RequireRole(model.RoleAdmin))
	return &env{e: e, authn: a, store: st}
}

func (v *env) token(t *testing.T, email, role string, issued time.Time) string {
	t.Helper()
	tok, err := v.authn.Issue(email, "x", role, issued, issued)
	require.NoError(t, err)
	return tok.Raw
}

func (v *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticateAcceptsBothHeaders(t *testing.T) {
	v := newEnv(t)
	tok := v.token(t, "bob@example.com", model.RoleUser, now)

	req := httptest.NewRequest(http.MethodGet, "/any", nil)
	req.Header.Set(TokenHeader, tok)
	rec := v.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bob@example.com")

	req = httptest.NewRequest(http.MethodGet, "/any", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusOK, v.do(req).Code)
}

func TestAuthenticateRejectsUniformly(t *testing.T) {
	v := newEnv(t)
	expired := v.token(t, "bob@example.com", model.RoleUser, now.Add(-time.Hour))
	ghost := v.token(t, "ghost@example.com", model.RoleUser, now)

	for name, tok := range map[string]string{
		"missing": "",
		"garbage": "abc.def.ghi",
		"expired": expired,
		"unknown": ghost,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/any", nil)
			if tok != "" {
				req.Header.Set(TokenHeader, tok)
			}
			rec := v.do(req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"not authenticated"}`, rec.Body.String())
		})
	}
}

func TestRequireRole(t *testing.T) {
	v := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(TokenHeader, v.token(t, "bob@example.com", model.RoleUser, now))
	rec := v.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"requires admin"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(TokenHeader, v.token(t, "admin@example.com", model.RoleAdmin, now))
	assert.Equal(t, http.StatusOK, v.do(req).Code)
}

func TestStoredRoleWinsOverTokenRole(t *testing.T) {
	v := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(TokenHeader, v.token(t, "bob@example.com", model.RoleAdmin, now))
	assert.Equal(t, http.StatusForbidden, v.do(req).Code)
}

func TestResponseCache(t *testing.T) {
	e := echo.New()
	var calls atomic.Int64
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 20}
	e.GET("/venues", func(c echo.Context) error {
		calls.Add(1)
		return c.JSON(http.StatusOK, echo.Map{"n": 1})
	}, ResponseCache(cfg, cache.NewMemory(), nil))

	first := httptest.NewRecorder()
	e.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/venues", nil))
	second := httptest.NewRecorder()
	e.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/venues", nil))

	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, first.Header().Get(echo.HeaderContentType), second.Header().Get(echo.HeaderContentType))
	assert.EqualValues(t, 1, calls.Load())

	other := httptest.NewRecorder()
	e.ServeHTTP(other, httptest.NewRequest(http.MethodGet, "/venues?q=x", nil))
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
}

func TestResponseCacheSkipsOversizedBodies(t *testing.T) {
	e := echo.New()
	var calls atomic.Int64
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, MaxBodyBytes: 4}
	e.GET("/big", func(c echo.Context) error {
		calls.Add(1)
		return c.String(http.StatusOK, "0123456789")
	}, ResponseCache(cfg, cache.NewMemory(), nil))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/big", nil))
		assert.Equal(t, "0123456789", rec.Body.String())
	}
	assert.EqualValues(t, 2, calls.Load())
}

// fakeScripter answers EVALSHA with a fixed limiter verdict.
type fakeScripter struct {
	redis.Scripter
	reply []interface{}
	err   error
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, _ []string, _ ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(f.reply)
	}
	return cmd
}

func (f *fakeScripter) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, "", keys, args...)
}

func limited(s redis.Scripter) *echo.Echo {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 3, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e := echo.New()
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, s, nil).Middleware())
	return e
}

func TestRateLimitBlocks(t *testing.T) {
	e := limited(&fakeScripter{reply: []interface{}{int64(0), int64(0), int64(1500)}})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitAllowsAndFailsOpen(t *testing.T) {
	e := limited(&fakeScripter{reply: []interface{}{int64(1), int64(2), int64(0)}})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Remaining"))

	e = limited(&fakeScripter{err: errors.New("connection refused")})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitDisabledWithoutRedis(t *testing.T) {
	mw := RateLimit(config.RateLimitConfig{Enabled: true}, nil, nil)
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, mw)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverAndRequestLogger(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger(zap.NewNop()), Recover(zap.NewNop()))
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}
