package middleware

import (
    "context"
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/showbook/internal/config"
)

// tokenBucketScript refills the bucket by whole intervals, takes one token
// if available and returns {allowed, tokens left, ms until next token}.
var tokenBucketScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])
    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
    if intervals > 0 then
        tokens = math.min(capacity, tokens + intervals * refill_tokens)
        last_refill = last_refill + intervals * interval_ms
    end

    local allowed = 0
    local retry_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        retry_ms = math.max(0, interval_ms - (now_ms - last_refill))
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)
    return { allowed, tokens, retry_ms }
`)

// Decision is the limiter's verdict for one request.
type Decision struct {
    Allowed    bool
    Remaining  int64
    RetryAfter time.Duration
}

// TokenBucket is a Redis-backed limiter shared by every server process.
type TokenBucket struct {
    cfg config.RateLimitConfig
    rdb redis.Scripter
    log *zap.Logger
    now func() time.Time
}

func NewTokenBucket(cfg config.RateLimitConfig, rdb redis.Scripter, log *zap.Logger) *TokenBucket {
    if log == nil {
        log = zap.NewNop()
    }
    return &TokenBucket{cfg: cfg, rdb: rdb, log: log.With(zap.String("component", "ratelimit")), now: time.Now}
}

// Allow takes one token from key's bucket.
func (tb *TokenBucket) Allow(ctx context.Context, key string) (Decision, error) {
    vals, err := tokenBucketScript.Run(ctx, tb.rdb, []string{key},
        tb.now().UnixMilli(),
        tb.cfg.Capacity,
        tb.cfg.RefillTokens,
        tb.cfg.RefillInterval.Milliseconds(),
        int64(tb.cfg.TTL/time.Second),
    ).Result()
    if err != nil {
        return Decision{}, err
    }
    arr, ok := vals.([]interface{})
    if !ok || len(arr) != 3 {
        return Decision{}, fmt.Errorf("unexpected limiter result %#v", vals)
    }
    return Decision{
        Allowed:    asInt64(arr[0]) == 1,
        Remaining:  asInt64(arr[1]),
        RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
    }, nil
}

// Middleware applies the limiter.  Redis errors let the request through.
func (tb *TokenBucket) Middleware() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := rateKey(tb.cfg, c)
            d, err := tb.Allow(c.Request().Context(), key)
            if err != nil {
                tb.log.Warn("limiter unavailable", zap.String("key", key), zap.Error(err))
                return next(c)
            }
            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(tb.cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
            if !d.Allowed {
                secs := int(math.Ceil(d.RetryAfter.Seconds()))
                h.Set("Retry-After", strconv.Itoa(secs))
                if tb.cfg.Debug {
                    tb.log.Info("request throttled", zap.String("key", key), zap.Duration("retry_after", d.RetryAfter))
                }
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "error":       "rate limit exceeded",
                    "retry_after": secs,
                })
            }
            return next(c)
        }
    }
}

// RateLimit returns the limiter middleware, or a pass-through when rate
// limiting is disabled or Redis is not available.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return NewTokenBucket(cfg, rdb, log).Middleware()
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        n, _ := strconv.ParseInt(t, 10, 64)
        return n
    }
    return 0
}

// rateKey builds the bucket key from the parts named by cfg.KeyStrategy.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    user := "anon"
    if cl := ClaimsFrom(c); cl != nil {
        user = cl.Identity
    }
    route := c.Request().Method + " " + c.Path()

    parts := []string{cfg.Prefix}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", user)
    case "route":
        parts = append(parts, "route", route)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", user, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", user, "route", route)
    }
    return strings.Join(parts, ":")
}
