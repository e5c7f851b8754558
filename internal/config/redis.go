package config

// Redis backs the inventory cache, the response cache and the rate
// limiter.  When it cannot be reached at startup the caller falls back to
// the in-process cache and disables rate limiting.

import (
    "context"
    "crypto/tls"
    "time"

    "github.com/redis/go-redis/v9"
    "github.com/spf13/viper"
)

// RedisConfig selects the Redis server.  REDIS_HOST and REDIS_PORT take
// precedence over REDIS_ADDR.  An empty address disables Redis.
type RedisConfig struct {
    Addr     string
    Password string
    DB       int
    TLS      bool
}

func setRedisDefaults(v *viper.Viper) {
    v.SetDefault("REDIS_DB", 0)
    v.SetDefault("REDIS_TLS", false)
}

func redisFrom(v *viper.Viper) RedisConfig {
    addr := v.GetString("REDIS_ADDR")
    if host, port := v.GetString("REDIS_HOST"), v.GetString("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    return RedisConfig{
        Addr:     addr,
        Password: v.GetString("REDIS_PASSWORD"),
        DB:       v.GetInt("REDIS_DB"),
        TLS:      v.GetBool("REDIS_TLS"),
    }
}

// NewRedisClient dials Redis and pings it with a short timeout.  It
// returns nil when Redis is not configured or not reachable.
func NewRedisClient(rc RedisConfig) *redis.Client {
    if rc.Addr == "" {
        return nil
    }
    var tlsConf *tls.Config
    if rc.TLS {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      rc.Addr,
        Password:  rc.Password,
        DB:        rc.DB,
        TLSConfig: tlsConf,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
