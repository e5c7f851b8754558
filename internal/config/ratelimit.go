package config

import (
    "time"

    "github.com/spf13/viper"
)

type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    Debug          bool
}

func setRateLimitDefaults(v *viper.Viper) {
    v.SetDefault("RATE_LIMIT_ENABLED", true)
    v.SetDefault("RATE_LIMIT_CAPACITY", 60)
    v.SetDefault("RATE_LIMIT_REFILL_TOKENS", 1)
    v.SetDefault("RATE_LIMIT_REFILL_INTERVAL", "1s")
    v.SetDefault("RATE_LIMIT_TTL", "10m")
    v.SetDefault("RATE_LIMIT_KEY_STRATEGY", "ip_user_route")
    v.SetDefault("RATE_LIMIT_PREFIX", "rl")
    v.SetDefault("RATE_LIMIT_DEBUG", false)
}

func rateLimitFrom(v *viper.Viper) RateLimitConfig {
    rl := RateLimitConfig{
        Enabled:        v.GetBool("RATE_LIMIT_ENABLED"),
        Capacity:       v.GetInt("RATE_LIMIT_CAPACITY"),
        RefillTokens:   v.GetInt("RATE_LIMIT_REFILL_TOKENS"),
        RefillInterval: v.GetDuration("RATE_LIMIT_REFILL_INTERVAL"),
        TTL:            v.GetDuration("RATE_LIMIT_TTL"),
        KeyStrategy:    v.GetString("RATE_LIMIT_KEY_STRATEGY"),
        Prefix:         v.GetString("RATE_LIMIT_PREFIX"),
        Debug:          v.GetBool("RATE_LIMIT_DEBUG"),
    }
    if b := v.GetInt("RATE_LIMIT_BURST"); b > 0 { rl.Capacity = b }
    if every := v.GetDuration("RATE_LIMIT_REFILL_EVERY"); every > 0 {
        rl.RefillTokens = 1
        rl.RefillInterval = every
    }
    if rl.Capacity < 1 { rl.Capacity = 1 }
    if rl.RefillTokens < 1 { rl.RefillTokens = 1 }
    if rl.RefillInterval <= 0 { rl.RefillInterval = time.Second }
    if minTTL := 5 * rl.RefillInterval; rl.TTL < minTTL { rl.TTL = minTTL }
    return rl
}
