package config // package config loads application configuration from the environment

import (
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "github.com/spf13/viper"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable of the same upper-cased name.
type Config struct {
    Env  string // APP_ENV (dev, test, prod)
    Port string // APP_PORT

    StoreDriver string // STORE_DRIVER: mysql or memory
    DBUser      string
    DBPass      string
    DBHost      string
    DBPort      string
    DBName      string
    DBMigrate   bool // DB_MIGRATE applies the embedded schema at startup

    JWTSecret    string
    AccessTTLMin int
    BcryptCost   int

    MaxTicketsPerBooking int
    InventoryCacheTTL    time.Duration

    RabbitURL string // empty disables publishing

    LogPath  string
    LogDebug bool

    ReminderAfter    time.Duration // idle period before a reminder is sent
    ReminderEvery    time.Duration
    ReportEvery      time.Duration
    SchedulerEnabled bool

    Redis     RedisConfig
    Cache     CacheConfig
    RateLimit RateLimitConfig
}

// AccessTTL is the token lifetime as a duration.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }


// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env entries.
func Load(envFiles ...string) (Config, error) {
    if len(envFiles) == 0 {
        envFiles = []string{".env"}
    }
    for _, f := range envFiles {
        _ = godotenv.Load(f) // a missing .env is fine
    }
    return FromViper(newViper())
}

func newViper() *viper.Viper {
    v := viper.New()
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()

    v.SetDefault("APP_ENV", "dev")
    v.SetDefault("APP_PORT", "8080")
    v.SetDefault("STORE_DRIVER", "mysql")
    v.SetDefault("DB_HOST", "127.0.0.1")
    v.SetDefault("DB_PORT", "3306")
    v.SetDefault("DB_MIGRATE", true)
    v.SetDefault("ACCESS_TOKEN_TTL_MIN", 30)
    v.SetDefault("BCRYPT_COST", 10)
    v.SetDefault("MAX_TICKETS_PER_BOOKING", 20)
    v.SetDefault("INVENTORY_CACHE_TTL", "1s")
    v.SetDefault("LOG_PATH", "logs")
    v.SetDefault("LOG_DEBUG", false)
    v.SetDefault("REMINDER_AFTER", "720h")
    v.SetDefault("REMINDER_EVERY", "24h")
    v.SetDefault("REPORT_EVERY", "720h")
    v.SetDefault("SCHEDULER_ENABLED", true)
    setRedisDefaults(v)
    setCacheDefaults(v)
    setRateLimitDefaults(v)
    return v
}

// FromViper builds a Config from v and checks required values.
func FromViper(v *viper.Viper) (Config, error) {
    c := Config{
        Env:                  v.GetString("APP_ENV"),
        Port:                 v.GetString("APP_PORT"),
        StoreDriver:          strings.ToLower(v.GetString("STORE_DRIVER")),
        DBUser:               v.GetString("DB_USER"),
        DBPass:               v.GetString("DB_PASS"),
        DBHost:               v.GetString("DB_HOST"),
        DBPort:               v.GetString("DB_PORT"),
        DBName:               v.GetString("DB_NAME"),
        DBMigrate:            v.GetBool("DB_MIGRATE"),
        JWTSecret:            v.GetString("JWT_SECRET"),
        AccessTTLMin:         v.GetInt("ACCESS_TOKEN_TTL_MIN"),
        BcryptCost:           v.GetInt("BCRYPT_COST"),
        MaxTicketsPerBooking: v.GetInt("MAX_TICKETS_PER_BOOKING"),
        InventoryCacheTTL:    v.GetDuration("INVENTORY_CACHE_TTL"),
        RabbitURL:            firstNonEmpty(v.GetString("RABBITMQ_URL"), v.GetString("AMQP_URL")),
        LogPath:              v.GetString("LOG_PATH"),
        LogDebug:             v.GetBool("LOG_DEBUG"),
        ReminderAfter:        v.GetDuration("REMINDER_AFTER"),
        ReminderEvery:        v.GetDuration("REMINDER_EVERY"),
        ReportEvery:          v.GetDuration("REPORT_EVERY"),
        SchedulerEnabled:     v.GetBool("SCHEDULER_ENABLED"),
        Redis:                redisFrom(v),
        Cache:                cacheFrom(v),
        RateLimit:            rateLimitFrom(v),
    }
    return c, c.validate()
}

func (c Config) validate() error {
    var missing []string
    if c.JWTSecret == "" {
        missing = append(missing, "JWT_SECRET")
    }
    switch c.StoreDriver {
    case "mysql":
        if c.DBUser == "" {
            missing = append(missing, "DB_USER")
        }
        if c.DBName == "" {
            missing = append(missing, "DB_NAME")
        }
    case "memory":
    default:
        return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
    }
    if len(missing) > 0 {
        return fmt.Errorf("config: missing required env var(s): %s", strings.Join(missing, ", "))
    }
    if c.AccessTTLMin <= 0 {
        return errors.New("config: ACCESS_TOKEN_TTL_MIN must be positive")
    }
    return nil
}

func firstNonEmpty(vals ...string) string {
    for _, s := range vals {
        if s != "" {
            return s
        }
    }
    return ""
}
