package shared

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv         string        `validate:"required"`
	HTTPAddr       string        `validate:"required"`
	MetricsAddr    string
	BackendBase    string        `validate:"required,url"`
	BackendRPS     int           `validate:"gt=0"`
	BackendTimeout time.Duration `validate:"gt=0"`
	SyncTimeout    time.Duration `validate:"gt=0"`
	FetchTimeout   time.Duration `validate:"gt=0"`
	RedisAddr      string
	RedisDB        int `validate:"gte=0"`
	RedisPass      string
	CacheTTL       time.Duration `validate:"gte=0"`
	MySQLDSN       string
	SessionIdleTTL time.Duration `validate:"gt=0"`
	SessionMax     int           `validate:"gt=0"`
	SyncWorkers    int           `validate:"gt=0,lte=64"`
	SyncListingIDs []int64

	// CookieSecure forces the Secure flag on the session cookie. Requests
	// that arrive over TLS, directly or behind a proxy, get it regardless.
	CookieSecure bool
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Values that fail to parse fall back to their defaults.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		}
		return def
	}
	flag := func(k string, def bool) bool {
		if v := os.Getenv(k); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not a boolean, using default")
		}
		return def
	}
	secs := func(k string, def int) time.Duration {
		return time.Duration(atoi(k, def)) * time.Second
	}
	c := Config{
		AppEnv:         env("APP_ENV", "prod"),
		HTTPAddr:       env("HTTP_ADDR", ":8080"),
		MetricsAddr:    os.Getenv("METRICS_ADDR"),
		BackendBase:    strings.TrimRight(env("BACKEND_BASE_URL", "http://localhost:8000/api"), "/"),
		BackendRPS:     atoi("BACKEND_RPS", 10),
		BackendTimeout: secs("BACKEND_TIMEOUT_SECONDS", 20),
		SyncTimeout:    secs("SYNC_TIMEOUT_SECONDS", 120),
		FetchTimeout:   secs("FETCH_TIMEOUT_SECONDS", 20),
		RedisAddr:      env("REDIS_ADDR", "localhost:6379"),
		RedisPass:      env("REDIS_PASSWORD", ""),
		RedisDB:        atoi("REDIS_DB", 0),
		CacheTTL:       secs("CACHE_TTL_SECONDS", 60),
		MySQLDSN:       os.Getenv("MYSQL_DSN"),
		SessionIdleTTL: secs("SESSION_IDLE_TTL_SECONDS", 1800),
		SessionMax:     atoi("SESSION_MAX", 10000),
		CookieSecure:   flag("COOKIE_SECURE", false),
		SyncWorkers:    atoi("SYNC_WORKERS", 4),
		SyncListingIDs: parseIDs(os.Getenv("SYNC_LISTING_IDS")),
	}
	if c.MySQLDSN == "" {
		log.Warn().Msg("MYSQL_DSN is empty, moderation journal disabled")
	}
	return c
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseIDs(csv string) []int64 {
	var out []int64
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			log.Warn().Str("value", part).Msg("ignoring bad listing id in SYNC_LISTING_IDS")
			continue
		}
		out = append(out, id)
	}
	return out
}
