package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	SymbolCacheTTLSeconds int
	SymbolCacheMaxEntries int
	AuthSecret            string
	AccessTokenTTLMinutes int
	LogLevel              string
	LogFormat             string
	RenderWorkers         int
	RenderTimeoutMs       int
	MaxLabelsPerJob       int
	PageWidthMm           float64
	PageHeightMm          float64
	PageMarginMm          float64
	CurrencySymbol        string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		SymbolCacheTTLSeconds: getInt("SYMBOL_CACHE_TTL_SECONDS", 3600),
		SymbolCacheMaxEntries: getInt("SYMBOL_CACHE_MAX_ENTRIES", 10000),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "text"),
		RenderWorkers:         getInt("RENDER_WORKERS", 8),
		RenderTimeoutMs:       getInt("RENDER_TIMEOUT_MS", 2000),
		MaxLabelsPerJob:       getInt("MAX_LABELS_PER_JOB", 10000),
		PageWidthMm:           getFloat("PAGE_WIDTH_MM", 210),
		PageHeightMm:          getFloat("PAGE_HEIGHT_MM", 297),
		PageMarginMm:          getFloat("PAGE_MARGIN_MM", 10),
		CurrencySymbol:        os.Getenv("CURRENCY_SYMBOL"),
	}
}

// Validate reports every problem at once rather than stopping at the first.
func (c Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT (%q) must be 1-65535", c.Port))
	}
	if c.SymbolCacheTTLSeconds < 1 {
		errs = append(errs, "SYMBOL_CACHE_TTL_SECONDS must be positive")
	}
	if c.SymbolCacheMaxEntries < 1 {
		errs = append(errs, "SYMBOL_CACHE_MAX_ENTRIES must be positive")
	}
	if c.AccessTokenTTLMinutes < 1 {
		errs = append(errs, "ACCESS_TOKEN_TTL_MINUTES must be positive")
	}
	if c.RenderWorkers < 1 {
		errs = append(errs, "RENDER_WORKERS must be positive")
	}
	if c.MaxLabelsPerJob < 1 {
		errs = append(errs, "MAX_LABELS_PER_JOB must be positive")
	}
	if c.RenderTimeoutMs < 1 {
		errs = append(errs, "RENDER_TIMEOUT_MS must be positive")
	}
	if c.PageWidthMm <= 0 || c.PageHeightMm <= 0 {
		errs = append(errs, "PAGE_WIDTH_MM and PAGE_HEIGHT_MM must be positive")
	}
	if c.PageMarginMm < 0 {
		errs = append(errs, "PAGE_MARGIN_MM must be non-negative")
	} else if 2*c.PageMarginMm >= c.PageWidthMm || 2*c.PageMarginMm >= c.PageHeightMm {
		errs = append(errs, fmt.Sprintf("PAGE_MARGIN_MM (%g) leaves no printable area", c.PageMarginMm))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be text or json", c.LogFormat))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutMs) * time.Millisecond
}

func (c Config) SymbolCacheTTL() time.Duration {
	return time.Duration(c.SymbolCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt keeps unparsable values visible to Validate as -1.
func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return -1
	}
	return v
}
