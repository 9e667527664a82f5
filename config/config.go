// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	// HTTP Server
	Port           string
	AllowedOrigins []string

	// Database
	DBPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Calendar used for epoch timestamps and "today".
	Timezone string

	// Number of years offered by the year selector, starting at the current one.
	YearsAhead int

	// Report cache
	ReportCacheSize int
	ReportCacheTTL  time.Duration
	CacheSweep      time.Duration
}

// Load reads .env (if present) and then the environment.
func Load() *Config {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnvList("CORS_ORIGINS", nil),
		DBPath:         getEnv("DB_PATH", "fleet.db"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Timezone:   getEnv("TIMEZONE", "UTC"),
		YearsAhead: getEnvInt("YEARS_AHEAD", 3),

		ReportCacheSize: getEnvInt("REPORT_CACHE_SIZE", 128),
		ReportCacheTTL:  getEnvDuration("REPORT_CACHE_TTL", time.Minute),
		CacheSweep:      getEnvDuration("REPORT_CACHE_SWEEP", 5*time.Minute),
	}
}

// Validate returns every problem found, joined into one error.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DBPath == "" {
		problems = append(problems, "database path cannot be empty")
	} else if c.DBPath != ":memory:" {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					problems = append(problems, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil || c.LogLevel == "" {
		problems = append(problems, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be 'json' or 'console'", c.LogFormat))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.YearsAhead < 1 || c.YearsAhead > 20 {
		problems = append(problems, fmt.Sprintf("invalid years ahead %d: must be between 1 and 20", c.YearsAhead))
	}

	if c.ReportCacheSize < 0 {
		problems = append(problems, fmt.Sprintf("invalid report cache size %d: must not be negative", c.ReportCacheSize))
	}
	if c.ReportCacheTTL < 0 {
		problems = append(problems, fmt.Sprintf("invalid report cache ttl %v: must not be negative", c.ReportCacheTTL))
	}
	if c.CacheSweep < 0 {
		problems = append(problems, fmt.Sprintf("invalid cache sweep interval %v: must not be negative", c.CacheSweep))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Location returns the configured calendar, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SelectableYears is the short year list offered to users, starting at the
// year of now. The engine itself accepts any year.
func (c *Config) SelectableYears(now time.Time) []int {
	n := c.YearsAhead
	if n < 1 {
		n = 1
	}
	years := make([]int, n)
	for i := range years {
		years[i] = now.Year() + i
	}
	return years
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
