/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fleet reporting server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize SQLite store (runs migrations)
  3. Create API handler with dependencies
  4. Start the report cache sweeper
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  PORT, DB_PATH, LOG_LEVEL, LOG_FORMAT, TIMEZONE, YEARS_AHEAD,
  REPORT_CACHE_SIZE, REPORT_CACHE_TTL, REPORT_CACHE_SWEEP, CORS_ORIGINS
  See config/config.go for defaults.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the cache sweeper
  4. Close database connection

EXAMPLES:
  ./server -db="./data/fleet.db"
  ./server -db=":memory:" -port=3000
  LOG_FORMAT=console LOG_LEVEL=debug ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/fleet-engine/api"
	"github.com/warp/fleet-engine/config"
	"github.com/warp/fleet-engine/logging"
	"github.com/warp/fleet-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags override the environment.
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath

	logOpts := logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}
	logger := logging.New(logOpts, "server")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("db", cfg.DBPath).Msg("failed to initialize database")
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, api.Options{
		Location:        cfg.Location(),
		CacheSize:       cfg.ReportCacheSize,
		CacheTTL:        cfg.ReportCacheTTL,
		SelectableYears: cfg.SelectableYears,
		Logger:          logging.New(logOpts, "api"),
	})

	sweeper := api.NewCacheSweeper(handler.Reports, cfg.CacheSweep, logging.New(logOpts, "cache_sweeper"))
	sweeper.Start()
	defer sweeper.Stop()

	// Create router
	router := api.NewRouter(handler, logging.New(logOpts, "http"), cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("db", cfg.DBPath).
			Str("timezone", cfg.Timezone).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down server")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	logger.Info().Msg("server stopped")
}
