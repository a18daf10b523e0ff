/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loyalty engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse flags
  2. Load configuration (defaults, TOML file, environment)
  3. Initialize logger, SQLite store, cache
  4. Create API handler and settlement job
  5. Start the settlement scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a TOML config file (optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, waiting for an in-flight tick
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with defaults
  ./server

  # Run with a config file
  ./server -config=./loyalty.toml

  # Override via environment
  LOYALTY_PORT=3000 LOYALTY_DB_PATH=":memory:" ./server

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/prism/loyalty-engine/api"
	"github.com/prism/loyalty-engine/cache"
	"github.com/prism/loyalty-engine/config"
	"github.com/prism/loyalty-engine/logging"
	"github.com/prism/loyalty-engine/settlement"
	"github.com/prism/loyalty-engine/store/sqlite"
)

func main() {
	// A missing .env is fine; deployments use real environment.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatalw("failed to initialize database", "error", err)
	}
	defer store.Close()

	// Cache: Redis when configured, in-memory otherwise
	var c cache.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatalw("failed to connect to redis", "error", err)
		}
		defer redisCache.Close()
		c = redisCache
	} else {
		c = cache.NewMemory()
	}

	// Settlement job and handler
	client := settlement.NewClient(cfg.Settlement.StoreURL, 30*time.Second)
	job := settlement.NewJob(store, client, logger)
	handler := api.NewHandler(store, job, c, cfg.Redis.TTL.Std(), logger)

	// Background settlement
	scheduler := api.NewSettlementScheduler(job, logger)
	scheduler.Interval = cfg.Settlement.Interval.Std()
	scheduler.Enabled = cfg.Settlement.Enabled
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infow("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infow("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalw("server forced to shutdown", "error", err)
	}

	logger.Infow("server stopped")
}
