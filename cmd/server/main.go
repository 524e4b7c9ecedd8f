/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loan engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Build the zap logger
  3. Open the store (SQLite or Postgres) and migrate
  4. Choose the balance lock (in-process or Redis)
  5. Wire the engine, API handler, and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML/JSON config file
  -env     Optional .env file (default: .env, ignored when absent)

ENVIRONMENT:
  Every key can be overridden with a LOAN_ prefixed variable, for example
  LOAN_DATABASE_DRIVER=postgres, LOAN_LOCK_BACKEND=redis.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store and Redis client
  4. Exit

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/loan-engine/api"
	"github.com/warp/loan-engine/config"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/lock"
	"github.com/warp/loan-engine/logging"
	"github.com/warp/loan-engine/store/postgres"
	"github.com/warp/loan-engine/store/sqlite"
	"github.com/warp/loan-engine/store/sqlstore"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("store ready", zap.String("driver", cfg.Database.Driver))

	locker, closeLocker, err := openLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	engine := loan.NewEngine(store,
		loan.WithLogger(log),
		loan.WithLocker(locker),
		loan.WithRetry(cfg.Ledger.MaxRetries, cfg.Ledger.RetryDelay),
	)

	handler := api.NewHandler(engine, store, log)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RPS:            cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
		Logger:         log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (*sqlstore.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxOpenConns,
			ConnMaxLifetime: 30 * time.Minute,
		})
	default:
		return sqlite.New(cfg.DSN)
	}
}

// openLocker returns the balance lock and a function releasing its resources.
func openLocker(ctx context.Context, cfg *config.Config, log *zap.Logger) (loan.Locker, func(), error) {
	if cfg.Lock.Backend != "redis" {
		return lock.NewLocal(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Address, err)
	}
	log.Info("redis lock enabled", zap.String("address", cfg.Redis.Address))

	return lock.NewRedis(client, cfg.Lock.TTL, lock.WithLogger(log)), func() { client.Close() }, nil
}
