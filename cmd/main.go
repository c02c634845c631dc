// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/config"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/database"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/handler"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/notify"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/service"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = runMigrate(os.Args[2:])
	} else {
		err = run()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := database.MigrateUp(cfg.Database.DSN()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrations applied")
	}

	go metrics.NewDBCollector(pool).Run(ctx, 15*time.Second)

	// ── 2. Notifications ──────────────────────────────────────────────────
	var publisher notify.Publisher = notify.NopPublisher{}
	if cfg.Redis.Addr != "" {
		rdb, err := notify.NewRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		publisher = notify.NewRedisPublisher(rdb)
	} else {
		logger.Info("REDIS_ADDR not set, registration notifications disabled")
	}

	// ── 3. Wire up layers ─────────────────────────────────────────────────
	store := repository.NewStore(pool)
	eventSvc := service.NewEventService(store.Events)
	regSvc := service.NewRegistrationService(store,
		service.WithPublisher(publisher),
		service.WithLogger(logger.Named("registration")),
	)
	eventHandler := handler.NewEventHandler(eventSvc, regSvc, logger.Named("http"))

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger(logger.Named("access")))
	r.Use(handler.CORS)
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", handler.HealthCheck(store))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	eventHandler.Routes(r)

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// runMigrate handles `migrate up` and `migrate down [steps]`.
func runMigrate(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(args) == 0 {
		return errors.New("usage: migrate up | migrate down [steps]")
	}

	switch args[0] {
	case "up":
		return database.MigrateUp(cfg.Database.DSN())
	case "down":
		steps := 1
		if len(args) > 1 {
			if steps, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid step count %q", args[1])
			}
		}
		return database.MigrateDown(cfg.Database.DSN(), steps)
	default:
		return fmt.Errorf("unknown migrate command %q", args[0])
	}
}
