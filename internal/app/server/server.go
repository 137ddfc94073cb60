package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"leaveflow/internal/domain/leave"
	"leaveflow/internal/domain/notifications"
	"leaveflow/internal/platform/config"
	"leaveflow/internal/platform/db"
	"leaveflow/internal/platform/email"
	"leaveflow/internal/platform/jobs"
	"leaveflow/internal/platform/metrics"
	"leaveflow/internal/platform/postgres"
	"leaveflow/internal/platform/sqlite"
	"leaveflow/internal/transport/http/api"
	leavehandler "leaveflow/internal/transport/http/handlers/leave"
	notificationshandler "leaveflow/internal/transport/http/handlers/notifications"
	"leaveflow/internal/transport/http/middleware"
)

// Store is everything the application needs from a storage backend.
type Store interface {
	leave.StoreAPI
	leave.ReferenceStore
	notifications.StoreAPI
	jobs.RunStore
	middleware.IdempotencyStore
	middleware.ActiveChecker
	Ping(ctx context.Context) error
}

type App struct {
	Config  config.Config
	Store   Store
	Leave   *leave.Service
	Jobs    *jobs.Service
	Metrics *metrics.Collector
	Router  http.Handler
	closers []func()
}

// New opens the configured backend, wires the services and builds the
// router. Background workers are started on ctx.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Metrics: metrics.New()}
	store, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}
	app.Store = store

	if cfg.RunSeed {
		if err := db.Seed(ctx, store, cfg); err != nil {
			app.Close()
			return nil, fmt.Errorf("seed failed: %w", err)
		}
	}

	notifier := notifications.New(store, email.New(cfg), cfg.EmailFrom)
	dispatcher := notifications.NewDispatcher(notifier, store, cfg.NotifyQueueSize)
	dispatcher.OnDrop = func(leave.Event) { app.Metrics.RecordDroppedEvent() }
	dispatcher.Start(ctx)

	app.Leave = leave.NewService(store, dispatcher, cfg.FiscalYearStartMonth, time.Now)
	app.Jobs = jobs.New(store, app.Leave, cfg, app.Metrics)
	app.Jobs.Start(ctx)

	app.Router = app.routes(notifier)
	return app, nil
}

func (a *App) openStore(ctx context.Context) (Store, error) {
	switch a.Config.DBDriver {
	case config.DriverSQLite:
		store, err := sqlite.New(a.Config.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	default:
		pool, err := db.Connect(ctx, a.Config)
		if err != nil {
			return nil, fmt.Errorf("db connect failed: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if a.Config.RunMigrations {
			if err := db.Migrate(ctx, pool, a.Config.MigrationsDir); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrations failed: %w", err)
			}
		}
		return postgres.New(pool), nil
	}
}

func (a *App) routes(notifier *notifications.Service) http.Handler {
	cfg := a.Config

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(a.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret, a.Store))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Store.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(a.Metrics.Snapshot())
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		leaveHandler := leavehandler.NewHandler(a.Leave, a.Jobs, a.Store)
		leaveHandler.RegisterRoutes(r)

		notificationsHandler := notificationshandler.NewHandler(notifier)
		notificationsHandler.RegisterRoutes(r)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Fail(w, http.StatusNotFound, "not_found", "route not found", middleware.GetRequestID(r.Context()))
	})
	return router
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func Run() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown failed", "err", err)
		}
	}()

	slog.Info("leaveflow server listening", "addr", cfg.Addr, "driver", cfg.DBDriver, "env", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
