package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/djelfa-health/dispatch/internal/ambulance"
	casedomain "github.com/djelfa-health/dispatch/internal/case/domain"
	caseinfra "github.com/djelfa-health/dispatch/internal/case/infrastructure"
	"github.com/djelfa-health/dispatch/internal/dispatch"
	hospitalapi "github.com/djelfa-health/dispatch/internal/hospital/api"
	hospitaldomain "github.com/djelfa-health/dispatch/internal/hospital/domain"
	hospitalinfra "github.com/djelfa-health/dispatch/internal/hospital/infrastructure"
	"github.com/djelfa-health/dispatch/internal/shared/auth"
	"github.com/djelfa-health/dispatch/internal/shared/config"
	"github.com/djelfa-health/dispatch/internal/shared/database"
	"github.com/djelfa-health/dispatch/internal/shared/events"
	"github.com/djelfa-health/dispatch/internal/shared/logging"
	"github.com/djelfa-health/dispatch/internal/shared/metrics"
	secmiddleware "github.com/djelfa-health/dispatch/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	DB     *database.DB
	Bus    events.Bus
	log    zerolog.Logger
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init("dispatchd", cfg.Server.Env)
	app := &App{Config: cfg, log: logging.Component("main")}

	// Database is optional: without it the service runs on in-memory stores,
	// which is enough for demos and for running the mobile clients locally.
	var registry hospitaldomain.Registry
	var cases casedomain.Repository

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		app.log.Warn().Err(err).Msg("database not available, using in-memory stores")
		registry = hospitalinfra.NewMemoryRegistry()
		cases = caseinfra.NewMemoryRepository()
	} else {
		app.DB = db
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			app.log.Error().Err(err).Msg("migration failed")
			os.Exit(1)
		}
		registry = hospitalinfra.NewPostgresRegistry(db.Pool)
		cases = caseinfra.NewPostgresRepository(db.Pool)
		app.log.Info().Msg("database connected")
	}

	// EventStoreDB is optional as well
	bus, err := events.NewESDBBus(ctx, cfg.EventStore)
	if err != nil {
		app.log.Warn().Err(err).Msg("eventstore not available, events stay in process")
		app.Bus = events.NewMemoryBus()
	} else {
		app.Bus = bus
		app.log.Info().Msg("eventstore connected")
	}
	defer app.Bus.Close()

	service := dispatch.NewService(registry, cases, app.Bus, cfg.Dispatch.DefaultBedCategory)
	tracker := ambulance.NewTracker(cfg.Dispatch.AmbulancePresenceTTL)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(logging.RequestLogger)
	r.Use(secmiddleware.RateLimiter(cfg.Dispatch.RateLimitRPS, cfg.Dispatch.RateLimitBurst))

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		hospitalHandler := hospitalapi.NewHandler(registry, service, app.Bus)
		r.Mount("/hospitals", hospitalHandler.Routes())

		dispatchHandler := dispatch.NewHandler(service)
		r.Mount("/cases", dispatchHandler.Routes())

		ambulanceHandler := ambulance.NewHandler(tracker)
		r.Mount("/ambulances", ambulanceHandler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		app.log.Info().Msg("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			app.log.Error().Err(err).Msg("server shutdown error")
		}
		close(done)
	}()

	app.log.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Msg("dispatch service listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}

	<-done
	app.log.Info().Msg("server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Djelfa Emergency Dispatch",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}
		ready := true

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
				ready = false
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if err := app.Bus.Health(); err != nil {
			checks["eventstore"] = "not ready: " + err.Error()
		} else {
			checks["eventstore"] = "ready"
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(checks)
	}
}
