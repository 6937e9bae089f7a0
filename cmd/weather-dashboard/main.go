package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/weather-dashboard/internal/api/http"
	"github.com/i474232898/weather-dashboard/internal/backend"
	"github.com/i474232898/weather-dashboard/internal/card"
	"github.com/i474232898/weather-dashboard/internal/config"
	"github.com/i474232898/weather-dashboard/internal/dashboard"
	applog "github.com/i474232898/weather-dashboard/internal/logger"
	"github.com/i474232898/weather-dashboard/internal/metrics"
	"github.com/i474232898/weather-dashboard/internal/scheduler"
	"github.com/i474232898/weather-dashboard/internal/store"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

const serviceName = "weather-dashboard"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := applog.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	loc, err := cfg.Location()
	if err != nil {
		lg.Fatal("invalid display time zone", zap.Error(err))
	}

	// Provider logos are validated against the known provider set up front.
	logos, err := card.NewLogoCatalog(cfg.Logos.Providers, cfg.Logos.Placeholder)
	if err != nil {
		lg.Fatal("invalid provider logo configuration", zap.Error(err))
	}

	// Shared HTTP client for backend calls.
	httpClient := &http.Client{
		Timeout:   cfg.Backend.Timeout,
		Transport: applog.NewRoundTripper(lg, http.DefaultTransport),
	}

	client := backend.NewClient(httpClient, map[weather.Mode]string{
		weather.ModeAsync: cfg.Backend.AsyncURL,
		weather.ModeSync:  cfg.Backend.SyncURL,
	}, backend.BreakerConfig{
		Interval:            cfg.Breaker.Interval,
		Timeout:             cfg.Breaker.Timeout,
		ConsecutiveFailures: cfg.Breaker.Failures,
	}, lg)

	m := metrics.New()
	memStore := store.NewMemoryStore(cfg.History.Size, cfg.History.MaxAge)

	agg := dashboard.New(client, memStore, logos, m, lg, dashboard.Config{
		SyncDelay:    cfg.SyncDelay,
		CycleTimeout: cfg.CycleTimeout,
		Location:     loc,
	})
	defer agg.Close()

	// Optional auto-refresh.
	sched := scheduler.New(cfg.RefreshInterval, agg, lg)
	if err := sched.Start(); err != nil {
		lg.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.CycleTimeout + 5*time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				lg.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})

	httpapi.RegisterRoutes(app, agg, httpapi.Options{
		CycleTimeout: cfg.CycleTimeout,
		Metrics:      m.Handler(),
	})

	go func() {
		lg.Info("dashboard listening",
			zap.String("port", cfg.Port),
			zap.String("async_backend", cfg.Backend.AsyncURL),
			zap.String("sync_backend", cfg.Backend.SyncURL),
		)
		if err := app.Listen(":" + cfg.Port); err != nil {
			lg.Error("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		lg.Error("error during shutdown", zap.Error(err))
	}
}
