package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/comms-notebook/internal/app"
	"github.com/jwalitptl/comms-notebook/internal/config"
	"github.com/jwalitptl/comms-notebook/internal/handler/cron"
	"github.com/jwalitptl/comms-notebook/internal/handler/health"
	"github.com/jwalitptl/comms-notebook/internal/router"
	"github.com/jwalitptl/comms-notebook/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLog, app.Options{Migrate: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize report engine")
	}
	defer a.Close()

	if !cfg.Report.Enabled {
		appLog.Warn("daily reports are disabled, trigger endpoint answers 404")
	}

	cronHandler := cron.NewHandler(a.Orchestrator, cron.Config{
		Enabled: cfg.Report.Enabled,
		Token:   cfg.Report.Token,
	}, appLog)

	// Setup router
	r := router.NewRouter(
		cronHandler,
		health.NewHandler(a.Checks),
		a.Metrics,
		a.Registry,
		appLog,
		router.RouterConfig{
			TriggerPath: config.TriggerPath,
			RateLimit:   rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:   cfg.RateLimit.Burst,
			Release:     cfg.Log.JSON,
		},
	)
	r.Setup()

	// Create server
	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      timeout,
	}

	// Start server
	go func() {
		appLog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "server forced to shutdown")
		return
	}

	appLog.Info("server exited properly")
}
