package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/comms-notebook/internal/config"
	"github.com/jwalitptl/comms-notebook/internal/handler/health"
	"github.com/jwalitptl/comms-notebook/pkg/logger"
	"github.com/jwalitptl/comms-notebook/pkg/worker"
)

const healthAddr = ":8081"

func setupHealthCheck(l *logger.Logger) {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	health.NewHandler(nil).RegisterRoutes(engine)

	go func() {
		if err := engine.Run(healthAddr); err != nil {
			l.Error(err, "Health check server failed")
			os.Exit(1)
		}
	}()
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	}).WithFields(map[string]interface{}{"component": "scheduler"})

	if cfg.Report.Token == "" {
		l.Warn("no trigger token configured, every call will be rejected")
	}

	loc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Report.Timezone).Msg("Invalid timezone")
	}

	trigger := worker.NewTrigger(worker.TriggerConfig{
		URL:           cfg.Cron.URL,
		Token:         cfg.Report.Token,
		Timeout:       cfg.Cron.Timeout,
		RetryAttempts: cfg.Cron.RetryAttempts,
		RetryDelay:    cfg.Cron.RetryDelay,
	}, l)

	scheduler, err := worker.NewScheduler(cfg.Cron.Schedule, loc, trigger, l)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	// Setup health check endpoints
	setupHealthCheck(l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l.Info("Starting cron job", "schedule", cfg.Cron.Schedule, "url", cfg.Cron.URL)
	scheduler.Start(ctx)
}
