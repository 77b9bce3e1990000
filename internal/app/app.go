// Package app assembles the report engine from configuration. Both the HTTP
// server and the admin CLI build their dependencies through it.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jwalitptl/comms-notebook/internal/config"
	"github.com/jwalitptl/comms-notebook/internal/email"
	"github.com/jwalitptl/comms-notebook/internal/handler/health"
	"github.com/jwalitptl/comms-notebook/internal/repository"
	"github.com/jwalitptl/comms-notebook/internal/repository/postgres"
	"github.com/jwalitptl/comms-notebook/internal/repository/redis"
	"github.com/jwalitptl/comms-notebook/internal/service/report"
	"github.com/jwalitptl/comms-notebook/internal/settings"
	"github.com/jwalitptl/comms-notebook/pkg/logger"
	"github.com/jwalitptl/comms-notebook/pkg/metrics"
	"github.com/jwalitptl/comms-notebook/pkg/timeutil"
)

const metricsNamespace = "notebook"

type App struct {
	Config       *config.Config
	Log          *logger.Logger
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry
	DB           *sqlx.DB
	Watermarks   repository.WatermarkRepository
	Roster       *settings.Store
	Orchestrator *report.Orchestrator
	// Checks are the dependencies the readiness probe pings.
	Checks map[string]health.Pinger

	closers []io.Closer
}

// Options tweak what New builds.
type Options struct {
	// DryRun logs mail instead of sending it.
	DryRun bool
	// Migrate creates missing tables on startup.
	Migrate bool
}

// New connects to the stores and wires the orchestrator. Close releases
// every connection it opened.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	a := &App{
		Config:   cfg,
		Log:      log,
		Metrics:  metrics.New(metricsNamespace),
		Registry: prometheus.NewRegistry(),
		Checks:   map[string]health.Pinger{},
	}
	if err := a.Metrics.Register(a.Registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db)
	a.Checks["database"] = db

	if opts.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
	}

	base := postgres.NewBaseRepository(db, a.Metrics)
	comms := postgres.NewCommunicationRepository(base)

	if a.Watermarks, err = a.watermarkStore(ctx, base); err != nil {
		a.Close()
		return nil, err
	}

	cal, err := calendar(cfg.Report)
	if err != nil {
		a.Close()
		return nil, err
	}
	renderer, err := report.NewRenderer(cal, cfg.Report.LinkBaseURL)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Roster = settings.NewStore(cfg.Settings.Path, cfg.Settings.CacheTTL, log)

	mailer, err := newMailer(cfg.SMTP, opts.DryRun, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Orchestrator = report.NewOrchestrator(
		report.NewDigestPolicy(comms, cal, renderer),
		report.NewWeeklyPolicy(comms, cal, renderer, cfg.Report.WeeklyThreshold, cfg.Report.WeeklyStep),
		report.NewCumulativePolicy(comms, cal, renderer, cfg.Report.CumulativeStep),
		orchestratorWatermarks(a.Watermarks, opts.DryRun),
		a.Roster,
		mailer,
		report.Config{
			Sender: report.Sender{
				Address: cfg.SMTP.From(),
				Name:    cfg.SMTP.DisplayName(),
			},
			SendConcurrency: cfg.Report.SendConcurrency,
		},
		a.Metrics,
		log,
	)

	return a, nil
}

func (a *App) watermarkStore(ctx context.Context, base postgres.BaseRepository) (repository.WatermarkRepository, error) {
	switch a.Config.Watermark.Backend {
	case "", config.WatermarkBackendPostgres:
		return postgres.NewWatermarkRepository(base), nil
	case config.WatermarkBackendRedis:
		client, err := redis.NewClient(ctx, a.Config.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		store := redis.NewWatermarkStore(client, a.Config.Redis.KeyPrefix, a.Metrics)
		a.Checks["redis"] = store
		return store, nil
	default:
		return nil, fmt.Errorf("unknown watermark backend %q", a.Config.Watermark.Backend)
	}
}

func calendar(cfg config.ReportConfig) (timeutil.Calendar, error) {
	weekStart, err := timeutil.ParseWeekday(cfg.WeekStart)
	if err != nil {
		return timeutil.Calendar{}, err
	}
	return timeutil.NewCalendar(cfg.Timezone, weekStart)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Log.Error(err, "failed to close resource")
		}
	}
	a.closers = nil
}

// newMailer only logs mail in dry runs. Otherwise an SMTP server must resolve,
// from the host or the well-known service name.
func newMailer(cfg config.SMTPConfig, dryRun bool, log *logger.Logger) (email.Service, error) {
	if dryRun {
		log.Info("dry run, report mail will only be logged")
		return email.NewLogService(log), nil
	}
	mailer, err := email.NewSMTPService(cfg, log)
	if err != nil {
		return nil, err
	}
	return mailer, nil
}

// orchestratorWatermarks keeps dry runs from advancing any watermark.
func orchestratorWatermarks(store repository.WatermarkRepository, dryRun bool) report.WatermarkStore {
	if dryRun {
		return report.DiscardWrites(store)
	}
	return store
}
