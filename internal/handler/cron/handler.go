package cron

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/comms-notebook/internal/middleware"
	"github.com/jwalitptl/comms-notebook/internal/service/report"
	"github.com/jwalitptl/comms-notebook/pkg/logger"
)

// Runner runs one report tick.
type Runner interface {
	Run(ctx context.Context, now time.Time) (*report.Result, error)
}

type Config struct {
	Enabled bool
	Token   string
}

// Handler exposes the report tick to the external scheduler.
type Handler struct {
	runner Runner
	cfg    Config
	log    *logger.Logger
	now    func() time.Time
}

func NewHandler(runner Runner, cfg Config, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{runner: runner, cfg: cfg, log: log, now: time.Now}
}

// RegisterRoutes mounts the trigger at path. Extra handlers run after the
// enable and token checks.
func (h *Handler) RegisterRoutes(r gin.IRouter, path string, extra ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{
		middleware.RequireEnabled(h.cfg.Enabled),
		middleware.SharedToken(h.cfg.Token),
	}, extra...)
	chain = append(chain, h.Trigger)

	r.GET(path, chain...)
	r.POST(path, chain...)
}

// Trigger answers true when the tick ran and false when it was a no-op.
// A store failure is handed to the error middleware.
func (h *Handler) Trigger(c *gin.Context) {
	res, err := h.runner.Run(c.Request.Context(), h.now())
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.log.Info("report tick triggered",
		"request_id", middleware.GetRequestID(c),
		"executed", res.Executed,
		"sent", res.Sent,
		"failures", res.Failures,
	)
	c.JSON(http.StatusOK, res.Executed)
}
