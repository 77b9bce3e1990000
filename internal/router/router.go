package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/comms-notebook/internal/handler/cron"
	"github.com/jwalitptl/comms-notebook/internal/handler/health"
	"github.com/jwalitptl/comms-notebook/internal/middleware"
	"github.com/jwalitptl/comms-notebook/pkg/logger"
	"github.com/jwalitptl/comms-notebook/pkg/metrics"
)

type RouterConfig struct {
	TriggerPath string
	RateLimit   rate.Limit
	RateBurst   int
	Release     bool
}

type Router struct {
	engine   *gin.Engine
	cronH    *cron.Handler
	healthH  *health.Handler
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	cfg      RouterConfig
}

func NewRouter(
	cronH *cron.Handler,
	healthH *health.Handler,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	log *logger.Logger,
	cfg RouterConfig,
) *Router {
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		cronH:    cronH,
		healthH:  healthH,
		gatherer: gatherer,
		metrics:  m,
		cfg:      cfg,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		r.metricsMiddleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.ErrorHandler(log),
	)

	return r
}

func (r *Router) Setup() {
	r.healthH.RegisterRoutes(r.engine)

	if r.gatherer != nil {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	var extra []gin.HandlerFunc
	if r.cfg.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.cfg.RateLimit,
			Burst: r.cfg.RateBurst,
		})
		extra = append(extra, limiter.RateLimit())
	}
	r.cronH.RegisterRoutes(r.engine, r.cfg.TriggerPath, extra...)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		r.metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
		r.metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
