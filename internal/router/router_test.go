package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/comms-notebook/internal/handler/cron"
	"github.com/jwalitptl/comms-notebook/internal/handler/health"
	"github.com/jwalitptl/comms-notebook/internal/service/report"
	"github.com/jwalitptl/comms-notebook/pkg/logger"
	"github.com/jwalitptl/comms-notebook/pkg/metrics"
)

type runnerFunc func(ctx context.Context, now time.Time) (*report.Result, error)

func (f runnerFunc) Run(ctx context.Context, now time.Time) (*report.Result, error) { return f(ctx, now) }

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := metrics.New("test")
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	runner := runnerFunc(func(context.Context, time.Time) (*report.Result, error) {
		return &report.Result{Executed: true}, nil
	})
	r := NewRouter(
		cron.NewHandler(runner, cron.Config{Enabled: true, Token: "s3cret"}, nil),
		health.NewHandler(nil),
		m,
		reg,
		logger.Nop(),
		RouterConfig{TriggerPath: "/api/cron", RateLimit: 5, RateBurst: 5},
	)
	r.Setup()

	req := httptest.NewRequest(http.MethodGet, "/api/cron", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/cron", "200")))

	w = httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}
