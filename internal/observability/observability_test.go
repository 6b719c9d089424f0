package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewLogger_LevelMapping(t *testing.T) {
	tests := []struct {
		level        string
		debugEnabled bool
	}{
		{"debug", true},
		{"INFO", false},
		{"", false},
	}
	for _, tt := range tests {
		logger, err := NewLogger(tt.level)
		require.NoError(t, err)
		assert.Equal(t, tt.debugEnabled, logger.Core().Enabled(zapcore.DebugLevel), "level %q", tt.level)
	}

	logger, err := NewLogger("chatty")
	assert.Error(t, err)
	assert.Nil(t, logger)
}

func TestRequestLogger(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	var seen string
	router.GET("/health", func(c *gin.Context) {
		seen = RequestID(c)
		c.Status(http.StatusOK)
	})
	router.GET("/broken", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "cid-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "cid-123", seen)
	assert.Equal(t, "cid-123", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	entries := recorded.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Request handled", entries[0].Message)
	assert.Equal(t, "cid-123", entries[0].ContextMap()["request_id"])
	assert.Equal(t, int64(200), entries[0].ContextMap()["status"])
	assert.Equal(t, "Request failed", entries[1].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestMetrics_Workflow(t *testing.T) {
	metrics := NewMetrics()

	metrics.ObserveStep("notify", "ok")
	metrics.ObserveStep("Notify", "OK")
	metrics.ObserveStep("convert", "degraded")
	metrics.ObserveRequest("sent", 1500*time.Millisecond)
	metrics.ObserveRequest("", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.stepsTotal.WithLabelValues("notify", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stepsTotal.WithLabelValues("convert", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("unknown")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.workflowDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.ObserveStep("log", "ok")
		metrics.ObserveRequest("failed", time.Second)
	})
}

func TestMetrics_HTTPMiddlewareAndHandler(t *testing.T) {
	metrics := NewMetrics()

	router := gin.New()
	router.Use(metrics.HTTPMiddleware())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	metrics.ObserveRequest("sent", time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	body := w.Body.String()
	assert.Contains(t, body, `certportal_requests_total{result="sent"} 1`)
	assert.Contains(t, body, "certportal_workflow_duration_seconds_bucket")
	assert.NotContains(t, body, `path="/metrics"`)
}
