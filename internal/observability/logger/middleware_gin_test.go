package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/domainpay/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		Logger: log,
		ErrorClassifier: func(err error) (string, string) {
			return "invalid_request", err.Error()
		},
	}))
	r.POST("/webhook/:gateway/:orderID", func(c *gin.Context) {
		_ = c.Error(errors.New("bad_payload"))
		c.Status(http.StatusBadRequest)
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestGinMiddlewareLogsWebhookRequest(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newTestEngine(zap.New(core))

	req := httptest.NewRequest(http.MethodPost, "/webhook/blockbee/ord_1?secret=s3cr3t", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
	assert.NotEmpty(t, rec.Header().Get(correlation.HeaderName))

	entries := logs.FilterMessage("http_request").AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "blockbee", fields["gateway"])
	assert.Equal(t, "ord_1", fields["order_id"])
	assert.Equal(t, "/webhook/:gateway/:orderID", fields["route"])
	assert.Equal(t, int64(http.StatusBadRequest), fields["status"])
	assert.Equal(t, "invalid_request", fields["error_type"])
	assert.Equal(t, "bad_payload", fields["error_code"])
	assert.NotContains(t, fields, "path")
}

func TestGinMiddlewareKeepsHealthChecksQuiet(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newTestEngine(zap.New(core))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	entries := logs.FilterMessage("http_request").AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
}
