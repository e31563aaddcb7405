package logger

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/domainpay/internal/observability/context"
	"github.com/smallbiznis/domainpay/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug bool
	// Logger defaults to the zap global.
	Logger *zap.Logger
	// ErrorClassifier maps the last handler error to (type, code).
	ErrorClassifier func(err error) (string, string)
	// QuietRoutes are logged at debug level.
	QuietRoutes []string
}

// GinMiddleware tags the request context with request and correlation ids
// and writes one "http_request" line per request. Webhook deliveries also
// carry the gateway and order they were addressed to.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	quiet := map[string]struct{}{"/health": {}, "/metrics": {}}
	for _, route := range cfg.QuietRoutes {
		quiet[route] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(requestContext(c))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := append(requestFields(c, route, status, time.Since(start)), errorFields(c, cfg)...)

		base := cfg.Logger
		if base == nil {
			base = zap.L()
		}
		log := WithContext(c.Request.Context(), base)

		_, isQuiet := quiet[route]
		switch {
		case isQuiet:
			log.Debug("http_request", fields...)
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		case status == http.StatusTooManyRequests || status == http.StatusUnauthorized:
			log.Warn("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

// requestContext accepts inbound request and correlation ids, minting them
// when absent, and echoes both back to the caller.
func requestContext(c *gin.Context) context.Context {
	requestID := correlation.Sanitize(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(requestIDHeader, requestID)

	ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
	if cid := correlation.Sanitize(c.GetHeader(correlation.HeaderName)); cid != "" {
		ctx = correlation.ContextWithCorrelationID(ctx, cid)
	}
	ctx, cid := correlation.EnsureCorrelationID(ctx)
	c.Header(correlation.HeaderName, cid)
	return ctx
}

func requestFields(c *gin.Context, route string, status int, elapsed time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
		zap.Int("bytes_out", max(c.Writer.Size(), 0)),
	}
	// Route params only. Callback URLs can carry a gateway secret.
	for _, name := range []string{"gateway", "orderID"} {
		if v := strings.TrimSpace(c.Param(name)); v != "" {
			fields = append(fields, zap.String(paramField(name), v))
		}
	}
	return fields
}

func paramField(name string) string {
	if name == "orderID" {
		return "order_id"
	}
	return name
}

func errorFields(c *gin.Context, cfg MiddlewareConfig) []zap.Field {
	last := c.Errors.Last()
	if last == nil {
		return nil
	}
	errorType, errorCode := "internal_error", ""
	if cfg.ErrorClassifier != nil {
		errorType, errorCode = cfg.ErrorClassifier(last.Err)
	}
	fields := []zap.Field{
		zap.String("error_type", errorType),
		zap.String("error_code", errorCode),
	}
	if cfg.Debug {
		fields = append(fields, zap.Error(last.Err), zap.Stack("stack"))
	}
	return fields
}
