package server

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/domainpay/internal/observability/logger"
	"go.uber.org/zap"
)

// WebhookRateLimit bounds deliveries per gateway. Limiter failures admit the
// request: a rejected delivery is only retried later by the gateway.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		gateway := strings.TrimSpace(c.Param("gateway"))
		res, err := s.limiter.Allow(ctx, gateway)
		if err != nil {
			obslogger.WithContext(ctx, s.log).Warn("webhook rate limit check failed", zap.String("gateway", gateway), zap.Error(err))
			c.Next()
			return
		}
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// AdminAuth accepts "Authorization: Bearer <ADMIN_API_TOKEN>".
func (s *Server) AdminAuth() gin.HandlerFunc {
	expected := []byte(s.cfg.AdminToken)
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), expected) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
