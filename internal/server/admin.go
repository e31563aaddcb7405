package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/domainpay/internal/observability/logger"
	"github.com/smallbiznis/domainpay/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) GetOrder(c *gin.Context) {
	order, err := s.orders.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newOrderView(order)})
}

func (s *Server) ListOrderEvents(c *gin.Context) {
	records, err := s.payments.ListEvents(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	out := make([]eventView, 0, len(records))
	for _, r := range records {
		out = append(out, newEventView(r))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) GetSaga(c *gin.Context) {
	state, err := s.sagas.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newSagaView(state)})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "canceled by operator"
	}

	ctx := c.Request.Context()
	order, err := s.orders.Cancel(ctx, strings.TrimSpace(c.Param("id")), reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	obslogger.WithContext(ctx, s.log).Info("order canceled by operator",
		zap.String("order_id", order.ID),
		zap.String("reason", reason),
	)
	c.JSON(http.StatusOK, gin.H{"data": newOrderView(order)})
}

func (s *Server) GetWallet(c *gin.Context) {
	ownerID := strings.TrimSpace(c.Param("ownerID"))
	balance, err := s.wallet.Balance(c.Request.Context(), ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"owner_id": ownerID,
		"balance":  balance.String(),
	}})
}

func (s *Server) ListWalletEntries(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	entries, err := s.wallet.Entries(c.Request.Context(), strings.TrimSpace(c.Param("ownerID")), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, newEntryView(e))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) GetDomain(c *gin.Context) {
	d, err := s.domains.Get(c.Request.Context(), strings.TrimSpace(c.Param("name")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newDomainView(d)})
}

func (s *Server) ListOwnerDomains(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	domains, err := s.domains.ListByOwner(c.Request.Context(), strings.TrimSpace(c.Param("ownerID")), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	out := make([]domainView, 0, len(domains))
	for i := range domains {
		out = append(out, newDomainView(&domains[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) ListManualReview(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	states, err := s.sagas.ListManualReview(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	out := make([]sagaView, 0, len(states))
	for i := range states {
		out = append(out, newSagaView(&states[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// RetrySaga clears the manual-review flag and queues the saga. The run
// resumes at the persistence step, so nothing external is repeated.
func (s *Server) RetrySaga(c *gin.Context) {
	ctx, _ := correlation.EnsureCorrelationID(c.Request.Context())
	orderID := strings.TrimSpace(c.Param("id"))

	state, err := s.sagas.ClearManualReview(ctx, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.launcher.Launch(ctx, orderID)

	obslogger.WithContext(ctx, s.log).Info("saga retry queued by operator", zap.String("order_id", orderID))
	c.JSON(http.StatusAccepted, gin.H{"data": newSagaView(state)})
}

func parseLimit(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(trimmed)
	if err != nil || limit <= 0 {
		return 0, newValidationError("limit", "invalid_limit", "invalid limit")
	}
	return min(limit, maxListLimit), nil
}
