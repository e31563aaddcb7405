package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/domainpay/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/domainpay/internal/payment/domain"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type webhookResponse struct {
	Status      string `json:"status"`
	Outcome     string `json:"outcome,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	OrderStatus string `json:"order_status,omitempty"`
}

// HandleWebhook answers 200 for every outcome the gateway must not redeliver,
// including duplicates and terminal underpayments. Only local outages
// produce 5xx.
func (s *Server) HandleWebhook(c *gin.Context) {
	gateway := strings.ToLower(strings.TrimSpace(c.Param("gateway")))
	orderID := strings.TrimSpace(c.Param("orderID"))
	if gateway == "" || orderID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil || len(body) > maxWebhookBody {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	res, err := s.payments.IngestWebhook(ctx, gateway, orderID, paymentdomain.WebhookRequest{
		Method:  c.Request.Method,
		Body:    body,
		Query:   c.Request.URL.Query(),
		Headers: c.Request.Header,
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrDuplicateEvent) {
			c.JSON(http.StatusOK, webhookResponse{Status: "ok", Outcome: string(paymentdomain.OutcomeDuplicate), OrderID: orderID})
			return
		}
		if errors.Is(err, paymentdomain.ErrUnderpaidOrder) {
			c.JSON(http.StatusOK, webhookResponse{Status: "ok", Outcome: string(paymentdomain.OutcomeUnderpaid), OrderID: orderID})
			return
		}
		obslogger.WithContext(ctx, s.log).Warn("webhook rejected",
			zap.String("gateway", gateway),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, webhookResponse{
		Status:      "ok",
		Outcome:     string(res.Outcome),
		OrderID:     res.OrderID,
		OrderStatus: res.OrderStatus,
	})
}
