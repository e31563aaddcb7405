// Package generic accepts the gateway-neutral webhook body
// {eventID, asset, amount, confirmations, txHash}.
package generic

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/payment/domain"
)

const signatureHeader = "X-Signature"

type Adapter struct {
	secret string
}

// New returns the adapter. With a secret, deliveries must carry a hex
// HMAC-SHA256 of the body in X-Signature.
func New(secret string) *Adapter {
	return &Adapter{secret: strings.TrimSpace(secret)}
}

func (a *Adapter) Gateway() string {
	return "generic"
}

func (a *Adapter) Verify(ctx context.Context, req domain.WebhookRequest) error {
	if a.secret == "" {
		return nil
	}
	signature := strings.TrimSpace(http.Header(req.Headers).Get(signatureHeader))
	if signature == "" {
		return domain.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(a.secret))
	_, _ = mac.Write(req.Body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type body struct {
	EventID       string          `json:"eventID"`
	Asset         string          `json:"asset"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int             `json:"confirmations"`
	TxHash        string          `json:"txHash"`
}

func (a *Adapter) Parse(ctx context.Context, orderID string, req domain.WebhookRequest) (*domain.Event, error) {
	if !json.Valid(req.Body) {
		return nil, domain.ErrInvalidPayload
	}
	var b body
	if err := json.Unmarshal(req.Body, &b); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	event := &domain.Event{
		Gateway:        a.Gateway(),
		GatewayEventID: strings.TrimSpace(b.EventID),
		OrderID:        strings.TrimSpace(orderID),
		Asset:          strings.ToUpper(strings.TrimSpace(b.Asset)),
		Amount:         b.Amount,
		Confirmations:  b.Confirmations,
		TxHash:         strings.TrimSpace(b.TxHash),
		RawPayload:     req.Body,
	}
	if event.GatewayEventID == "" {
		event.GatewayEventID = event.TxHash
	}
	return event, nil
}
