package generic

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/domainpay/internal/payment/domain"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"eventID":"evt_1","asset":"btc","amount":"0.001","confirmations":2,"txHash":"0xabc"}`)
	adapter := New("shh")

	headers := http.Header{}
	headers.Set(signatureHeader, sign("shh", body))
	if err := adapter.Verify(context.Background(), paymentdomain.WebhookRequest{Body: body, Headers: headers}); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	headers.Set(signatureHeader, sign("wrong", body))
	err := adapter.Verify(context.Background(), paymentdomain.WebhookRequest{Body: body, Headers: headers})
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestVerifyWithoutSecretAcceptsAll(t *testing.T) {
	if err := New("").Verify(context.Background(), paymentdomain.WebhookRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParse(t *testing.T) {
	body := []byte(`{"eventID":"evt_1","asset":"btc","amount":0.00125,"confirmations":2,"txHash":"0xabc"}`)
	event, err := New("").Parse(context.Background(), "ord_1", paymentdomain.WebhookRequest{Body: body})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Asset != "BTC" || event.OrderID != "ord_1" || event.GatewayEventID != "evt_1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if !event.Amount.Equal(decimal.RequireFromString("0.00125")) {
		t.Fatalf("amount = %s", event.Amount)
	}
	if event.Confirmations != 2 || event.TxHash != "0xabc" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.PayloadHash() == "" {
		t.Fatalf("expected payload hash")
	}
}

func TestParseRejectsMalformedBody(t *testing.T) {
	_, err := New("").Parse(context.Background(), "ord_1", paymentdomain.WebhookRequest{Body: []byte(`{"amount":`)})
	if !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}
