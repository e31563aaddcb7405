// Package blockbee parses BlockBee payment callbacks. BlockBee calls back
// with GET query parameters by default and with a JSON body when the
// callback was created with post=1.
package blockbee

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/payment/domain"
)

type Adapter struct {
	secret string
}

// New returns the adapter. With a secret, callbacks must carry it in the
// "secret" query parameter that was embedded in the callback url.
func New(secret string) *Adapter {
	return &Adapter{secret: strings.TrimSpace(secret)}
}

func (a *Adapter) Gateway() string {
	return "blockbee"
}

func (a *Adapter) Verify(ctx context.Context, req domain.WebhookRequest) error {
	if a.secret == "" {
		return nil
	}
	got := url.Values(req.Query).Get("secret")
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.secret)) != 1 {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, orderID string, req domain.WebhookRequest) (*domain.Event, error) {
	fields, err := a.fields(req)
	if err != nil {
		return nil, err
	}

	// pending=1 marks the mempool notification that precedes confirmations.
	if fields["pending"] == "1" {
		return nil, domain.ErrEventIgnored
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(fields["value_coin"]))
	if err != nil {
		return nil, domain.ErrInvalidPayload
	}
	confirmations := 0
	if raw := strings.TrimSpace(fields["confirmations"]); raw != "" {
		confirmations, err = strconv.Atoi(raw)
		if err != nil {
			return nil, domain.ErrInvalidPayload
		}
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, domain.ErrInvalidPayload
	}

	event := &domain.Event{
		Gateway:        a.Gateway(),
		GatewayEventID: strings.TrimSpace(fields["uuid"]),
		OrderID:        strings.TrimSpace(orderID),
		Asset:          normalizeCoin(fields["coin"]),
		Amount:         amount,
		Confirmations:  confirmations,
		TxHash:         strings.TrimSpace(fields["txid_in"]),
		RawPayload:     raw,
	}
	if event.GatewayEventID == "" {
		event.GatewayEventID = event.TxHash
	}
	return event, nil
}

// fields flattens either delivery style into one map. The shared secret is
// dropped so it never reaches storage.
func (a *Adapter) fields(req domain.WebhookRequest) (map[string]string, error) {
	out := map[string]string{}
	if req.Method == http.MethodPost && len(req.Body) > 0 {
		var body map[string]any
		decoder := json.NewDecoder(bytes.NewReader(req.Body))
		decoder.UseNumber()
		if err := decoder.Decode(&body); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		for k, v := range body {
			switch val := v.(type) {
			case string:
				out[k] = val
			case json.Number:
				out[k] = val.String()
			case bool:
				out[k] = strconv.FormatBool(val)
			}
		}
	}
	for k, values := range req.Query {
		if len(values) == 0 {
			continue
		}
		if _, ok := out[k]; !ok {
			out[k] = values[0]
		}
	}
	delete(out, "secret")
	if len(out) == 0 {
		return nil, domain.ErrInvalidPayload
	}
	return out, nil
}

// normalizeCoin maps BlockBee tickers such as "bep20_usdt" or "trc20_usdt"
// to the asset symbol.
func normalizeCoin(coin string) string {
	coin = strings.ToLower(strings.TrimSpace(coin))
	if i := strings.LastIndex(coin, "_"); i >= 0 {
		coin = coin[i+1:]
	}
	return strings.ToUpper(coin)
}
