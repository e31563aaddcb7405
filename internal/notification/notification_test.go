package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/domainpay/internal/notification/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingChannel struct {
	name string
	err  error

	mu   sync.Mutex
	sent []domain.Message
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(ctx context.Context, recipient domain.Recipient, msg domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type recordingSlack struct {
	mu       sync.Mutex
	channel  string
	messages []string
}

func (s *recordingSlack) PostMessage(ctx context.Context, channelID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = channelID
	s.messages = append(s.messages, message)
	return nil
}

func newTestDispatcher(t *testing.T, channels []domain.Channel, alerts *recordingSlack, opts Options) *Dispatcher {
	t.Helper()
	renderer, err := NewRenderer()
	require.NoError(t, err)
	return NewDispatcher(zap.NewNop(), renderer, channels, alerts, opts, nil)
}

func TestRenderUnderpaidCredited(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	msg, err := renderer.Render(domain.KindUnderpaidCredited, domain.Payload{
		"order_id":    "ord_1",
		"domain_name": "example.com",
		"expected":    "25.00",
		"received":    "18.50",
		"amount":      "18.50",
	})
	require.NoError(t, err)
	assert.Equal(t, "Payment credited to wallet: $18.50", msg.Subject)
	assert.Contains(t, msg.Text, "Required: $25.00")
	assert.Contains(t, msg.HTML, "<strong>example.com</strong>")
}

func TestRenderEscapesHTML(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	msg, err := renderer.Render(domain.KindDomainRegistered, domain.Payload{"domain_name": "<script>x</script>"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.Text, "<script>x</script>")
}

func TestRenderUnknownKind(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)
	_, err = renderer.Render(domain.Kind("nope"), nil)
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestDispatcherDeliversToEveryChannel(t *testing.T) {
	telegram := &recordingChannel{name: "telegram"}
	mail := &recordingChannel{name: "email", err: domain.ErrNoRecipient}
	failing := &recordingChannel{name: "broken", err: errors.New("boom")}
	d := newTestDispatcher(t, []domain.Channel{telegram, mail, failing}, &recordingSlack{}, Options{})
	require.NoError(t, d.Start(context.Background()))

	d.Notify(context.Background(), domain.Recipient{OwnerID: "42", ChatID: "42"}, domain.KindDepositCredited, domain.Payload{"amount": "10.00"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, 1, telegram.count())
	assert.Equal(t, 0, mail.count())
}

func TestNotifyNeverBlocksWhenQueueIsFull(t *testing.T) {
	ch := &recordingChannel{name: "telegram"}
	d := newTestDispatcher(t, []domain.Channel{ch}, &recordingSlack{}, Options{QueueSize: 1, Workers: 1})

	// Workers are not running yet, so only the first message fits.
	for i := 0; i < 3; i++ {
		d.Notify(context.Background(), domain.Recipient{ChatID: "1"}, domain.KindDepositCredited, nil)
	}
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, 1, ch.count())
}

func TestNotifyAfterStopIsDropped(t *testing.T) {
	ch := &recordingChannel{name: "telegram"}
	d := newTestDispatcher(t, []domain.Channel{ch}, &recordingSlack{}, Options{})
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Stop(context.Background()))

	assert.NotPanics(t, func() {
		d.Notify(context.Background(), domain.Recipient{ChatID: "1"}, domain.KindDepositCredited, nil)
	})
	assert.Equal(t, 0, ch.count())
}

func TestAlertPostsToSlack(t *testing.T) {
	alerts := &recordingSlack{}
	d := newTestDispatcher(t, nil, alerts, Options{AlertChannel: "#ops"})
	require.NoError(t, d.Start(context.Background()))

	d.Alert(context.Background(), domain.Alert{
		Severity: domain.SeverityCritical,
		Title:    "saga needs manual review",
		OrderID:  "ord_9",
		Fields:   map[string]string{"step": "persistence", "attempts": "5"},
	})
	require.NoError(t, d.Stop(context.Background()))

	require.Len(t, alerts.messages, 1)
	assert.Equal(t, "#ops", alerts.channel)
	msg := alerts.messages[0]
	assert.True(t, strings.HasPrefix(msg, "[CRITICAL] saga needs manual review"))
	assert.Less(t, strings.Index(msg, "attempts: 5"), strings.Index(msg, "step: persistence"))
}
