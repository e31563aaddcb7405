// Package notification delivers user notifications and operator alerts off
// the request path. Delivery is best effort: failures are logged and
// counted, never returned to the caller.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/domainpay/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/domainpay/internal/observability/metrics"
	"github.com/smallbiznis/domainpay/internal/providers/slack"
	"go.uber.org/zap"
)

const (
	defaultWorkers     = 2
	defaultQueueSize   = 512
	defaultSendTimeout = 10 * time.Second
)

type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	// AlertChannel is the Slack channel operator alerts go to.
	AlertChannel string
}

type job struct {
	ctx          context.Context
	notification *domain.Notification
	alert        *domain.Alert
}

// Dispatcher queues notifications and alerts for a small worker pool. A full
// queue drops the message with a warning instead of blocking the caller.
type Dispatcher struct {
	log        *zap.Logger
	renderer   *Renderer
	channels   []domain.Channel
	slack      slack.Provider
	opts       Options
	obsMetrics *obsmetrics.Metrics
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

func NewDispatcher(log *zap.Logger, renderer *Renderer, channels []domain.Channel, alerts slack.Provider, opts Options, m *obsmetrics.Metrics) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if alerts == nil {
		alerts = &slack.NoOpProvider{}
	}
	return &Dispatcher{
		log:        log.Named("notification.dispatcher"),
		renderer:   renderer,
		channels:   channels,
		slack:      alerts,
		opts:       opts,
		obsMetrics: m,
		now:        time.Now,
		queue:      make(chan job, opts.QueueSize),
	}
}

func (d *Dispatcher) Start(context.Context) error {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.log.Info("notification dispatcher started", zap.Int("workers", d.opts.Workers))
	return nil
}

// Stop closes the queue and waits for queued messages until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.log.Warn("notification dispatcher stopped with messages pending", zap.Int("pending", len(d.queue)))
		return ctx.Err()
	}
}

func (d *Dispatcher) Notify(ctx context.Context, recipient domain.Recipient, kind domain.Kind, payload domain.Payload) {
	if !kind.Valid() {
		d.log.Warn("unknown notification kind dropped", zap.String("kind", string(kind)))
		return
	}
	n := &domain.Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: d.now(),
	}
	if !d.enqueue(job{ctx: detach(ctx), notification: n}) {
		d.log.Warn("notification dropped",
			zap.String("notification_id", n.ID),
			zap.String("owner_id", recipient.OwnerID),
			zap.String("kind", string(kind)),
		)
		d.obsMetrics.RecordNotification(ctx, "queue", string(kind), "dropped")
	}
}

// Alert always logs at error level; Slack delivery is queued.
func (d *Dispatcher) Alert(ctx context.Context, alert domain.Alert) {
	if alert.Severity == "" {
		alert.Severity = domain.SeverityWarning
	}
	d.log.Error("operator alert",
		zap.String("severity", string(alert.Severity)),
		zap.String("title", alert.Title),
		zap.String("order_id", alert.OrderID),
		zap.String("message", alert.Message),
		zap.Any("fields", alert.Fields),
	)
	if !d.enqueue(job{ctx: detach(ctx), alert: &alert}) {
		d.obsMetrics.RecordNotification(ctx, "queue", "operator_alert", "dropped")
	}
}

func (d *Dispatcher) enqueue(j job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- j:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		switch {
		case j.notification != nil:
			d.deliver(j.ctx, j.notification)
		case j.alert != nil:
			d.deliverAlert(j.ctx, j.alert)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n *domain.Notification) {
	log := d.log.With(
		zap.String("notification_id", n.ID),
		zap.String("owner_id", n.Recipient.OwnerID),
		zap.String("kind", string(n.Kind)),
	)
	msg, err := d.renderer.Render(n.Kind, n.Payload)
	if err != nil {
		log.Error("failed to render notification", zap.Error(err))
		d.obsMetrics.RecordNotification(ctx, "render", string(n.Kind), "failed")
		return
	}

	delivered := false
	for _, ch := range d.channels {
		sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		err := ch.Send(sendCtx, n.Recipient, msg)
		cancel()

		outcome := "sent"
		switch {
		case errors.Is(err, domain.ErrNoRecipient), errors.Is(err, domain.ErrChannelDisabled):
			outcome = "skipped"
		case err != nil:
			outcome = "failed"
			log.Warn("notification delivery failed", zap.String("channel", ch.Name()), zap.Error(err))
		default:
			delivered = true
		}
		d.obsMetrics.RecordNotification(ctx, ch.Name(), string(n.Kind), outcome)
	}
	if !delivered {
		log.Warn("notification reached no channel")
	}
}

func (d *Dispatcher) deliverAlert(ctx context.Context, alert *domain.Alert) {
	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()

	err := d.slack.PostMessage(sendCtx, d.opts.AlertChannel, formatAlert(alert))
	outcome := "sent"
	switch {
	case errors.Is(err, slack.ErrNotConfigured):
		outcome = "skipped"
	case err != nil:
		outcome = "failed"
		d.log.Warn("operator alert delivery failed", zap.String("title", alert.Title), zap.Error(err))
	}
	d.obsMetrics.RecordNotification(ctx, "slack", "operator_alert", outcome)
}

func formatAlert(alert *domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	if alert.OrderID != "" {
		fmt.Fprintf(&b, "\norder: %s", alert.OrderID)
	}
	if alert.Message != "" {
		fmt.Fprintf(&b, "\n%s", alert.Message)
	}
	keys := make([]string, 0, len(alert.Fields))
	for k := range alert.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, alert.Fields[k])
	}
	return b.String()
}

// detach keeps request-scoped values such as correlation ids while dropping
// the request's cancellation.
func detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
