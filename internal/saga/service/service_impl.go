package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/domainpay/internal/clock"
	"github.com/smallbiznis/domainpay/internal/config"
	domainsdomain "github.com/smallbiznis/domainpay/internal/domains/domain"
	notificationdomain "github.com/smallbiznis/domainpay/internal/notification/domain"
	obslogger "github.com/smallbiznis/domainpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/domainpay/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	"github.com/smallbiznis/domainpay/internal/providers/provider"
	"github.com/smallbiznis/domainpay/internal/saga/domain"
	walletdomain "github.com/smallbiznis/domainpay/internal/wallet/domain"
	"github.com/smallbiznis/domainpay/pkg/retry"
	"github.com/smallbiznis/domainpay/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	Policy    *config.PolicyHolder
	GenID     *snowflake.Node
	Store     domain.Store
	Registrar domain.Registrar
	DNS       domain.DNSHost
	Notifier  notificationdomain.Notifier `optional:"true"`
	Alerter   notificationdomain.Alerter  `optional:"true"`
	Clock     clock.Clock                 `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	policy       *config.PolicyHolder
	genID        *snowflake.Node
	store        domain.Store
	registrar    domain.Registrar
	dns          domain.DNSHost
	notifier     notificationdomain.Notifier
	alerter      notificationdomain.Alerter
	clock        clock.Clock
	fallbackMail string
}

func NewService(p Params) *Service {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Service{
		log:          p.Log.Named("saga.service"),
		policy:       p.Policy,
		genID:        p.GenID,
		store:        p.Store,
		registrar:    p.Registrar,
		dns:          p.DNS,
		notifier:     p.Notifier,
		alerter:      p.Alerter,
		clock:        c,
		fallbackMail: p.Config.OpenProvider.FallbackContactEmail,
	}
}

var _ domain.Service = (*Service)(nil)

// run carries one execution of the saga.
type run struct {
	order *orderdomain.Order
	state *domain.State
	log   *zap.Logger
}

func (s *Service) Run(ctx context.Context, orderID string) (*domain.State, error) {
	ctx, corrID := correlation.EnsureCorrelationID(ctx)

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Kind != orderdomain.KindDomainRegistration {
		return nil, domain.ErrNotDomainOrder
	}

	state, err := s.store.GetSagaState(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	r := &run{
		order: order,
		state: state,
		log: obslogger.WithOrder(s.log, order.ID, order.OwnerID).With(
			zap.String("domain", order.Payload().DomainName),
			zap.String("correlation_id", corrID),
		),
	}

	if state != nil {
		switch {
		case state.ManualReview:
			return state, domain.ErrManualReview
		case state.Status == domain.StatusCompleted:
			return state, nil
		case state.Status == domain.StatusFailed:
			if state.Compensated {
				return state, nil
			}
			return state, s.compensate(ctx, r)
		}
	}

	switch order.Status {
	case orderdomain.StatusFunded, orderdomain.StatusSagaRunning:
	default:
		return state, fmt.Errorf("%w: order is %s", domain.ErrOrderNotFunded, order.Status)
	}

	if state == nil {
		r.state = &domain.State{
			OrderID:     order.ID,
			Status:      domain.StatusRunning,
			CurrentStep: domain.StepContact,
		}
		if err := s.store.UpsertSagaState(ctx, r.state); err != nil {
			return nil, err
		}
		r.log.Info("saga started")
	} else {
		r.log.Info("saga resumed", zap.String("step", string(state.CurrentStep)))
	}

	if order.Status == orderdomain.StatusFunded {
		updated, err := s.store.UpdateOrderStatus(ctx, order.ID, orderdomain.StatusSagaRunning, "")
		if err != nil {
			return r.state, err
		}
		r.order = updated
	}

	return r.state, s.advance(ctx, r)
}

// advance runs the remaining steps in order. A step is skipped when its
// external id is already recorded.
func (s *Service) advance(ctx context.Context, r *run) error {
	for {
		var err error
		switch r.state.CurrentStep {
		case domain.StepContact:
			err = s.contactStep(ctx, r)
		case domain.StepDNS:
			err = s.dnsStep(ctx, r)
		case domain.StepRegistrar:
			err = s.registrarStep(ctx, r)
		case domain.StepPersistence:
			return s.persistenceStep(ctx, r)
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *Service) contactStep(ctx context.Context, r *run) error {
	if r.state.ContactHandle == nil {
		email := strings.TrimSpace(r.order.Payload().ContactEmail)
		if email == "" {
			email = s.fallbackMail
		}
		identity := domain.PrivacyContact(email)

		handle, err := runStep(ctx, r, domain.StepContact, s.policy.Get().Saga.Contact, &r.state.ContactAttempts,
			func(ctx context.Context) (string, error) {
				return s.registrar.CreateContact(ctx, identity)
			})
		if err != nil {
			return s.stepFailed(ctx, r, domain.StepContact, err)
		}
		r.state.ContactHandle = &handle
	}
	return s.moveTo(ctx, r, domain.StepDNS)
}

func (s *Service) dnsStep(ctx context.Context, r *run) error {
	payload := r.order.Payload()
	saga := s.policy.Get().Saga

	if len(r.state.Nameservers) == 0 {
		switch payload.NameserverMode {
		case orderdomain.NameserverCustom:
			r.state.Nameservers = pq.StringArray(payload.Nameservers)
		case orderdomain.NameserverRegistrar:
			r.state.Nameservers = pq.StringArray(saga.DefaultNameservers)
		default:
			s.managedZone(ctx, r, payload.DomainName, saga)
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	return s.moveTo(ctx, r, domain.StepRegistrar)
}

// managedZone reuses or creates the hosted zone. When the DNS host cannot
// serve the zone the registration proceeds on the registrar defaults.
func (s *Service) managedZone(ctx context.Context, r *run, name string, saga config.SagaPolicy) {
	if r.state.DNSZoneID == nil {
		zone, err := runStep(ctx, r, domain.StepDNS, saga.DNS, &r.state.DNSAttempts,
			func(ctx context.Context) (domain.Zone, error) {
				return s.ensureZone(ctx, name)
			})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Warn("dns zone unavailable, using registrar nameservers", zap.Error(err))
			obsmetrics.Saga().IncDNSDegraded()
			r.state.DNSDegraded = true
			r.state.Nameservers = pq.StringArray(saga.DefaultNameservers)
			r.state.LastError = errText(err)
			return
		}
		r.state.DNSZoneID = &zone.ID
		if len(zone.Nameservers) > 0 {
			r.state.Nameservers = pq.StringArray(zone.Nameservers)
			return
		}
	}

	// A zone without assigned nameservers cannot be delegated to.
	r.log.Warn("dns zone has no nameservers, using registrar nameservers")
	obsmetrics.Saga().IncDNSDegraded()
	r.state.DNSDegraded = true
	r.state.Nameservers = pq.StringArray(saga.DefaultNameservers)
}

func (s *Service) ensureZone(ctx context.Context, name string) (domain.Zone, error) {
	zone, err := s.dns.GetZone(ctx, name)
	if err == nil {
		return zone, nil
	}
	if !errors.Is(err, domain.ErrZoneNotFound) {
		return domain.Zone{}, err
	}
	zone, err = s.dns.CreateZone(ctx, name)
	if errors.Is(err, domain.ErrZoneExists) {
		return s.dns.GetZone(ctx, name)
	}
	return zone, err
}

func (s *Service) registrarStep(ctx context.Context, r *run) error {
	if r.state.RegistrarDomainID == nil {
		payload := r.order.Payload()
		years := payload.RegistrationYears
		if years <= 0 {
			years = s.policy.Get().Saga.RegistrationYears
		}
		reg := domain.Registration{
			DomainName:    payload.DomainName,
			ContactHandle: deref(r.state.ContactHandle),
			Nameservers:   []string(r.state.Nameservers),
			Years:         years,
			PrivateWhois:  true,
		}

		duplicate := false
		id, err := runStep(ctx, r, domain.StepRegistrar, s.policy.Get().Saga.Registrar, &r.state.RegistrarAttempts,
			func(ctx context.Context) (string, error) {
				id, err := s.registrar.RegisterDomain(ctx, reg)
				if !errors.Is(err, domain.ErrDuplicateRegistration) {
					return id, err
				}
				// Registered by an earlier attempt whose reply was lost, or
				// by someone else entirely.
				id, err = s.registrar.FindDomain(ctx, reg.DomainName)
				if errors.Is(err, domain.ErrRegistrarDomainAbsent) {
					return "", fmt.Errorf("%w: %s is registered outside this account", domainsdomain.ErrDomainTaken, reg.DomainName)
				}
				if err == nil {
					duplicate = true
				}
				return id, err
			})
		if err != nil {
			return s.stepFailed(ctx, r, domain.StepRegistrar, err)
		}
		if duplicate {
			r.log.Info("registrar reported duplicate, adopted existing registration", zap.String("registrar_domain_id", id))
		}
		r.state.RegistrarDomainID = &id
		r.state.DuplicateRegistration = duplicate
	}
	return s.moveTo(ctx, r, domain.StepPersistence)
}

// persistenceStep retries the local write alone. The domain is already
// bought, so exhaustion parks the saga for an operator instead of refunding.
func (s *Service) persistenceStep(ctx context.Context, r *run) error {
	payload := r.order.Payload()
	years := payload.RegistrationYears
	if years <= 0 {
		years = s.policy.Get().Saga.RegistrationYears
	}
	now := s.clock.Now()
	record := &domainsdomain.RegisteredDomain{
		ID:                s.genID.Generate(),
		DomainName:        payload.DomainName,
		OwnerID:           r.order.OwnerID,
		OrderID:           r.order.ID,
		RegistrarDomainID: deref(r.state.RegistrarDomainID),
		DNSZoneID:         r.state.DNSZoneID,
		Nameservers:       r.state.Nameservers,
		DNSDegraded:       r.state.DNSDegraded,
		Status:            domainsdomain.StatusActive,
		RegisteredAt:      now,
		ExpiresAt:         now.AddDate(years, 0, 0),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	stepPolicy := s.policy.Get().Saga.Persistence
	_, err := runStepWith(ctx, r, domain.StepPersistence, stepPolicy, &r.state.PersistAttempts, func(error) bool { return true },
		func(ctx context.Context) (struct{}, error) {
			state := *r.state
			if err := s.store.CompleteRegistration(ctx, record, &state); err != nil {
				return struct{}{}, err
			}
			*r.state = state
			return struct{}{}, nil
		})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.state.ManualReview = true
		r.state.LastError = errText(err)
		if uerr := s.store.UpsertSagaState(ctx, r.state); uerr != nil {
			r.log.Error("could not flag saga for manual review", zap.Error(uerr))
		}
		obsmetrics.Saga().IncManualReview()
		obsmetrics.Saga().IncRun("manual_review")
		r.log.Error("persistence exhausted, saga needs manual review", zap.Error(err))
		s.alert(ctx, notificationdomain.Alert{
			Severity: notificationdomain.SeverityCritical,
			Title:    "Registered domain could not be recorded",
			OrderID:  r.order.ID,
			Message:  "The domain was bought at the registrar but the local write failed. No refund was issued.",
			Fields: map[string]string{
				"domain":              payload.DomainName,
				"registrar_domain_id": record.RegistrarDomainID,
				"attempts":            fmt.Sprint(r.state.PersistAttempts),
				"error":               err.Error(),
			},
		})
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}

	obsmetrics.Saga().IncRun("completed")
	r.log.Info("domain registered",
		zap.String("registrar_domain_id", record.RegistrarDomainID),
		zap.Bool("dns_degraded", record.DNSDegraded),
		zap.Bool("duplicate_registration", r.state.DuplicateRegistration),
	)
	s.notify(ctx, r.order, notificationdomain.KindDomainRegistered, notificationdomain.Payload{
		"order_id":    r.order.ID,
		"domain_name": record.DomainName,
		"expires_at":  record.ExpiresAt.Format("2006-01-02"),
		"nameservers": strings.Join(record.Nameservers, ", "),
	})
	return nil
}

// stepFailed ends the saga on a terminal step error. Cancellation leaves the
// saga running so the recovery sweep picks it up.
func (s *Service) stepFailed(ctx context.Context, r *run, step domain.Step, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.state.Status = domain.StatusFailed
	r.state.CurrentStep = domain.StepFailed
	r.state.LastError = errText(err)
	if uerr := s.store.UpsertSagaState(ctx, r.state); uerr != nil {
		r.log.Error("could not record saga failure", zap.Error(uerr))
		return uerr
	}
	obsmetrics.Saga().IncRun("failed")
	r.log.Warn("saga step failed", zap.String("step", string(step)), zap.Error(err))

	if provider.IsFatal(err) {
		s.alert(ctx, notificationdomain.Alert{
			Severity: notificationdomain.SeverityWarning,
			Title:    "Registration failed on a provider error",
			OrderID:  r.order.ID,
			Message:  err.Error(),
			Fields: map[string]string{
				"step":     string(step),
				"category": string(provider.CategoryOf(err)),
				"domain":   r.order.Payload().DomainName,
			},
		})
	}
	return s.compensate(ctx, r)
}

// compensate refunds what the order funded and fails it. The refund
// reference makes a repeated compensation a no-op.
func (s *Service) compensate(ctx context.Context, r *run) error {
	amount := FundedAmount(r.order)
	reason := "registration_failed"
	if r.state.LastError != nil {
		reason = "registration_failed: " + *r.state.LastError
	}

	posting, err := s.store.Compensate(ctx, r.state, walletdomain.CreditRequest{
		OwnerID:   r.order.OwnerID,
		Amount:    amount,
		Reason:    walletdomain.ReasonRefund,
		OrderID:   r.order.ID,
		Reference: walletdomain.RefundReference(r.order.ID),
	}, truncate(reason, 240))
	if err != nil {
		obsmetrics.Saga().IncCompensation("error")
		r.log.Error("compensation failed, left for the recovery sweep", zap.Error(err))
		return err
	}
	obsmetrics.Saga().IncCompensation("refunded")
	r.log.Info("registration refunded", zap.String("amount", amount.StringFixed(2)))

	if posting.Duplicate {
		return nil
	}
	s.notify(ctx, r.order, notificationdomain.KindRegistrationFailed, notificationdomain.Payload{
		"order_id":    r.order.ID,
		"domain_name": r.order.Payload().DomainName,
		"amount":      amount.StringFixed(2),
		"balance":     posting.Balance.StringFixed(2),
	})
	return nil
}

// FundedAmount is what a domain order paid toward the registration. Any
// surplus was already credited as overpayment when the order was funded.
func FundedAmount(order *orderdomain.Order) decimal.Decimal {
	if !order.SettlementAmount.Valid {
		return order.ExpectedAmount
	}
	if order.Classification != nil && *order.Classification == orderdomain.ClassificationOverpaid {
		return order.ExpectedAmount
	}
	return order.SettlementAmount.Decimal
}

func (s *Service) moveTo(ctx context.Context, r *run, next domain.Step) error {
	r.state.CurrentStep = next
	if err := s.store.UpsertSagaState(ctx, r.state); err != nil {
		r.log.Error("could not record saga step", zap.String("step", string(next)), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*domain.State, error) {
	state, err := s.store.GetSagaState(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domain.ErrSagaNotFound
	}
	return state, nil
}

func (s *Service) ListManualReview(ctx context.Context, limit int) ([]domain.State, error) {
	yes := true
	return s.store.ListSagaStates(ctx, domain.ListFilter{ManualReview: &yes, Limit: limit})
}

func (s *Service) ClearManualReview(ctx context.Context, orderID string) (*domain.State, error) {
	state, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !state.ManualReview {
		return nil, domain.ErrNotInManualReview
	}
	state.ManualReview = false
	state.PersistAttempts = 0
	if err := s.store.UpsertSagaState(ctx, state); err != nil {
		return nil, err
	}
	s.log.Info("manual review cleared", zap.String("order_id", state.OrderID))
	return state, nil
}

func runStep[T any](ctx context.Context, r *run, step domain.Step, sp config.StepPolicy, attempts *int, op func(ctx context.Context) (T, error)) (T, error) {
	return runStepWith(ctx, r, step, sp, attempts, provider.IsRetryable, op)
}

// runStepWith wraps op in the retry policy of one step, counting attempts on
// the saga state and recording step metrics.
func runStepWith[T any](ctx context.Context, r *run, step domain.Step, sp config.StepPolicy, attempts *int, retryable func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	metrics := obsmetrics.Saga()
	policy := retry.Policy{
		MaxAttempts: sp.MaxAttempts,
		BaseDelay:   sp.BaseDelay,
		Multiplier:  sp.Multiplier,
		Retryable:   retryable,
		OnRetry: func(attempt int, err error, next time.Duration) {
			r.log.Warn("saga step retry",
				zap.String("step", string(step)),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err),
			)
		},
	}

	start := time.Now()
	res, _, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (T, error) {
		*attempts++
		res, err := op(ctx)
		metrics.IncStepAttempt(string(step), stepResult(err))
		return res, err
	})
	metrics.ObserveStepDuration(string(step), time.Since(start))
	return res, err
}

func stepResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case provider.IsRetryable(err):
		return "retryable"
	default:
		return "fatal"
	}
}

func (s *Service) notify(ctx context.Context, order *orderdomain.Order, kind notificationdomain.Kind, payload notificationdomain.Payload) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notificationdomain.RecipientFor(order), kind, payload)
}

func (s *Service) alert(ctx context.Context, alert notificationdomain.Alert) {
	if s.alerter == nil {
		return
	}
	s.alerter.Alert(ctx, alert)
}

func errText(err error) *string {
	msg := truncate(err.Error(), 500)
	return &msg
}

// truncate cuts s to at most n bytes on a rune boundary. The result is
// stored in text columns that reject invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
