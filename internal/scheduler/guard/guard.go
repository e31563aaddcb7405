// Package guard holds the eligibility rules the recovery sweep applies
// before touching an order.
package guard

import (
	"errors"
	"time"

	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	sagadomain "github.com/smallbiznis/domainpay/internal/saga/domain"
)

var (
	ErrNotStuck          = errors.New("order_not_stuck")
	ErrSagaInReview      = errors.New("saga_in_manual_review")
	ErrSagaRecentlyAlive = errors.New("saga_recently_active")
	ErrSagaTerminal      = errors.New("saga_terminal")
)

// EnsureNeedsFunding accepts a reconciled order whose funding has not
// committed within the threshold.
func EnsureNeedsFunding(order orderdomain.Order, cutoff time.Time) error {
	if order.Status != orderdomain.StatusReconciled {
		return ErrNotStuck
	}
	if order.UpdatedAt.After(cutoff) {
		return ErrNotStuck
	}
	return nil
}

// EnsureSagaResumable accepts a funded order with no saga yet, or a running
// saga whose last heartbeat is older than cutoff.
func EnsureSagaResumable(order orderdomain.Order, state *sagadomain.State, cutoff time.Time) error {
	switch order.Status {
	case orderdomain.StatusFunded, orderdomain.StatusSagaRunning:
	default:
		return ErrNotStuck
	}
	if state == nil {
		if order.UpdatedAt.After(cutoff) {
			return ErrSagaRecentlyAlive
		}
		return nil
	}
	if state.ManualReview {
		return ErrSagaInReview
	}
	if state.Terminal() && !state.NeedsCompensation() {
		return ErrSagaTerminal
	}
	if state.UpdatedAt.After(cutoff) {
		return ErrSagaRecentlyAlive
	}
	return nil
}

// EnsureNeedsCompensation accepts a failed saga whose refund has not
// committed.
func EnsureNeedsCompensation(state sagadomain.State) error {
	if state.ManualReview {
		return ErrSagaInReview
	}
	if !state.NeedsCompensation() {
		return ErrNotStuck
	}
	return nil
}
