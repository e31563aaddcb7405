package guard

import (
	"testing"
	"time"

	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	sagadomain "github.com/smallbiznis/domainpay/internal/saga/domain"
	"github.com/stretchr/testify/assert"
)

func TestEnsureNeedsFunding(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	old := orderdomain.Order{Status: orderdomain.StatusReconciled, UpdatedAt: cutoff.Add(-time.Minute)}
	assert.NoError(t, EnsureNeedsFunding(old, cutoff))

	fresh := orderdomain.Order{Status: orderdomain.StatusReconciled, UpdatedAt: cutoff.Add(time.Minute)}
	assert.ErrorIs(t, EnsureNeedsFunding(fresh, cutoff), ErrNotStuck)

	funded := orderdomain.Order{Status: orderdomain.StatusFunded, UpdatedAt: cutoff.Add(-time.Hour)}
	assert.ErrorIs(t, EnsureNeedsFunding(funded, cutoff), ErrNotStuck)
}

func TestEnsureSagaResumable(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := cutoff.Add(-time.Minute)
	recent := cutoff.Add(time.Minute)

	funded := orderdomain.Order{Status: orderdomain.StatusFunded, UpdatedAt: stale}
	running := orderdomain.Order{Status: orderdomain.StatusSagaRunning, UpdatedAt: stale}

	cases := []struct {
		name  string
		order orderdomain.Order
		state *sagadomain.State
		want  error
	}{
		{"funded without saga", funded, nil, nil},
		{"funded recently", orderdomain.Order{Status: orderdomain.StatusFunded, UpdatedAt: recent}, nil, ErrSagaRecentlyAlive},
		{"stale running saga", running, &sagadomain.State{Status: sagadomain.StatusRunning, UpdatedAt: stale}, nil},
		{"live running saga", running, &sagadomain.State{Status: sagadomain.StatusRunning, UpdatedAt: recent}, ErrSagaRecentlyAlive},
		{"manual review", running, &sagadomain.State{Status: sagadomain.StatusRunning, ManualReview: true, UpdatedAt: stale}, ErrSagaInReview},
		{"completed saga", running, &sagadomain.State{Status: sagadomain.StatusCompleted, UpdatedAt: stale}, ErrSagaTerminal},
		{"failed uncompensated", running, &sagadomain.State{Status: sagadomain.StatusFailed, UpdatedAt: stale}, nil},
		{"order completed", orderdomain.Order{Status: orderdomain.StatusCompleted}, nil, ErrNotStuck},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := EnsureSagaResumable(tc.order, tc.state, cutoff)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEnsureNeedsCompensation(t *testing.T) {
	assert.NoError(t, EnsureNeedsCompensation(sagadomain.State{Status: sagadomain.StatusFailed}))
	assert.ErrorIs(t, EnsureNeedsCompensation(sagadomain.State{Status: sagadomain.StatusFailed, Compensated: true}), ErrNotStuck)
	assert.ErrorIs(t, EnsureNeedsCompensation(sagadomain.State{Status: sagadomain.StatusFailed, ManualReview: true}), ErrSagaInReview)
}
