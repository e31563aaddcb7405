package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	require.NoError(t, ValidatePolicy(DefaultPolicy()))
}

func TestRequiredConfirmations(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 1, p.RequiredConfirmations("btc"))
	assert.Equal(t, 12, p.RequiredConfirmations("ETH"))
	assert.Equal(t, 6, p.RequiredConfirmations(" ltc "))
	assert.Equal(t, 20, p.RequiredConfirmations("DOGE"))
	assert.Equal(t, 3, p.RequiredConfirmations("XMR"))

	p.DefaultConfirmations = 0
	assert.Equal(t, 1, p.RequiredConfirmations("XMR"))
}

func TestToleranceAmount(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, "0.01", p.ToleranceAmount().String())
}

func TestValidatePolicyRejectsBadStepBudget(t *testing.T) {
	p := DefaultPolicy()
	p.Saga.Persistence.MaxAttempts = 0
	assert.Error(t, ValidatePolicy(p))

	p = DefaultPolicy()
	p.Saga.DefaultNameservers = nil
	assert.Error(t, ValidatePolicy(p))

	p = DefaultPolicy()
	p.Tolerance = -1
	assert.Error(t, ValidatePolicy(p))
}

func TestStaticPolicyHolder(t *testing.T) {
	p := DefaultPolicy()
	p.PaymentExpiry = time.Hour
	h := NewStaticPolicyHolder(p)
	assert.Equal(t, time.Hour, h.Get().PaymentExpiry)
}
