package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Policy is the hot-reloadable engine policy: reconciliation tolerance,
// confirmation thresholds, saga retry budgets and job cadences.
type Policy struct {
	SettlementCurrency   string         `mapstructure:"settlementCurrency"`
	Tolerance            float64        `mapstructure:"tolerance"`
	DefaultConfirmations int            `mapstructure:"defaultConfirmations"`
	Confirmations        map[string]int `mapstructure:"confirmations"`
	PaymentExpiry        time.Duration  `mapstructure:"paymentExpiry"`
	EventClaimLease      time.Duration  `mapstructure:"eventClaimLease"`

	Rates RatePolicy `mapstructure:"rates"`
	Saga  SagaPolicy `mapstructure:"saga"`
}

type RatePolicy struct {
	FreshFor     time.Duration `mapstructure:"freshFor"`
	MaxStaleness time.Duration `mapstructure:"maxStaleness"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type SagaPolicy struct {
	Workers            int           `mapstructure:"workers"`
	QueueSize          int           `mapstructure:"queueSize"`
	RequestTimeout     time.Duration `mapstructure:"requestTimeout"`
	RegisterTimeout    time.Duration `mapstructure:"registerTimeout"`
	LockTTL            time.Duration `mapstructure:"lockTTL"`
	StaleAfter         time.Duration `mapstructure:"staleAfter"`
	DefaultNameservers []string      `mapstructure:"defaultNameservers"`
	RegistrationYears  int           `mapstructure:"registrationYears"`

	Contact     StepPolicy `mapstructure:"contact"`
	DNS         StepPolicy `mapstructure:"dns"`
	Registrar   StepPolicy `mapstructure:"registrar"`
	Persistence StepPolicy `mapstructure:"persistence"`
}

// StepPolicy parameterizes the retry wrapper for one saga step.
type StepPolicy struct {
	MaxAttempts int           `mapstructure:"maxAttempts"`
	BaseDelay   time.Duration `mapstructure:"baseDelay"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

func DefaultPolicy() Policy {
	return Policy{
		SettlementCurrency:   "USD",
		Tolerance:            0.01,
		DefaultConfirmations: 3,
		Confirmations: map[string]int{
			"BTC":  1,
			"ETH":  12,
			"LTC":  6,
			"DOGE": 20,
		},
		PaymentExpiry:   24 * time.Hour,
		EventClaimLease: 2 * time.Minute,
		Rates: RatePolicy{
			FreshFor:     5 * time.Minute,
			MaxStaleness: 24 * time.Hour,
			Timeout:      8 * time.Second,
		},
		Saga: SagaPolicy{
			Workers:            4,
			QueueSize:          256,
			RequestTimeout:     8 * time.Second,
			RegisterTimeout:    30 * time.Second,
			LockTTL:            10 * time.Minute,
			StaleAfter:         15 * time.Minute,
			DefaultNameservers: []string{"ns1.openprovider.nl", "ns2.openprovider.be", "ns3.openprovider.eu"},
			RegistrationYears:  1,
			Contact:            StepPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 4},
			DNS:                StepPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 4},
			Registrar:          StepPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 4},
			Persistence:        StepPolicy{MaxAttempts: 5, BaseDelay: time.Second, Multiplier: 2},
		},
	}
}

// RequiredConfirmations returns the confirmation threshold for an asset.
func (p Policy) RequiredConfirmations(asset string) int {
	key := strings.ToUpper(strings.TrimSpace(asset))
	for k, v := range p.Confirmations {
		if strings.ToUpper(k) == key {
			return v
		}
	}
	if p.DefaultConfirmations > 0 {
		return p.DefaultConfirmations
	}
	return 1
}

func (p Policy) ToleranceAmount() decimal.Decimal {
	return decimal.NewFromFloat(p.Tolerance)
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder wraps a fixed policy, used by tests and tooling.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	h := &PolicyHolder{}
	h.current.Store(p)
	return h
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.policy")

	v := viper.New()
	v.SetConfigName("policy")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/domainpay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOMAINPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setPolicyDefaults(v, DefaultPolicy())

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(cfg)
	if !fileLoaded {
		log.Info("policy file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Warn("policy reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func setPolicyDefaults(v *viper.Viper, p Policy) {
	v.SetDefault("settlementCurrency", p.SettlementCurrency)
	v.SetDefault("tolerance", p.Tolerance)
	v.SetDefault("defaultConfirmations", p.DefaultConfirmations)
	v.SetDefault("confirmations", p.Confirmations)
	v.SetDefault("paymentExpiry", p.PaymentExpiry)
	v.SetDefault("eventClaimLease", p.EventClaimLease)
	v.SetDefault("rates.freshFor", p.Rates.FreshFor)
	v.SetDefault("rates.maxStaleness", p.Rates.MaxStaleness)
	v.SetDefault("rates.timeout", p.Rates.Timeout)
	v.SetDefault("saga.workers", p.Saga.Workers)
	v.SetDefault("saga.queueSize", p.Saga.QueueSize)
	v.SetDefault("saga.requestTimeout", p.Saga.RequestTimeout)
	v.SetDefault("saga.registerTimeout", p.Saga.RegisterTimeout)
	v.SetDefault("saga.lockTTL", p.Saga.LockTTL)
	v.SetDefault("saga.staleAfter", p.Saga.StaleAfter)
	v.SetDefault("saga.defaultNameservers", p.Saga.DefaultNameservers)
	v.SetDefault("saga.registrationYears", p.Saga.RegistrationYears)
	for name, step := range map[string]StepPolicy{
		"contact":     p.Saga.Contact,
		"dns":         p.Saga.DNS,
		"registrar":   p.Saga.Registrar,
		"persistence": p.Saga.Persistence,
	} {
		v.SetDefault("saga."+name+".maxAttempts", step.MaxAttempts)
		v.SetDefault("saga."+name+".baseDelay", step.BaseDelay)
		v.SetDefault("saga."+name+".multiplier", step.Multiplier)
	}
}

func decodePolicy(v *viper.Viper) (Policy, error) {
	var cfg Policy
	if err := v.Unmarshal(&cfg); err != nil {
		return Policy{}, err
	}
	if err := ValidatePolicy(cfg); err != nil {
		return Policy{}, err
	}
	return cfg, nil
}

func ValidatePolicy(p Policy) error {
	if strings.TrimSpace(p.SettlementCurrency) == "" {
		return errors.New("settlementCurrency cannot be empty")
	}
	if p.Tolerance < 0 {
		return errors.New("tolerance must not be negative")
	}
	for asset, n := range p.Confirmations {
		if n < 0 {
			return fmt.Errorf("confirmations for %s must not be negative", asset)
		}
	}
	if p.Saga.Workers <= 0 {
		return errors.New("saga.workers must be positive")
	}
	if len(p.Saga.DefaultNameservers) == 0 {
		return errors.New("saga.defaultNameservers cannot be empty")
	}
	steps := map[string]StepPolicy{
		"contact":     p.Saga.Contact,
		"dns":         p.Saga.DNS,
		"registrar":   p.Saga.Registrar,
		"persistence": p.Saga.Persistence,
	}
	for name, step := range steps {
		if step.MaxAttempts <= 0 {
			return fmt.Errorf("saga.%s.maxAttempts must be positive", name)
		}
		if step.BaseDelay < 0 {
			return fmt.Errorf("saga.%s.baseDelay must not be negative", name)
		}
	}
	return nil
}
