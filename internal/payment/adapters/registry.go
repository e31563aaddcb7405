package adapters

import (
	"strings"

	"github.com/smallbiznis/domainpay/internal/payment/domain"
)

type Registry struct {
	adapters map[string]domain.Adapter
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	registry := &Registry{adapters: map[string]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		gateway := normalize(adapter.Gateway())
		if gateway == "" {
			continue
		}
		registry.adapters[gateway] = adapter
	}
	return registry
}

func (r *Registry) Exists(gateway string) bool {
	if r == nil {
		return false
	}
	_, ok := r.adapters[normalize(gateway)]
	return ok
}

func (r *Registry) Adapter(gateway string) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrGatewayNotFound
	}
	adapter, ok := r.adapters[normalize(gateway)]
	if !ok {
		return nil, domain.ErrGatewayNotFound
	}
	return adapter, nil
}

func normalize(gateway string) string {
	return strings.ToLower(strings.TrimSpace(gateway))
}
