package infra

import (
	"context"
	"sync"

	"admission-gateway/middleware/admission/domain"
)

// StaticCountryResolver implementa domain.CountryResolver a partir de uma
// tabela fixa IP → país. Útil para testes e para implantações com
// mapeamento conhecido; o provedor real entra pela mesma interface.
type StaticCountryResolver struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewStaticCountryResolver(entries map[string]string) *StaticCountryResolver {
	m := make(map[string]string, len(entries))
	for ip, cc := range entries {
		m[ip] = cc
	}
	return &StaticCountryResolver{entries: m}
}

func (r *StaticCountryResolver) Country(_ context.Context, ip string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cc, ok := r.entries[ip]
	if !ok {
		return "", domain.ErrCountryUnknown
	}
	return cc, nil
}

// Set atualiza/insere um mapeamento (testes e carga dinâmica).
func (r *StaticCountryResolver) Set(ip, country string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[ip] = country
}
