package application

import (
	"sync"

	"admission-gateway/middleware/admission/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas do
// portão de concorrência, sem saber nada sobre HTTP.
//
// Diferente do rate limit por janela, aqui o limite é de requisições
// SIMULTANEAMENTE em voo por chave; estourar responde com indisponibilidade
// transitória (503), não com cota esgotada (429).
type ConcurrencyService struct {
	Pool domain.TicketPool
	Max  int
}

// Acquire tenta adquirir uma vaga para a chave.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
// O release devolvido é idempotente: chamadas repetidas são no-op, e liberar
// depois da evicção por timeout também.
func (s ConcurrencyService) Acquire(key domain.Key) (func(), bool) {
	if s.Pool == nil || s.Max <= 0 {
		return func() {}, true
	}

	tk, ok := s.Pool.Acquire(key, s.Max)
	if !ok {
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.Pool.Release(tk) })
	}, true
}

// Active devolve quantos tickets a chave tem em voo agora.
func (s ConcurrencyService) Active(key domain.Key) int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.Active(key)
}
