package infra

import (
	"context"
	"strings"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// LocalStore é o backend em processo do sliding window log.
//
// Consistência explícita e mais fraca que a do RedisStore: os contadores
// valem só para este processo. Aceitável apenas em implantações de instância
// única; em múltiplas instâncias cada uma aplica o limite isoladamente.
//
// O mapa de chaves é protegido por um mutex de acesso; o expurgo-leitura-
// inserção de cada chave roda sob o mutex da própria entrada, então chaves
// diferentes não disputam o mesmo lock no caminho quente.
type LocalStore struct {
	mu      sync.Mutex
	entries map[domain.Key]*windowLog

	idleTTL      time.Duration
	cleanupEvery time.Duration

	now func() time.Time
}

type windowLog struct {
	mu       sync.Mutex
	log      []domain.WindowEntry
	lastSeen time.Time
}

type LocalStoreOption func(*LocalStore)

func WithIdleTTL(d time.Duration) LocalStoreOption {
	return func(s *LocalStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) LocalStoreOption {
	return func(s *LocalStore) { s.cleanupEvery = d }
}

// WithClock troca a fonte de tempo (testes).
func WithClock(now func() time.Time) LocalStoreOption {
	return func(s *LocalStore) { s.now = now }
}

func NewLocalStore(opts ...LocalStoreOption) *LocalStore {
	s := &LocalStore{
		entries:      make(map[domain.Key]*windowLog),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalStore) entry(key domain.Key, now time.Time) *windowLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		ent = &windowLog{}
		s.entries[key] = ent
	}
	ent.lastSeen = now
	return ent
}

// CheckAndConsume implementa domain.CounterStore.
func (s *LocalStore) CheckAndConsume(_ context.Context, key domain.Key, rule domain.Rule, cost float64) (domain.Decision, error) {
	now := s.now()
	windowStart := windowStart(rule, now)

	ent := s.entry(key, now)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	ent.purge(windowStart)

	var usage float64
	for _, e := range ent.log {
		usage += e.Cost
	}

	// Custo zero é sonda (testLimit): responde se há vaga, sem registrar.
	var allowed bool
	if cost > 0 {
		allowed = usage+cost <= float64(rule.Max)
		if allowed {
			ent.log = append(ent.log, domain.WindowEntry{At: now, Cost: cost})
			usage += cost
		}
	} else {
		allowed = usage < float64(rule.Max)
	}

	return decisionFor(key, rule, now, allowed, usage, oldestOf(ent.log)), nil
}

// Reset implementa a operação administrativa de limpeza por prefixo.
func (s *LocalStore) Reset(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if strings.HasPrefix(string(k), prefix) {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *LocalStore) ResetAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[domain.Key]*windowLog)
	return nil
}

// Cleanup remove chaves sem atividade há mais de idleTTL (higiene de memória;
// a correção não depende disso, o expurgo por janela já ignora o que expirou).
func (s *LocalStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *LocalStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// purge descarta entradas anteriores ao início da janela (chamar com lock).
func (w *windowLog) purge(windowStart time.Time) {
	cut := 0
	for cut < len(w.log) && !w.log[cut].At.After(windowStart) {
		cut++
	}
	w.log = w.log[cut:]
}

func oldestOf(log []domain.WindowEntry) time.Time {
	if len(log) == 0 {
		return time.Time{}
	}
	return log[0].At
}

// windowStart devolve o limite inferior da janela: deslizante por padrão,
// início do período para cotas de calendário.
func windowStart(rule domain.Rule, now time.Time) time.Time {
	if rule.Period != domain.PeriodNone {
		return rule.Period.Start(now)
	}
	return now.Add(-rule.Window)
}

// decisionFor monta a Decision comum aos dois backends.
func decisionFor(key domain.Key, rule domain.Rule, now time.Time, allowed bool, usage float64, oldest time.Time) domain.Decision {
	remaining := rule.Max - int(usage)
	if remaining < 0 {
		remaining = 0
	}

	var resetAt time.Time
	switch {
	case rule.Period != domain.PeriodNone:
		resetAt = rule.Period.Next(now)
	case !oldest.IsZero():
		// A vaga mais próxima abre quando a entrada mais antiga sai da janela.
		resetAt = oldest.Add(rule.Window)
	default:
		resetAt = now.Add(rule.Window)
	}

	return domain.Decision{
		Key:       key,
		Rule:      rule,
		Allowed:   allowed,
		Limit:     rule.Max,
		Remaining: remaining,
		ResetAt:   resetAt,
		Window:    rule.Window,
		Usage:     usage,
		Weight:    rule.EffectiveWeight(),
	}
}
