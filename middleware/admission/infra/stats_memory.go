package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// MemoryStatsStore acumula estatísticas de admissão em memória.
//
// Apenas observabilidade: nunca participa da decisão de admissão. Entradas
// paradas são podadas pelo janitor para conter a cardinalidade.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      domain.Usage
	byRoute    map[string]domain.Usage
	byKey      map[string]domain.Usage
	byIdentity map[string]domain.Usage

	trackKeys  bool
	pruneAfter time.Duration
}

type MemoryStatsOption func(*MemoryStatsStore)

// WithTrackKeys liga o rastreio por chave individual (cuidado: cardinalidade).
func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func WithPruneAfter(d time.Duration) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.pruneAfter = d }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:    make(map[string]domain.Usage),
		byKey:      make(map[string]domain.Usage),
		byIdentity: make(map[string]domain.Usage),
		pruneAfter: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func bump(m map[string]domain.Usage, k string, allowed bool, at time.Time) {
	if k == "" {
		return
	}
	u := m[k]
	u.Requests++
	if !allowed {
		u.Limited++
	}
	u.LastSeen = at
	m[k] = u
}

// Record implementa domain.StatsStore.
func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.Requests++
	if !ev.Allowed {
		s.total.Limited++
	}
	s.total.LastSeen = at

	bump(s.byRoute, route, ev.Allowed, at)
	bump(s.byIdentity, ev.Identity, ev.Allowed, at)
	if s.trackKeys {
		bump(s.byKey, string(ev.Key), ev.Allowed, at)
	}
	return nil
}

// Snapshot implementa domain.StatsReader.
func (s *MemoryStatsStore) Snapshot(_ context.Context) (domain.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.StatsSnapshot{
		Total:      s.total,
		ByRoute:    cloneUsage(s.byRoute),
		ByKey:      cloneUsage(s.byKey),
		ByIdentity: cloneUsage(s.byIdentity),
	}, nil
}

// Prune descarta séries sem atividade desde o corte.
func (s *MemoryStatsStore) Prune() {
	cutoff := time.Now().Add(-s.pruneAfter)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range []map[string]domain.Usage{s.byRoute, s.byKey, s.byIdentity} {
		for k, u := range m {
			if u.LastSeen.Before(cutoff) {
				delete(m, k)
			}
		}
	}
}

// StartJanitor poda séries paradas periodicamente até o ctx encerrar.
func (s *MemoryStatsStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Prune()
			}
		}
	}()
}

func cloneUsage(m map[string]domain.Usage) map[string]domain.Usage {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]domain.Usage, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
