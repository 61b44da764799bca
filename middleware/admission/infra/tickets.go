package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/google/uuid"
)

// TicketTable é a tabela de tickets em voo do portão de concorrência.
//
// Uma varredura de fundo evita vazamentos quando o handler nunca sinaliza a
// conclusão (panic, cliente desconectado sem release): tickets mais velhos
// que evictAfter são removidos à força. Release é idempotente, então o
// release normal depois de uma evicção é um no-op.
type TicketTable struct {
	mu       sync.Mutex
	inFlight map[domain.Key]map[string]time.Time

	evictAfter time.Duration
	sweepEvery time.Duration

	now func() time.Time
}

type TicketTableOption func(*TicketTable)

func WithEvictAfter(d time.Duration) TicketTableOption {
	return func(t *TicketTable) { t.evictAfter = d }
}

func WithSweepEvery(d time.Duration) TicketTableOption {
	return func(t *TicketTable) { t.sweepEvery = d }
}

func WithTicketClock(now func() time.Time) TicketTableOption {
	return func(t *TicketTable) { t.now = now }
}

func NewTicketTable(opts ...TicketTableOption) *TicketTable {
	t := &TicketTable{
		inFlight:   make(map[domain.Key]map[string]time.Time),
		evictAfter: 30 * time.Second,
		sweepEvery: 5 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Acquire implementa domain.TicketPool: rejeita na hora quando a chave já tem
// max tickets ativos, sem fila e sem espera.
func (t *TicketTable) Acquire(key domain.Key, max int) (domain.Ticket, bool) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	active := t.inFlight[key]
	if len(active) >= max {
		return domain.Ticket{}, false
	}
	if active == nil {
		active = make(map[string]time.Time)
		t.inFlight[key] = active
	}

	tk := domain.Ticket{ID: uuid.NewString(), Key: key, IssuedAt: now}
	active[tk.ID] = now
	return tk, true
}

// Release devolve a vaga. Idempotente: chamadas repetidas, ou depois da
// evicção por timeout, não fazem nada.
func (t *TicketTable) Release(tk domain.Ticket) {
	t.mu.Lock()
	defer t.mu.Unlock()

	active, ok := t.inFlight[tk.Key]
	if !ok {
		return
	}
	delete(active, tk.ID)
	if len(active) == 0 {
		delete(t.inFlight, tk.Key)
	}
}

func (t *TicketTable) Active(key domain.Key) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inFlight[key])
}

// Sweep remove tickets emitidos há mais de evictAfter.
func (t *TicketTable) Sweep() {
	cutoff := t.now().Add(-t.evictAfter)

	t.mu.Lock()
	defer t.mu.Unlock()

	for key, active := range t.inFlight {
		for id, issued := range active {
			if issued.Before(cutoff) {
				delete(active, id)
			}
		}
		if len(active) == 0 {
			delete(t.inFlight, key)
		}
	}
}

// StartJanitor roda a varredura de evicção até o ctx encerrar.
func (t *TicketTable) StartJanitor(ctx context.Context) {
	if t.sweepEvery <= 0 {
		return
	}

	tick := time.NewTicker(t.sweepEvery)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				t.Sweep()
			}
		}
	}()
}
