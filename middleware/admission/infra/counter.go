package infra

import (
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// SlidingCounter implementa domain.UsageWindow: um contador deslizante por
// chave, sem máximo e sem decisão. Serve de insumo para o backpressure.
type SlidingCounter struct {
	mu     sync.Mutex
	window time.Duration
	counts map[domain.Key][]time.Time
}

func NewSlidingCounter(window time.Duration) *SlidingCounter {
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingCounter{
		window: window,
		counts: make(map[domain.Key][]time.Time),
	}
}

// Observe registra um evento e devolve o total dentro da janela.
func (c *SlidingCounter) Observe(key domain.Key, now time.Time) int {
	cutoff := now.Add(-c.window)

	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.counts[key]
	cut := 0
	for cut < len(log) && !log[cut].After(cutoff) {
		cut++
	}
	log = append(log[cut:], now)
	c.counts[key] = log
	return len(log)
}

// Cleanup descarta chaves cujo log inteiro já expirou.
func (c *SlidingCounter) Cleanup() {
	cutoff := time.Now().Add(-c.window)

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, log := range c.counts {
		if len(log) == 0 || !log[len(log)-1].After(cutoff) {
			delete(c.counts, k)
		}
	}
}

// StartJanitor limpa chaves expiradas periodicamente até o ctx encerrar.
func (c *SlidingCounter) StartJanitor(ctx doneContext, every time.Duration) {
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
				c.Cleanup()
			}
		}
	}()
}

// doneContext é o mínimo necessário para aceitar context.Context sem importar
// context aqui. (Permite reuso em libs sem acoplar.)
type doneContext interface {
	Done() <-chan struct{}
}
