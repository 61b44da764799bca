package application

import (
	"context"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// Backpressure aplica atraso artificial progressivo quando uma chave passa do
// limiar suave, suavizando o tráfego em vez de cortar de uma vez — reduz
// tempestades de retry.
//
// O atraso acontece DEPOIS da decisão dura de admissão (requisição negada
// nunca chega aqui) e respeita o cancelamento do contexto: cliente que
// desconectou não segura recurso esperando.
type Backpressure struct {
	// Window conta requisições recentes por chave (janela própria, default
	// 60s, independente das regras de limite).
	Window domain.UsageWindow

	// DelayAfter é o limiar suave: até ele, atraso zero.
	DelayAfter int
	// Delay é o degrau de atraso por requisição acima do limiar.
	Delay time.Duration
	// MaxDelay é o teto do atraso, por mais longe que o excesso vá.
	MaxDelay time.Duration

	// Sleep troca a suspensão (testes); nil usa timer real.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DelayFor calcula o atraso para o n-ésimo evento da janela, sem dormir.
func (b Backpressure) DelayFor(count int) time.Duration {
	over := count - b.DelayAfter
	if over <= 0 || b.Delay <= 0 {
		return 0
	}
	d := time.Duration(over) * b.Delay
	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}
	return d
}

// MaybeDelay registra a requisição na janela e suspende pelo atraso devido.
// Devolve o atraso aplicado; erro apenas se o ctx cancelar durante a espera.
func (b Backpressure) MaybeDelay(ctx context.Context, key domain.Key) (time.Duration, error) {
	if b.Window == nil || b.DelayAfter <= 0 {
		return 0, nil
	}

	count := b.Window.Observe(key, time.Now())
	d := b.DelayFor(count)
	if d <= 0 {
		return 0, nil
	}

	sleep := b.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	if err := sleep(ctx, d); err != nil {
		return 0, err
	}
	return d, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
