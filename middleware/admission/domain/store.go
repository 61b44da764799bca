package domain

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable sinaliza falha de conectividade/timeout do backend de
// contadores. Quem consome deve degradar para fail-open, nunca propagar ao
// cliente como erro.
var ErrStoreUnavailable = errors.New("counter store unavailable")

// WindowEntry é uma entrada do log da janela deslizante: uma admissão com
// timestamp e custo. Entradas fora de [now-window, now] estão logicamente
// expiradas e devem ser expurgadas antes de contar.
type WindowEntry struct {
	At   time.Time
	Cost float64
}

// CounterStore executa o algoritmo sliding window log de forma atômica.
//
// CheckAndConsume deve, em uma única operação atômica por chave:
//  1. expurgar entradas anteriores a now-window (ou ao início do período,
//     para cotas de calendário);
//  2. somar os custos restantes;
//  3. se soma+cost <= max, registrar a nova entrada e renovar a expiração;
//     senão NÃO registrar (requisições negadas não consomem orçamento).
//
// Implementações distribuídas garantem atomicidade via transação no servidor
// (script Lua sobre sorted sets); a local, via mutex por chave.
type CounterStore interface {
	CheckAndConsume(ctx context.Context, key Key, rule Rule, cost float64) (Decision, error)

	// Reset remove os contadores cujas chaves começam com prefix.
	// Operação administrativa, nunca exposta no caminho público.
	Reset(ctx context.Context, prefix string) error

	// ResetAll remove todos os contadores deste store.
	ResetAll(ctx context.Context) error
}

// UsageWindow conta eventos recentes por chave, sem decidir nada.
// Usado pelo backpressure, que precisa apenas de "quantos nos últimos N".
type UsageWindow interface {
	// Observe registra um evento agora e devolve o total na janela.
	Observe(key Key, now time.Time) int
}
