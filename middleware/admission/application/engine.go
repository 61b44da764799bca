package application

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// Engine orquestra resolução de regras, derivação de chaves e avaliação no
// CounterStore. É o único componente que decide allow/deny.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna o agregado.
type Engine struct {
	Store    domain.CounterStore
	Resolver *Resolver
	// KeyFn deriva a chave composta; nil usa domain.BuildKey.
	KeyFn domain.KeyFunc
	// Now troca a fonte de tempo (testes); nil usa time.Now.
	Now func() time.Time
}

// Evaluate avalia todas as regras aplicáveis concorrentemente e reduz ao
// agregado: qualquer violação nega; a mais restritiva define o Retry-After.
//
// Requisições negadas por uma regra ainda consomem orçamento nas demais
// regras avaliadas — cada contador é independente por contrato; só a regra
// que negou não registra a entrada.
func (e *Engine) Evaluate(ctx context.Context, ri domain.RequestInfo, extra ...domain.Rule) domain.Aggregate {
	return e.evaluate(ctx, ri, ri.EffectiveCost(), extra...)
}

func (e *Engine) evaluate(ctx context.Context, ri domain.RequestInfo, cost float64, extra ...domain.Rule) domain.Aggregate {
	if e.Store == nil || e.Resolver == nil {
		return domain.Aggregate{Allowed: true, Skipped: true}
	}

	keyFn := e.KeyFn
	if keyFn == nil {
		keyFn = domain.BuildKey
	}
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}

	rules := e.Resolver.Resolve(ctx, ri, extra...)
	if len(rules) == 0 {
		return domain.Aggregate{Allowed: true, Skipped: true}
	}

	decisions := make([]domain.Decision, len(rules))

	var wg sync.WaitGroup
	for i, rule := range rules {
		wg.Add(1)
		go func(i int, rule domain.Rule) {
			defer wg.Done()

			key := keyFn(ri, rule, now)
			weighted := cost * rule.EffectiveWeight()

			d, err := e.Store.CheckAndConsume(ctx, key, rule, weighted)
			if err != nil {
				// Backend falhou sem sintetizar decisão: degrada para
				// permitido aqui mesmo (fail-open).
				d = domain.Decision{
					Key:       key,
					Rule:      rule,
					Allowed:   true,
					Limit:     rule.Max,
					Remaining: rule.Max,
					ResetAt:   now.Add(rule.Window),
					Window:    rule.Window,
					Weight:    rule.EffectiveWeight(),
					FailOpen:  true,
				}
			}
			decisions[i] = d
		}(i, rule)
	}
	wg.Wait()

	return domain.Combine(decisions)
}

// Test simula a avaliação de uma requisição SEM consumir orçamento:
// custo zero é tratado pelos stores como sonda (conta sem registrar).
// Operação administrativa (testLimit), não exposta no caminho público.
func (e *Engine) Test(ctx context.Context, ri domain.RequestInfo) domain.Aggregate {
	return e.evaluate(ctx, ri, 0)
}
