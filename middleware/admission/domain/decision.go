package domain

import "time"

// Decision é o resultado atômico da avaliação de UMA regra.
type Decision struct {
	Key     Key
	Rule    Rule
	Allowed bool

	Limit     int
	Remaining int
	// ResetAt indica quando a entrada mais antiga sai da janela (ou a virada
	// do período, para cotas).
	ResetAt time.Time
	Window  time.Duration
	// Usage é a soma de custos atualmente dentro da janela.
	Usage  float64
	Weight float64

	// FailOpen marca decisões sintetizadas quando o backend falhou.
	FailOpen bool
}

// RetryAfter devolve quanto tempo o cliente deve esperar antes de repetir.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// MoreRestrictive compara duas decisões e diz se d deve prevalecer sobre o.
// Entre violadas, vence a de maior prioridade de escopo; empate decide pelo
// menor remaining e depois pelo reset mais distante.
func (d Decision) MoreRestrictive(o Decision) bool {
	if p, q := d.Rule.Scope.Priority(), o.Rule.Scope.Priority(); p != q {
		return p > q
	}
	if d.Remaining != o.Remaining {
		return d.Remaining < o.Remaining
	}
	return d.ResetAt.After(o.ResetAt)
}

// Aggregate é a conjunção das decisões de todas as regras aplicáveis.
//
// Se qualquer regra nega, o agregado nega e Violated aponta para a regra
// mais restritiva violada. Se todas permitem, Informative reflete a regra
// com menor remaining (a mais próxima do esgotamento).
type Aggregate struct {
	Allowed   bool
	Decisions []Decision
	Violated  *Decision
	// Informative é a decisão usada para os headers informativos no allow.
	Informative Decision
	// Skipped indica que nenhum predicado de limite se aplicou (bypass).
	Skipped bool
}

// Combine reduz decisões individuais em um agregado.
func Combine(decisions []Decision) Aggregate {
	agg := Aggregate{Allowed: true, Decisions: decisions}
	if len(decisions) == 0 {
		agg.Skipped = true
		return agg
	}

	haveInfo := false
	for i := range decisions {
		d := decisions[i]
		if !d.Allowed {
			agg.Allowed = false
			if agg.Violated == nil || d.MoreRestrictive(*agg.Violated) {
				v := d
				agg.Violated = &v
			}
			continue
		}
		if !haveInfo || d.Remaining < agg.Informative.Remaining {
			agg.Informative = d
			haveInfo = true
		}
	}

	if !agg.Allowed {
		// Headers de um deny refletem a regra violada.
		agg.Informative = *agg.Violated
	}
	return agg
}
