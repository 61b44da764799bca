package domain

// Camada de domínio do controle de admissão.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"strconv"
	"time"
)

// Key identifica "quem/o quê" está sendo limitado (ex: IP, usuário, rota).
// Duas regras distintas nunca compartilham contador: a chave embute as
// dimensões da regra (janela/máximo) além das dimensões de identidade e rota.
type Key string

// Scope indica a origem/precedência de uma regra.
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeEndpoint Scope = "endpoint"
	ScopeRole     Scope = "role"
	ScopeBurst    Scope = "burst"
	ScopeCustom   Scope = "custom"
)

// Priority ordena escopos quando mais de uma regra é violada ao mesmo tempo:
// burst > role > endpoint > custom > global.
func (s Scope) Priority() int {
	switch s {
	case ScopeBurst:
		return 4
	case ScopeRole:
		return 3
	case ScopeEndpoint:
		return 2
	case ScopeCustom:
		return 1
	default:
		return 0
	}
}

// Period define janelas alinhadas ao calendário (cotas).
// Vazio significa janela deslizante normal.
type Period string

const (
	PeriodNone  Period = ""
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Label retorna o rótulo do período corrente (UTC), usado na chave para que
// o uso zere exatamente na virada do período.
func (p Period) Label(now time.Time) string {
	switch p {
	case PeriodDay:
		return now.UTC().Format("2006-01-02")
	case PeriodMonth:
		return now.UTC().Format("2006-01")
	default:
		return ""
	}
}

// Start retorna o início do período corrente (UTC).
func (p Period) Start(now time.Time) time.Time {
	u := now.UTC()
	switch p {
	case PeriodDay:
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodMonth:
		return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return now
	}
}

// Next retorna o início do próximo período (quando a cota reseta).
func (p Period) Next(now time.Time) time.Time {
	start := p.Start(now)
	switch p {
	case PeriodDay:
		return start.AddDate(0, 0, 1)
	case PeriodMonth:
		return start.AddDate(0, 1, 0)
	default:
		return now
	}
}

// Rule é uma regra de limite imutável, carregada na inicialização.
//
// Weight pondera o custo relativo da regra (padrão 1). Period transforma a
// janela deslizante em cota de calendário (dia/mês).
type Rule struct {
	Scope  Scope
	Name   string
	Window time.Duration
	Max    int
	Weight float64
	Period Period
}

// EffectiveWeight devolve Weight com o padrão 1 aplicado.
func (r Rule) EffectiveWeight() float64 {
	if r.Weight <= 0 {
		return 1
	}
	return r.Weight
}

// Dimension devolve a dimensão "janela/máximo" da regra, componente da chave.
func (r Rule) Dimension() string {
	return string(r.Scope) + ":" + strconv.FormatInt(r.Window.Milliseconds(), 10) + "/" + strconv.Itoa(r.Max)
}

// RequestInfo é o contexto mínimo de uma requisição, fornecido pelo
// colaborador de roteamento. Método/rota são strings genéricas (web, gRPC...).
type RequestInfo struct {
	Method        string
	Path          string
	RouteTemplate string
	ClientIP      string
	Identity      string
	Role          string

	// Cost é o custo desta requisição contra o orçamento (padrão 1).
	Cost float64
}

// EffectiveCost devolve Cost com o padrão 1 aplicado.
func (ri RequestInfo) EffectiveCost() float64 {
	if ri.Cost <= 0 {
		return 1
	}
	return ri.Cost
}

// Route devolve a dimensão de rota da chave: template se houver, senão path.
func (ri RequestInfo) Route() string {
	if ri.RouteTemplate != "" {
		return ri.Method + " " + ri.RouteTemplate
	}
	return ri.Method + " " + ri.Path
}

// Subject devolve a dimensão de identidade da chave: IP sempre, mais o id
// autenticado quando presente.
func (ri RequestInfo) Subject() string {
	if ri.Identity != "" {
		return ri.ClientIP + "|" + ri.Identity
	}
	return ri.ClientIP
}

// KeyFunc deriva a chave composta de uma requisição + regra.
// Deve ser uma função pura: sem efeitos colaterais, sem I/O.
type KeyFunc func(ri RequestInfo, rule Rule, now time.Time) Key

// BuildKey é a estratégia padrão: identidade | rota | dimensão da regra,
// mais o rótulo do período para cotas de calendário.
func BuildKey(ri RequestInfo, rule Rule, now time.Time) Key {
	k := ri.Subject() + "|" + ri.Route() + "|" + rule.Dimension()
	if label := rule.Period.Label(now); label != "" {
		k += "|" + label
	}
	return Key(k)
}
