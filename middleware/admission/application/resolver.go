package application

import (
	"context"
	"strings"

	"admission-gateway/middleware/admission/domain"
)

// Resolver produz, em precedência fixa, o conjunto de regras aplicáveis a uma
// requisição: global (salvo desabilitada), endpoint (match exato ou por
// template com segmentos ":id" normalizados), regras de papel SOBRE a regra
// de endpoint (camada, não substituição), burst e regras ad hoc do chamador.
//
// Todas as regras resolvidas são avaliadas; nenhuma faz curto-circuito.
type Resolver struct {
	// Global é a regra de limite global; nil desabilita.
	Global *domain.Rule
	// Endpoints mapeia "METHOD /caminho/:id" → regra específica.
	Endpoints map[string]domain.Rule
	// Roles acrescenta regras por papel autenticado, em cima das demais.
	Roles map[string][]domain.Rule
	// Burst é a proteção de rajada (janela curta, máximo pequeno); nil desliga.
	Burst *domain.Rule
	// Quota é a cota de calendário (dia/mês) por identidade; nil desliga.
	Quota *domain.Rule

	// Geo substitui a regra global pela do país do cliente quando houver.
	// Countries nil, erro de lookup ou país sem regra caem no padrão.
	Geo       map[string]domain.Rule
	Countries domain.CountryResolver
}

// Resolve devolve as regras aplicáveis, mais as extras fornecidas na chamada.
func (r *Resolver) Resolve(ctx context.Context, ri domain.RequestInfo, extra ...domain.Rule) []domain.Rule {
	var rules []domain.Rule

	if g := r.globalFor(ctx, ri); g != nil {
		rules = append(rules, *g)
	}

	if ep, ok := r.matchEndpoint(ri); ok {
		rules = append(rules, ep)
	}

	if ri.Role != "" {
		for _, rr := range r.Roles[ri.Role] {
			rr.Scope = domain.ScopeRole
			rules = append(rules, rr)
		}
	}

	if r.Burst != nil {
		b := *r.Burst
		b.Scope = domain.ScopeBurst
		rules = append(rules, b)
	}

	if r.Quota != nil {
		q := *r.Quota
		rules = append(rules, q)
	}

	for _, ex := range extra {
		if ex.Scope == "" {
			ex.Scope = domain.ScopeCustom
		}
		rules = append(rules, ex)
	}

	return rules
}

// globalFor escolhe entre a regra global padrão e a do país do cliente.
func (r *Resolver) globalFor(ctx context.Context, ri domain.RequestInfo) *domain.Rule {
	if len(r.Geo) > 0 && r.Countries != nil {
		cc, err := r.Countries.Country(ctx, ri.ClientIP)
		if err == nil {
			if rule, ok := r.Geo[strings.ToUpper(cc)]; ok {
				rule.Scope = domain.ScopeGlobal
				rule.Name = strings.ToUpper(cc)
				return &rule
			}
		}
		// Lookup falhou ou país sem regra específica: segue o padrão.
	}
	return r.Global
}

func (r *Resolver) matchEndpoint(ri domain.RequestInfo) (domain.Rule, bool) {
	route := ri.Route()

	// Match exato primeiro (inclui o caso do template registrado igual).
	if rule, ok := r.Endpoints[route]; ok {
		rule.Scope = domain.ScopeEndpoint
		return rule, true
	}

	for pattern, rule := range r.Endpoints {
		if matchTemplate(pattern, route) {
			rule.Scope = domain.ScopeEndpoint
			return rule, true
		}
	}
	return domain.Rule{}, false
}

// matchTemplate compara "METHOD /a/:id/b" com "METHOD /a/123/b" segmento a
// segmento; ":x" e "*" casam com qualquer segmento.
func matchTemplate(pattern, route string) bool {
	ps := strings.Split(pattern, "/")
	rs := strings.Split(route, "/")
	if len(ps) != len(rs) {
		return false
	}
	for i := range ps {
		if ps[i] == "*" || strings.HasPrefix(ps[i], ":") {
			continue
		}
		if ps[i] != rs[i] {
			return false
		}
	}
	return true
}
