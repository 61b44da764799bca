package admission

import (
	"context"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

// RouteFunc devolve o template de rota da requisição (ex: "/jobs/:id").
// Vazio usa o path literal.
type RouteFunc func(r *http.Request) string

// CostFunc devolve o custo da requisição contra o orçamento (padrão 1).
type CostFunc func(r *http.Request) float64

// Options é a configuração fechada do middleware: campos nomeados e tipados,
// sem "options" dinâmicas mescladas em tempo de chamada.
type Options struct {
	Engine       *application.Engine
	Backpressure *application.Backpressure
	Stats        domain.StatsStore

	// Disabled desliga o limiter por completo (bypass de tudo).
	Disabled bool

	// TrustProxy habilita o primeiro salto do X-Forwarded-For como IP real.
	TrustProxy bool

	Identity IdentityFunc
	Route    RouteFunc
	Cost     CostFunc

	// Predicados de bypass, avaliados antes de qualquer I/O de store.
	// Requisição pulada não passa por regra nenhuma nem por estatísticas.
	SkipIPs   *infra.MatchList
	SkipRoles []string
	// SkipPaths pula caminhos por prefixo (ex: /health, /static/).
	SkipPaths []string
}

func (o Options) skip(r *http.Request, ip, role string) bool {
	if o.Disabled {
		return true
	}
	for _, p := range o.SkipPaths {
		if strings.HasPrefix(r.URL.Path, p) {
			return true
		}
	}
	if role != "" {
		for _, sr := range o.SkipRoles {
			if role == sr {
				return true
			}
		}
	}
	return o.SkipIPs.Matches(ip)
}

// Middleware monta a cadeia de admissão sobre next.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity, role string
			if opts.Identity != nil {
				identity, role = opts.Identity(r)
			}
			ip := ClientIP(r, opts.TrustProxy)

			if opts.skip(r, ip, role) || opts.Engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			ri := domain.RequestInfo{
				Method:   r.Method,
				Path:     r.URL.Path,
				ClientIP: ip,
				Identity: identity,
				Role:     role,
			}
			if opts.Route != nil {
				ri.RouteTemplate = opts.Route(r)
			}
			if opts.Cost != nil {
				ri.Cost = opts.Cost(r)
			}

			now := time.Now()
			agg := opts.Engine.Evaluate(r.Context(), ri)

			annotate(w, agg)
			recordStats(opts.Stats, ri, agg)

			if !agg.Allowed {
				writeDenied(w, r, agg, now)
				return
			}

			if opts.Backpressure != nil {
				key := domain.Key(ri.Subject() + "|" + ri.Route())
				if _, err := opts.Backpressure.MaybeDelay(r.Context(), key); err != nil {
					// Cliente desconectou durante a espera: nada a responder.
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// recordStats grava o evento fora do caminho de resposta (best-effort).
func recordStats(stats domain.StatsStore, ri domain.RequestInfo, agg domain.Aggregate) {
	if stats == nil || agg.Skipped {
		return
	}

	ev := domain.StatsEvent{
		Allowed:  agg.Allowed,
		Identity: ri.Identity,
		Method:   ri.Method,
		Path:     ri.Path,
		At:       time.Now(),
	}
	if agg.Violated != nil {
		ev.Key = agg.Violated.Key
	} else {
		ev.Key = agg.Informative.Key
	}

	go func() {
		// Contexto próprio: a gravação não pode herdar o cancelamento da
		// resposta nem, muito menos, atrasá-la.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = stats.Record(ctx, ev)
	}()
}
