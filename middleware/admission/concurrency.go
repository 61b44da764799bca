package admission

import (
	"net/http"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

// ConcurrencyOptions configura o portão de concorrência por chave.
type ConcurrencyOptions struct {
	// Max é o teto de requisições simultâneas em voo por chave; <=0 desliga.
	Max int

	// TrustProxy habilita o primeiro salto do X-Forwarded-For como chave.
	TrustProxy bool
	Identity   IdentityFunc

	// RetryAfter sugerido na rejeição 503 (padrão 1s).
	RetryAfter time.Duration

	// Pool permite injetar a tabela de tickets (padrão: tabela em memória
	// com evicção de 30s). O chamador é responsável por StartJanitor.
	Pool domain.TicketPool
}

// ConcurrencyMiddleware limita requisições simultaneamente em voo por chave.
// Estouro responde 503 imediatamente, sem fila: pressão transitória de
// capacidade, distinta de cota esgotada (429).
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 1 * time.Second
	}

	pool := opts.Pool
	if pool == nil {
		pool = infra.NewTicketTable()
	}
	svc := application.ConcurrencyService{Pool: pool, Max: opts.Max}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(ClientIP(r, opts.TrustProxy))
			if opts.Identity != nil {
				if id, _ := opts.Identity(r); id != "" {
					key = domain.Key(id)
				}
			}

			release, ok := svc.Acquire(key)
			if !ok {
				writeConcurrencyRejected(w, opts.RetryAfter)
				return
			}
			// O defer cobre o caminho normal e o cancelamento; a varredura
			// de timeout da tabela é o backstop para handlers que escapam.
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
