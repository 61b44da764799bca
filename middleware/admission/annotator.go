package admission

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// Tradução de decisões para a superfície HTTP: headers informativos no allow,
// 429 estruturado no deny, 503 na rejeição por concorrência.

type limitBody struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
	WindowMs  int64 `json:"windowMs"`
}

type deniedBody struct {
	Success    bool        `json:"success"`
	Error      string      `json:"error"`
	Message    string      `json:"message"`
	RetryAfter int         `json:"retryAfter"`
	Limits     []limitBody `json:"limits"`
}

type concurrencyBody struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// annotate escreve os headers X-RateLimit-* refletindo a regra mais
// apertada (a mais informativa para o chamador).
func annotate(w http.ResponseWriter, agg domain.Aggregate) {
	if agg.Skipped {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", formatInt(agg.Informative.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(agg.Informative.Remaining))
	h.Set("X-RateLimit-Reset", formatEpoch(agg.Informative.ResetAt))
}

// writeDenied responde 429 com Retry-After (e o legado X-Retry-After),
// corpo JSON quando o cliente aceita, HTML/texto como fallback.
func writeDenied(w http.ResponseWriter, r *http.Request, agg domain.Aggregate, now time.Time) {
	secs := retrySeconds(agg.Violated.RetryAfter(now))
	retryStr := formatInt(secs)

	h := w.Header()
	h.Set("Retry-After", retryStr)
	h.Set("X-Retry-After", retryStr)

	switch {
	case acceptsJSON(r):
		limits := make([]limitBody, 0, len(agg.Decisions))
		for _, d := range agg.Decisions {
			limits = append(limits, limitBody{
				Limit:     d.Limit,
				Remaining: d.Remaining,
				Reset:     d.ResetAt.Unix(),
				WindowMs:  d.Window.Milliseconds(),
			})
		}
		h.Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(deniedBody{
			Success:    false,
			Error:      "RATE_LIMIT_EXCEEDED",
			Message:    "Too many requests, please retry later.",
			RetryAfter: secs,
			Limits:     limits,
		})

	case acceptsHTML(r):
		h.Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("<html><body><h1>429 Too Many Requests</h1><p>Retry after " + retryStr + " seconds.</p></body></html>\n"))

	default:
		h.Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("429 Too Many Requests: retry after " + retryStr + " seconds\n"))
	}
}

// writeConcurrencyRejected responde 503: pressão transitória de capacidade,
// não cota esgotada.
func writeConcurrencyRejected(w http.ResponseWriter, retryAfter time.Duration) {
	secs := retrySeconds(retryAfter)
	retryStr := formatInt(secs)

	h := w.Header()
	h.Set("Retry-After", retryStr)
	h.Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(concurrencyBody{
		Success:    false,
		Error:      "TOO_MANY_CONCURRENT_REQUESTS",
		Message:    "Too many concurrent requests for this client, please retry shortly.",
		RetryAfter: secs,
	})
}

func acceptsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") || strings.Contains(accept, "*/*") || accept == ""
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
