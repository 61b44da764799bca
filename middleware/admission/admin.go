package admission

import (
	"encoding/json"
	"net/http"

	"admission-gateway/middleware/admission/domain"
)

// Superfície administrativa: getStats, reset por prefixo, resetAll e
// testLimit (simulação sem consumir orçamento).
//
// Montar SOMENTE em listener privado — nunca na cadeia pública.

type testRequest struct {
	Method   string  `json:"method"`
	Path     string  `json:"path"`
	Route    string  `json:"route"`
	ClientIP string  `json:"clientIp"`
	Identity string  `json:"identity"`
	Role     string  `json:"role"`
	Cost     float64 `json:"cost"`
}

type testDecision struct {
	Allowed   bool    `json:"allowed"`
	Scope     string  `json:"scope"`
	Key       string  `json:"key"`
	Limit     int     `json:"limit"`
	Remaining int     `json:"remaining"`
	Reset     int64   `json:"reset"`
	WindowMs  int64   `json:"windowMs"`
	Usage     float64 `json:"currentUsage"`
	FailOpen  bool    `json:"failOpen,omitempty"`
}

type testResponse struct {
	Allowed   bool           `json:"allowed"`
	Skipped   bool           `json:"skipped,omitempty"`
	Decisions []testDecision `json:"decisions"`
}

// AdminHandler expõe as operações administrativas do subsistema.
func AdminHandler(s *Stack) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /admission/stats", func(w http.ResponseWriter, r *http.Request) {
		reader, ok := s.Stats.(domain.StatsReader)
		if !ok {
			http.Error(w, "stats not enabled", http.StatusNotFound)
			return
		}
		snap, err := reader.Snapshot(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, snap)
	})

	mux.HandleFunc("POST /admission/reset", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			http.Error(w, "prefix query parameter is required", http.StatusBadRequest)
			return
		}
		if err := s.Store.Reset(r.Context(), prefix); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /admission/reset-all", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Store.ResetAll(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /admission/test", func(w http.ResponseWriter, r *http.Request) {
		var req testRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		agg := s.Engine.Test(r.Context(), domain.RequestInfo{
			Method:        req.Method,
			Path:          req.Path,
			RouteTemplate: req.Route,
			ClientIP:      req.ClientIP,
			Identity:      req.Identity,
			Role:          req.Role,
			Cost:          req.Cost,
		})

		resp := testResponse{Allowed: agg.Allowed, Skipped: agg.Skipped}
		for _, d := range agg.Decisions {
			resp.Decisions = append(resp.Decisions, testDecision{
				Allowed:   d.Allowed,
				Scope:     string(d.Rule.Scope),
				Key:       string(d.Key),
				Limit:     d.Limit,
				Remaining: d.Remaining,
				Reset:     d.ResetAt.Unix(),
				WindowMs:  d.Window.Milliseconds(),
				Usage:     d.Usage,
				FailOpen:  d.FailOpen,
			})
		}
		writeJSON(w, resp)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
