package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"
)

func main() {
	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy),
	// com backend local e configuração montada em código.
	cfg := admission.DefaultConfig()
	cfg.RuleSets = map[string]admission.RuleConfig{
		"global": {Window: admission.Duration(time.Minute), Max: 60},
		"login":  {Window: admission.Duration(15 * time.Minute), Max: 5},
	}
	cfg.Endpoints = map[string]string{
		"POST /login": "login",
	}
	cfg.Burst = &admission.RuleConfig{Window: admission.Duration(time.Second), Max: 10}
	cfg.Concurrency = admission.ConcurrencyConfig{Max: 50}
	cfg.Skip.Paths = []string{"/health"}
	cfg.Stats.Enabled = true

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stack, err := admission.NewStack(ctx, cfg, admission.StackDeps{})
	if err != nil {
		log.Fatalf("admission error: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := http.Handler(mux)
	h = stack.Gate(h)
	h = stack.Limit(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
