package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := readServerConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	admissionCfg := admission.DefaultConfig()
	if cfg.configPath != "" {
		admissionCfg, err = admission.LoadConfig(cfg.configPath)
		if err != nil {
			log.Fatalf("config error: %v", err)
		}
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error: %v", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps := admission.StackDeps{
		Logger: slog.Default(),
		// Identidade/papel chegam de headers injetados pelo middleware de
		// autenticação a montante; este subsistema não valida credenciais.
		Identity: admission.HeaderIdentity("X-User-Id", "X-User-Role"),
	}

	needsRedis := admissionCfg.Backend == "distributed" ||
		(admissionCfg.Stats.Enabled && admissionCfg.Stats.Backend == "redis")
	if needsRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     admissionCfg.Redis.Addr,
			Password: admissionCfg.Redis.Password,
			DB:       admissionCfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancelPing()
		if err != nil {
			// Redis fora do ar no boot não é fatal: o store degrada para
			// fail-open e loga. Só avisa alto aqui.
			log.Printf("redis ping error (will fail open until reachable): %v", err)
		}
		deps.Redis = rdb
	}

	stack, err := admission.NewStack(ctx, admissionCfg, deps)
	if err != nil {
		log.Fatalf("admission error: %v", err)
	}

	h := http.Handler(proxy)
	h = stack.Gate(h)
	h = stack.Limit(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	var adminSrv *http.Server
	if cfg.adminAddr != "" {
		adminSrv = &http.Server{
			Addr:              cfg.adminAddr,
			Handler:           stack.Admin,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("admin listening on %s", cfg.adminAddr)
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("admin server error: %v", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
		if adminSrv != nil {
			_ = adminSrv.Shutdown(shutdownCtx)
		}
	}()

	log.Printf("gateway listening on %s -> %s", cfg.listenAddr, target)
	log.Printf("admission: enabled=%v backend=%s trustProxy=%v ruleSets=%d",
		admissionCfg.Enabled, admissionCfg.Backend, admissionCfg.TrustProxy, len(admissionCfg.RuleSets))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

type serverConfig struct {
	listenAddr  string
	adminAddr   string
	upstreamURL string
	configPath  string
}

func readServerConfig() (serverConfig, error) {
	cfg := serverConfig{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	// ADMIN_ADDR vazio desliga o listener administrativo.
	cfg.adminAddr = os.Getenv("ADMIN_ADDR")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.configPath = os.Getenv("ADMISSION_CONFIG")

	if cfg.upstreamURL == "" {
		return serverConfig{}, errors.New("UPSTREAM_URL is required")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
