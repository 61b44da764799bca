package admission

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/redis/go-redis/v9"
)

// Stack é o subsistema montado a partir da Config: os dois middlewares, a
// superfície administrativa e os colaboradores que o chamador pode precisar.
type Stack struct {
	// Limit é o middleware de rate limit + backpressure.
	Limit func(next http.Handler) http.Handler
	// Gate é o middleware de concorrência (identidade antes de IP).
	Gate func(next http.Handler) http.Handler
	// Admin expõe getStats/reset/resetAll/testLimit; montar apenas em
	// listener privado, nunca no caminho público.
	Admin http.Handler

	Engine *application.Engine
	Store  domain.CounterStore
	Stats  domain.StatsStore
}

// StackDeps são colaboradores externos injetados na montagem.
type StackDeps struct {
	// Redis é obrigatório quando backend=distributed ou stats.backend=redis.
	Redis *redis.Client
	// Countries resolve país por IP para as regras geo (opcional).
	Countries domain.CountryResolver
	// Identity extrai identidade/papel autenticados (opcional).
	Identity IdentityFunc
	// Route devolve o template da rota (opcional).
	Route RouteFunc
	// Cost devolve o custo da requisição (opcional, padrão 1).
	Cost CostFunc
	// Logger para avisos de fail-open (opcional, padrão slog.Default).
	Logger *slog.Logger
}

// NewStack monta o subsistema inteiro a partir da configuração validada.
// Os janitors (stores, tickets, stats) rodam até o ctx encerrar.
func NewStack(ctx context.Context, cfg Config, deps StackDeps) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store domain.CounterStore
	switch cfg.Backend {
	case "distributed":
		if deps.Redis == nil {
			return nil, fmt.Errorf("backend %q requires a redis client", cfg.Backend)
		}
		opts := []infra.RedisStoreOption{}
		if deps.Logger != nil {
			opts = append(opts, infra.WithLogger(deps.Logger))
		}
		store = infra.NewRedisStore(deps.Redis, opts...)
	default:
		local := infra.NewLocalStore()
		local.StartJanitor(ctx)
		store = local
	}

	resolver := &application.Resolver{
		Endpoints: make(map[string]domain.Rule, len(cfg.Endpoints)),
		Roles:     make(map[string][]domain.Rule, len(cfg.Roles)),
		Countries: deps.Countries,
	}
	if _, ok := cfg.RuleSets["global"]; ok {
		g := cfg.rule("global", domain.ScopeGlobal)
		resolver.Global = &g
	}
	for route, set := range cfg.Endpoints {
		resolver.Endpoints[route] = cfg.rule(set, domain.ScopeEndpoint)
	}
	for role, sets := range cfg.Roles {
		for _, set := range sets {
			resolver.Roles[role] = append(resolver.Roles[role], cfg.rule(set, domain.ScopeRole))
		}
	}
	if cfg.Burst != nil {
		resolver.Burst = &domain.Rule{
			Scope:  domain.ScopeBurst,
			Name:   "burst",
			Window: cfg.Burst.Window.Std(),
			Max:    cfg.Burst.Max,
			Weight: cfg.Burst.Weight,
		}
	}
	if cfg.Quota != nil {
		resolver.Quota = &domain.Rule{
			Scope:  domain.ScopeCustom,
			Name:   "quota",
			Period: domain.Period(cfg.Quota.Period),
			Max:    cfg.Quota.Max,
		}
	}
	if len(cfg.Geo) > 0 {
		resolver.Geo = make(map[string]domain.Rule, len(cfg.Geo))
		for cc, set := range cfg.Geo {
			resolver.Geo[cc] = cfg.rule(set, domain.ScopeGlobal)
		}
	}

	engine := &application.Engine{Store: store, Resolver: resolver}

	var stats domain.StatsStore
	if cfg.Stats.Enabled {
		switch cfg.Stats.Backend {
		case "redis":
			if deps.Redis == nil {
				return nil, fmt.Errorf("stats backend %q requires a redis client", cfg.Stats.Backend)
			}
			stats = infra.NewRedisStatsStore(deps.Redis,
				infra.WithStatsTTL(cfg.Stats.TTL.Std()),
				infra.WithStatsBucket(cfg.Stats.Bucket),
				infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
			)
		default:
			mem := infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys))
			mem.StartJanitor(ctx, time.Hour)
			stats = mem
		}
	}

	var bp *application.Backpressure
	if cfg.Backpressure != nil {
		window := cfg.Backpressure.Window.Std()
		if window <= 0 {
			window = time.Minute
		}
		counter := infra.NewSlidingCounter(window)
		counter.StartJanitor(ctx, 2*window)
		bp = &application.Backpressure{
			Window:     counter,
			DelayAfter: cfg.Backpressure.DelayAfter,
			Delay:      cfg.Backpressure.Delay.Std(),
			MaxDelay:   cfg.Backpressure.MaxDelay.Std(),
		}
	}

	var skipIPs *infra.MatchList
	if len(cfg.Skip.IPs) > 0 {
		var err error
		skipIPs, err = infra.NewMatchList(cfg.Skip.IPs)
		if err != nil {
			return nil, err
		}
	}

	limit := Middleware(Options{
		Engine:       engine,
		Backpressure: bp,
		Stats:        stats,
		Disabled:     !cfg.Enabled,
		TrustProxy:   cfg.TrustProxy,
		Identity:     deps.Identity,
		Route:        deps.Route,
		Cost:         deps.Cost,
		SkipIPs:      skipIPs,
		SkipRoles:    cfg.Skip.Roles,
		SkipPaths:    cfg.Skip.Paths,
	})

	gate := func(next http.Handler) http.Handler { return next }
	if cfg.Concurrency.Max > 0 {
		ticketOpts := []infra.TicketTableOption{}
		if cfg.Concurrency.EvictAfter.Std() > 0 {
			ticketOpts = append(ticketOpts, infra.WithEvictAfter(cfg.Concurrency.EvictAfter.Std()))
		}
		pool := infra.NewTicketTable(ticketOpts...)
		pool.StartJanitor(ctx)
		gate = ConcurrencyMiddleware(ConcurrencyOptions{
			Max:        cfg.Concurrency.Max,
			TrustProxy: cfg.TrustProxy,
			Identity:   deps.Identity,
			Pool:       pool,
		})
	}

	s := &Stack{
		Limit:  limit,
		Gate:   gate,
		Engine: engine,
		Store:  store,
		Stats:  stats,
	}
	s.Admin = AdminHandler(s)
	return s, nil
}
