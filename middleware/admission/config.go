package admission

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"

	"gopkg.in/yaml.v3"
)

// Configuração declarativa do controle de admissão, carregada UMA vez na
// inicialização. Config inválida é fatal: o processo não deve servir tráfego
// com limites mal definidos.

// Duration decodifica durações YAML no formato "150ms", "1s", "15m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// RuleConfig é um conjunto nomeado {janela, máximo} com peso opcional.
type RuleConfig struct {
	Window Duration `yaml:"window"`
	Max    int      `yaml:"max"`
	Weight float64  `yaml:"weight"`
}

// QuotaConfig é a cota de calendário (dia/mês).
type QuotaConfig struct {
	Period string `yaml:"period"`
	Max    int    `yaml:"max"`
}

// BackpressureConfig é o atraso progressivo pós-admissão.
type BackpressureConfig struct {
	DelayAfter int      `yaml:"delay_after"`
	Delay      Duration `yaml:"delay"`
	MaxDelay   Duration `yaml:"max_delay"`
	Window     Duration `yaml:"window"`
}

// RedisConfig são os parâmetros de conexão do backend distribuído.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SkipConfig são as listas de bypass (avaliadas antes de qualquer store I/O).
type SkipConfig struct {
	Paths []string `yaml:"paths"`
	IPs   []string `yaml:"ips"`
	Roles []string `yaml:"roles"`
}

// StatsConfig configura o sink de estatísticas.
type StatsConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Backend   string   `yaml:"backend"` // "memory" (padrão) ou "redis"
	TrackKeys bool     `yaml:"track_keys"`
	TTL       Duration `yaml:"ttl"`
	Bucket    string   `yaml:"bucket"`
}

// ConcurrencyConfig configura o portão de concorrência.
type ConcurrencyConfig struct {
	Max        int      `yaml:"max"`
	EvictAfter Duration `yaml:"evict_after"`
}

// Config é a superfície de configuração completa do subsistema.
type Config struct {
	Enabled    bool `yaml:"enabled"`
	TrustProxy bool `yaml:"trust_proxy"`

	// Backend seleciona o store de contadores: "local" (nó único,
	// consistência explícita mais fraca) ou "distributed" (Redis).
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`

	// RuleSets nomeia conjuntos {janela, máximo}; "global" é aplicado a tudo.
	RuleSets map[string]RuleConfig `yaml:"rule_sets"`
	// Endpoints mapeia "METHOD /caminho/:id" → nome de rule set.
	Endpoints map[string]string `yaml:"endpoints"`
	// Roles mapeia papel → nomes de rule sets aplicados POR CIMA dos demais.
	Roles map[string][]string `yaml:"roles"`
	// Burst é a proteção de rajada; nil desliga.
	Burst *RuleConfig `yaml:"burst"`
	// Quota é a cota de calendário; nil desliga.
	Quota *QuotaConfig `yaml:"quota"`
	// Geo mapeia código de país → nome de rule set (substitui a global).
	Geo map[string]string `yaml:"geo"`

	Backpressure *BackpressureConfig `yaml:"backpressure"`
	Concurrency  ConcurrencyConfig   `yaml:"concurrency"`
	Skip         SkipConfig          `yaml:"skip"`
	Stats        StatsConfig         `yaml:"stats"`
}

// DefaultConfig devolve os padrões documentados.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Backend: "local",
		RuleSets: map[string]RuleConfig{
			"global": {Window: Duration(15 * time.Minute), Max: 1000},
		},
		Stats: StatsConfig{Backend: "memory", TTL: Duration(24 * time.Hour), Bucket: "minute"},
	}
}

// LoadConfig lê e valida o arquivo YAML, partindo dos padrões.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejeita configuração malformada. Erro aqui deve impedir o processo
// de subir (ConfigurationError é fatal no boot).
func (c Config) Validate() error {
	switch c.Backend {
	case "local", "distributed":
	default:
		return fmt.Errorf("backend must be local or distributed, got %q", c.Backend)
	}
	if c.Backend == "distributed" && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis.addr is required when backend is distributed")
	}

	for name, rs := range c.RuleSets {
		if rs.Window.Std() <= 0 {
			return fmt.Errorf("rule set %q: window must be > 0", name)
		}
		if rs.Max <= 0 {
			return fmt.Errorf("rule set %q: max must be > 0", name)
		}
		if rs.Weight < 0 {
			return fmt.Errorf("rule set %q: weight must be >= 0", name)
		}
	}

	for route, set := range c.Endpoints {
		if _, ok := c.RuleSets[set]; !ok {
			return fmt.Errorf("endpoint %q references unknown rule set %q", route, set)
		}
	}
	for role, sets := range c.Roles {
		for _, set := range sets {
			if _, ok := c.RuleSets[set]; !ok {
				return fmt.Errorf("role %q references unknown rule set %q", role, set)
			}
		}
	}
	for cc, set := range c.Geo {
		if _, ok := c.RuleSets[set]; !ok {
			return fmt.Errorf("geo %q references unknown rule set %q", cc, set)
		}
	}

	if c.Burst != nil && (c.Burst.Window.Std() <= 0 || c.Burst.Max <= 0) {
		return errors.New("burst: window and max must be > 0")
	}
	if c.Quota != nil {
		if p := domain.Period(c.Quota.Period); p != domain.PeriodDay && p != domain.PeriodMonth {
			return fmt.Errorf("quota.period must be day or month, got %q", c.Quota.Period)
		}
		if c.Quota.Max <= 0 {
			return errors.New("quota.max must be > 0")
		}
	}
	if bp := c.Backpressure; bp != nil {
		if bp.DelayAfter <= 0 || bp.Delay.Std() <= 0 {
			return errors.New("backpressure: delay_after and delay must be > 0")
		}
	}
	if c.Concurrency.Max < 0 {
		return errors.New("concurrency.max must be >= 0")
	}
	if c.Stats.Enabled && c.Stats.Backend != "memory" && c.Stats.Backend != "redis" {
		return fmt.Errorf("stats.backend must be memory or redis, got %q", c.Stats.Backend)
	}
	return nil
}

func (c Config) rule(set string, scope domain.Scope) domain.Rule {
	rc := c.RuleSets[set]
	return domain.Rule{
		Scope:  scope,
		Name:   set,
		Window: rc.Window.Std(),
		Max:    rc.Max,
		Weight: rc.Weight,
	}
}
