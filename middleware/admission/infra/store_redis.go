package infra

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// checkScript faz expurgo-soma-inserção condicional em uma única transação no
// servidor, sobre um sorted set por chave (score = timestamp em ms, membro
// carrega o custo como sufixo). É o único caminho de mutação permitido:
// nenhum chamador lê-e-escreve fora deste script.
var checkScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])
local member = ARGV[6]

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

local usage = 0
local entries = redis.call('ZRANGE', key, 0, -1)
for _, m in ipairs(entries) do
  usage = usage + (tonumber(string.match(m, ':([%d%.]+)$')) or 1)
end

-- custo zero é sonda: responde se há vaga, sem registrar
local allowed = 0
if cost > 0 then
  if usage + cost <= max then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, ttl_ms)
    allowed = 1
    usage = usage + cost
  end
elseif usage < max then
  allowed = 1
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_score = 0
if oldest[2] then
  oldest_score = tonumber(oldest[2])
end

return {allowed, tostring(usage), tostring(oldest_score)}
`)

// RedisStore é o backend distribuído do sliding window log: contadores
// compartilhados entre todas as instâncias do processo.
//
// Política de falha: se o Redis estiver inacessível ou estourar o timeout,
// a decisão degrada para "permitido" (fail-open) com remaining = max.
// Disponibilidade da plataforma vale mais que aplicação estrita do limite;
// a falha é logada em Warn (com throttle para não inundar o log durante
// uma indisponibilidade prolongada).
type RedisStore struct {
	rdb    redis.Scripter
	prefix string

	// opTimeout limita cada chamada ao Redis; nunca bloqueia o pipeline
	// de requisições indefinidamente.
	opTimeout time.Duration

	logger  *slog.Logger
	logRate *rate.Limiter

	now func() time.Time
}

// scripterKeys é o que Reset/ResetAll precisam além de Scripter.
type scripterKeys interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisStoreOption func(*RedisStore)

func WithPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithOpTimeout(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.opTimeout = d }
}

func WithLogger(l *slog.Logger) RedisStoreOption {
	return func(s *RedisStore) { s.logger = l }
}

func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) { s.now = now }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:       rdb,
		prefix:    "admission:window",
		opTimeout: 250 * time.Millisecond,
		logger:    slog.Default(),
		// Um aviso a cada 10s é suficiente para alertar sem virar ruído.
		logRate: rate.NewLimiter(rate.Every(10*time.Second), 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) redisKey(key domain.Key) string {
	return s.prefix + ":" + string(key)
}

// CheckAndConsume implementa domain.CounterStore.
func (s *RedisStore) CheckAndConsume(ctx context.Context, key domain.Key, rule domain.Rule, cost float64) (domain.Decision, error) {
	now := s.now()
	start := windowStart(rule, now)

	ttl := rule.Window
	if rule.Period != domain.PeriodNone {
		ttl = rule.Period.Next(now).Sub(now)
	}

	member := uuid.NewString() + ":" + strconv.FormatFloat(cost, 'f', -1, 64)

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	res, err := checkScript.Run(opCtx, s.rdb,
		[]string{s.redisKey(key)},
		start.UnixMilli(),
		now.UnixMilli(),
		rule.Max,
		cost,
		ttl.Milliseconds(),
		member,
	).Result()
	if err != nil {
		return s.failOpen(key, rule, now, err), nil
	}

	allowed, usage, oldestMs, ok := parseCheckReply(res)
	if !ok {
		return s.failOpen(key, rule, now, errUnexpectedReply), nil
	}

	var oldest time.Time
	if oldestMs > 0 {
		oldest = time.UnixMilli(oldestMs)
	}
	return decisionFor(key, rule, now, allowed, usage, oldest), nil
}

// failOpen sintetiza uma decisão permitida quando o backend falhou.
// Trade-off deliberado de disponibilidade, não um bug silencioso: loga Warn.
func (s *RedisStore) failOpen(key domain.Key, rule domain.Rule, now time.Time, err error) domain.Decision {
	if s.logRate.Allow() {
		s.logger.Warn("counter store unavailable, failing open",
			slog.String("key", string(key)),
			slog.String("scope", string(rule.Scope)),
			slog.Any("error", err))
	}

	d := decisionFor(key, rule, now, true, 0, time.Time{})
	d.Remaining = rule.Max
	d.FailOpen = true
	return d
}

// Reset remove contadores por prefixo via SCAN+DEL (administrativo).
func (s *RedisStore) Reset(ctx context.Context, prefix string) error {
	kr, ok := s.rdb.(scripterKeys)
	if !ok {
		return nil
	}

	match := s.prefix + ":" + prefix + "*"
	var cursor uint64
	for {
		keys, next, err := kr.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := kr.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *RedisStore) ResetAll(ctx context.Context) error {
	return s.Reset(ctx, "")
}

var errUnexpectedReply = redisReplyError("unexpected script reply")

type redisReplyError string

func (e redisReplyError) Error() string { return string(e) }

// parseCheckReply decodifica {allowed, usage, oldest_score} vindos do script.
// usage e oldest voltam como string porque números Lua são truncados para
// inteiro na resposta do Redis.
func parseCheckReply(res any) (allowed bool, usage float64, oldestMs int64, ok bool) {
	arr, isArr := res.([]any)
	if !isArr || len(arr) != 3 {
		return false, 0, 0, false
	}

	flag, isInt := arr[0].(int64)
	if !isInt {
		return false, 0, 0, false
	}

	usageStr, isStr := arr[1].(string)
	if !isStr {
		return false, 0, 0, false
	}
	u, err := strconv.ParseFloat(usageStr, 64)
	if err != nil {
		return false, 0, 0, false
	}

	oldestStr, isStr := arr[2].(string)
	if !isStr {
		return false, 0, 0, false
	}
	o, err := strconv.ParseFloat(oldestStr, 64)
	if err != nil {
		return false, 0, 0, false
	}

	return flag == 1, u, int64(o), true
}
