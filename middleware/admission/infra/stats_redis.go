package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore persiste estatísticas de admissão em hashes no Redis,
// com série temporal por minuto opcionalmente expirada por TTL.
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "admission:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implementa domain.StatsStore. Best-effort: o chamador ignora erro.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "limited"
	if ev.Allowed {
		field = "admitted"
	}

	totalKey := s.prefix + ":total"

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)
	pipe.HSet(ctx, totalKey, "last_seen", at.UTC().Unix())

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ev.Method != "" || ev.Path != "" {
		routeKey := s.prefix + ":route"
		routeField := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
		if routeField != "" {
			pipe.HIncrBy(ctx, routeKey, routeField+":"+field, 1)
		}
	}

	if id := strings.TrimSpace(ev.Identity); id != "" {
		idKey := s.prefix + ":identity:" + id
		pipe.HIncrBy(ctx, idKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, idKey, s.ttl)
		}
	}

	if s.trackKeys {
		k := strings.TrimSpace(string(ev.Key))
		if k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot implementa domain.StatsReader a partir dos hashes cumulativos.
func (s *RedisStatsStore) Snapshot(ctx context.Context) (domain.StatsSnapshot, error) {
	snap := domain.StatsSnapshot{}

	total, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return snap, err
	}
	snap.Total = usageFromHash(total)

	routes, err := s.rdb.HGetAll(ctx, s.prefix+":route").Result()
	if err != nil {
		return snap, err
	}
	if len(routes) > 0 {
		snap.ByRoute = make(map[string]domain.Usage)
		for field, v := range routes {
			n, _ := strconv.ParseInt(v, 10, 64)
			route, kind, ok := splitRouteField(field)
			if !ok {
				continue
			}
			u := snap.ByRoute[route]
			u.Requests += n
			if kind == "limited" {
				u.Limited += n
			}
			snap.ByRoute[route] = u
		}
	}
	return snap, nil
}

func usageFromHash(h map[string]string) domain.Usage {
	var u domain.Usage
	admitted, _ := strconv.ParseInt(h["admitted"], 10, 64)
	limited, _ := strconv.ParseInt(h["limited"], 10, 64)
	u.Requests = admitted + limited
	u.Limited = limited
	if ts, err := strconv.ParseInt(h["last_seen"], 10, 64); err == nil {
		u.LastSeen = time.Unix(ts, 0).UTC()
	}
	return u
}

// splitRouteField separa "GET /x:admitted" em rota e tipo de contador.
func splitRouteField(field string) (route, kind string, ok bool) {
	i := strings.LastIndex(field, ":")
	if i < 0 {
		return "", "", false
	}
	kind = field[i+1:]
	if kind != "admitted" && kind != "limited" {
		return "", "", false
	}
	return field[:i], kind, true
}
