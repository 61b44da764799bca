package infra

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableClient aponta para uma porta fechada com timeouts curtos:
// toda operação falha rápido, exercitando o caminho de fail-open sem
// precisar de um Redis de verdade.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		ReadTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisStore_FailsOpenWhenUnavailable(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	rdb := unreachableClient()
	defer func() { _ = rdb.Close() }()

	s := NewRedisStore(rdb, WithLogger(logger), WithOpTimeout(100*time.Millisecond))
	rule := domain.Rule{Scope: domain.ScopeGlobal, Window: time.Minute, Max: 5}

	for i := 0; i < 10; i++ {
		d, err := s.CheckAndConsume(context.Background(), "k", rule, 1)
		require.NoError(t, err, "store failure must never surface as an error")
		assert.True(t, d.Allowed, "fail open: every request is admitted")
		assert.Equal(t, rule.Max, d.Remaining)
		assert.True(t, d.FailOpen)
	}

	assert.Contains(t, buf.String(), "failing open", "the degradation must be logged")
}

func TestRedisStore_FailOpenLogIsThrottled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	rdb := unreachableClient()
	defer func() { _ = rdb.Close() }()

	s := NewRedisStore(rdb, WithLogger(logger), WithOpTimeout(100*time.Millisecond))
	rule := domain.Rule{Scope: domain.ScopeGlobal, Window: time.Minute, Max: 5}

	for i := 0; i < 20; i++ {
		_, err := s.CheckAndConsume(context.Background(), "k", rule, 1)
		require.NoError(t, err)
	}

	// 20 falhas seguidas, no máximo 1 aviso dentro do intervalo do throttle.
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("failing open")))
}

func TestParseCheckReply(t *testing.T) {
	allowed, usage, oldest, ok := parseCheckReply([]any{int64(1), "12.5", "1750000000000"})
	require.True(t, ok)
	assert.True(t, allowed)
	assert.Equal(t, 12.5, usage)
	assert.Equal(t, int64(1750000000000), oldest)

	allowed, usage, oldest, ok = parseCheckReply([]any{int64(0), "100", "0"})
	require.True(t, ok)
	assert.False(t, allowed)
	assert.Equal(t, float64(100), usage)
	assert.Equal(t, int64(0), oldest)

	_, _, _, ok = parseCheckReply("garbage")
	assert.False(t, ok)

	_, _, _, ok = parseCheckReply([]any{int64(1), "not-a-number", "0"})
	assert.False(t, ok)
}
