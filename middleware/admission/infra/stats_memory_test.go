package infra

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_RecordAndSnapshot(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.StatsEvent{
		Key: "k1", Allowed: true, Identity: "u1", Method: "GET", Path: "/jobs",
	}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{
		Key: "k1", Allowed: false, Identity: "u1", Method: "GET", Path: "/jobs",
	}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{
		Key: "k2", Allowed: true, Method: "POST", Path: "/login",
	}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), snap.Total.Requests)
	assert.Equal(t, int64(1), snap.Total.Limited)

	jobs := snap.ByRoute["GET /jobs"]
	assert.Equal(t, int64(2), jobs.Requests)
	assert.Equal(t, int64(1), jobs.Limited)

	u1 := snap.ByIdentity["u1"]
	assert.Equal(t, int64(2), u1.Requests)

	assert.Contains(t, snap.ByKey, "k1")
	assert.Contains(t, snap.ByKey, "k2")
}

func TestMemoryStatsStore_PruneDropsIdleSeries(t *testing.T) {
	s := NewMemoryStatsStore(WithPruneAfter(time.Minute))
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Method: "GET", Path: "/old", At: old}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Method: "GET", Path: "/fresh", At: time.Now()}))

	s.Prune()

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotContains(t, snap.ByRoute, "GET /old")
	assert.Contains(t, snap.ByRoute, "GET /fresh")

	// Total é cumulativo, poda não mexe.
	assert.Equal(t, int64(2), snap.Total.Requests)
}
