package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agroadvisor/internal/weather"
)

func testSnapshot(district string) weather.Snapshot {
	observed := time.Now().UTC().Truncate(time.Second)
	return weather.Snapshot{
		District: district,
		Current: weather.Data{
			District:     district,
			TemperatureC: 43.5,
			HumidityPct:  30,
			WindSpeedKmh: 12,
			ObservedAt:   observed,
		},
		Signals:   []weather.Signal{weather.NewSignal(weather.SignalHeatWaveAlert, "Extreme heat expected")},
		FetchedAt: observed,
		Source:    "imd",
	}
}

func TestSnapshotStore_MirrorSurvivesRestart(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	ttl := time.Minute

	store := weather.NewSnapshotStore(infra.RedisClient, ttl, createTestLogger())
	store.Put(ctx, testSnapshot("Pune"))

	// A fresh store has an empty in-memory map and must fall back to redis.
	restarted := weather.NewSnapshotStore(infra.RedisClient, ttl, createTestLogger())
	snapshot, ok := restarted.Get(ctx, "Pune")
	require.True(t, ok)
	assert.Equal(t, "Pune", snapshot.District)
	assert.InDelta(t, 43.5, snapshot.Current.TemperatureC, 0.001)
	require.Len(t, snapshot.Signals, 1)
	assert.Equal(t, weather.SignalHeatWaveAlert, snapshot.Signals[0].Kind)
}

func TestSnapshotStore_MissReturnsFalse(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	store := weather.NewSnapshotStore(infra.RedisClient, time.Minute, createTestLogger())
	_, ok := store.Get(context.Background(), "Nashik")
	assert.False(t, ok)
}

func TestSnapshotStore_MirrorExpires(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()

	store := weather.NewSnapshotStore(infra.RedisClient, time.Second, createTestLogger())
	store.Put(ctx, testSnapshot("Pune"))

	time.Sleep(1500 * time.Millisecond)

	restarted := weather.NewSnapshotStore(infra.RedisClient, time.Second, createTestLogger())
	_, ok := restarted.Get(ctx, "Pune")
	assert.False(t, ok)
}
