package weather

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"agroadvisor/internal/constants"
	"agroadvisor/internal/logger"
)

// SnapshotStore holds the last-known-good snapshot per district.
// The in-process map is the hot path; an optional redis mirror lets a
// restarted process recover cached snapshots instead of starting cold.
// Reads never block on the mirror.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot

	mirror *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewSnapshotStore(mirror *redis.Client, ttl time.Duration, log logger.Logger) *SnapshotStore {
	if ttl <= 0 {
		ttl = constants.DefaultSnapshotTTLSeconds * time.Second
	}
	return &SnapshotStore{
		snapshots: make(map[string]Snapshot),
		mirror:    mirror,
		ttl:       ttl,
		logger:    log,
	}
}

func (s *SnapshotStore) Put(ctx context.Context, snapshot Snapshot) {
	s.mu.Lock()
	s.snapshots[snapshot.District] = snapshot
	s.mu.Unlock()

	if s.mirror == nil {
		return
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Failed to marshal snapshot for mirror", "district", snapshot.District, "error", err)
		return
	}

	key := constants.CacheKeyPrefixWeather + snapshot.District
	if err := s.mirror.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to mirror snapshot", "district", snapshot.District, "error", err)
	}
}

// Get returns the last-known-good snapshot for a district. On an
// in-process miss it falls back to the redis mirror.
func (s *SnapshotStore) Get(ctx context.Context, district string) (Snapshot, bool) {
	s.mu.RLock()
	snapshot, ok := s.snapshots[district]
	s.mu.RUnlock()
	if ok {
		return snapshot, true
	}

	if s.mirror == nil {
		return Snapshot{}, false
	}

	key := constants.CacheKeyPrefixWeather + district
	payload, err := s.mirror.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Snapshot{}, false
	}
	if err != nil {
		s.logger.WarnwCtx(ctx, "Snapshot mirror read failed", "district", district, "error", err)
		return Snapshot{}, false
	}

	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.WarnwCtx(ctx, "Mirrored snapshot is corrupt", "district", district, "error", err)
		return Snapshot{}, false
	}

	s.mu.Lock()
	s.snapshots[district] = snapshot
	s.mu.Unlock()

	return snapshot, true
}

// All returns a copy of every cached snapshot keyed by district.
func (s *SnapshotStore) All() map[string]Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Snapshot, len(s.snapshots))
	for district, snapshot := range s.snapshots {
		out[district] = snapshot
	}
	return out
}

func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
