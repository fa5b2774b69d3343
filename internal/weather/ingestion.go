package weather

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"agroadvisor/internal/logger"
	"agroadvisor/pkg/metrics"
)

const pollConcurrency = 4

// Ingestor polls the provider chain for every configured district,
// detects signals and refreshes the snapshot store. A district whose
// fetch fails keeps its last-known-good snapshot, flagged stale; a
// district with neither fresh data nor cache is skipped until the
// next poll.
type Ingestor struct {
	chain     *Chain
	store     *SnapshotStore
	detector  *Detector
	districts []string
	logger    logger.Logger

	mu       sync.RWMutex
	lastPoll time.Time
}

func NewIngestor(chain *Chain, store *SnapshotStore, detector *Detector, districts []string, log logger.Logger) *Ingestor {
	return &Ingestor{
		chain:     chain,
		store:     store,
		detector:  detector,
		districts: districts,
		logger:    log,
	}
}

// PollAll refreshes every district concurrently. Individual district
// failures are logged and absorbed; the poll always runs to the end.
func (i *Ingestor) PollAll(ctx context.Context) {
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)

	for _, district := range i.districts {
		district := district
		g.Go(func() error {
			i.pollDistrict(gctx, district)
			return nil
		})
	}
	_ = g.Wait()

	i.mu.Lock()
	i.lastPoll = time.Now()
	i.mu.Unlock()

	metrics.SetCachedDistricts(i.store.Len())
	i.logger.InfowCtx(ctx, "Weather poll completed",
		"districts", len(i.districts),
		"cached", i.store.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (i *Ingestor) pollDistrict(ctx context.Context, district string) {
	snapshot, err := i.chain.Fetch(ctx, district)
	if err != nil {
		metrics.WeatherPollsTotal.WithLabelValues("failed").Inc()

		if cached, ok := i.store.Get(ctx, district); ok {
			cached.Stale = true
			i.store.Put(ctx, cached)
			i.logger.WarnwCtx(ctx, "Using stale weather snapshot",
				"district", district,
				"fetched_at", cached.FetchedAt,
				"error", err,
			)
			return
		}

		i.logger.ErrorwCtx(ctx, "No weather data available for district",
			"district", district,
			"error", err,
		)
		return
	}

	snapshot.Signals = i.detector.DetectSignals(snapshot.Current)
	i.store.Put(ctx, *snapshot)
	metrics.WeatherPollsTotal.WithLabelValues("ok").Inc()
}

// CurrentSnapshot returns the freshest snapshot held for a district.
func (i *Ingestor) CurrentSnapshot(ctx context.Context, district string) (Snapshot, bool) {
	return i.store.Get(ctx, district)
}

// SignalsByDistrict returns the detected signals of every cached
// district, stale snapshots included.
func (i *Ingestor) SignalsByDistrict() map[string][]Signal {
	all := i.store.All()
	out := make(map[string][]Signal, len(all))
	for district, snapshot := range all {
		out[district] = snapshot.Signals
	}
	return out
}

func (i *Ingestor) ProviderAvailability() map[string]bool {
	return i.chain.Availability()
}

func (i *Ingestor) LastPoll() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastPoll
}
