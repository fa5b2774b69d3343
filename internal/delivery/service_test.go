package delivery

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agroadvisor/internal/advisory"
	"agroadvisor/internal/logger"
	"agroadvisor/internal/rules"
	"agroadvisor/internal/weather"
	pkgerrors "agroadvisor/pkg/errors"
)

type memoryRepository struct {
	logs map[string]*Log
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{logs: make(map[string]*Log)}
}

func (r *memoryRepository) Create(_ context.Context, log *Log) error {
	stored := *log
	r.logs[log.ID] = &stored
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*Log, error) {
	log, ok := r.logs[id]
	if !ok {
		return nil, nil
	}
	out := *log
	return &out, nil
}

func (r *memoryRepository) Update(_ context.Context, log *Log) error {
	stored := *log
	r.logs[log.ID] = &stored
	return nil
}

func (r *memoryRepository) FindActiveByDedupKey(_ context.Context, dedupKey string) (*Log, error) {
	var newest *Log
	for _, log := range r.logs {
		if log.DedupKey != dedupKey || log.Status == StatusDeduped {
			continue
		}
		if newest == nil || log.CreatedAt.After(newest.CreatedAt) {
			newest = log
		}
	}
	if newest == nil {
		return nil, nil
	}
	out := *newest
	return &out, nil
}

func (r *memoryRepository) ListByFarmer(_ context.Context, farmerID, cursor string, limit int) (*HistoryPage, error) {
	return r.List(nil, ListFilter{FarmerID: farmerID}, cursor, limit)
}

func (r *memoryRepository) List(_ context.Context, filter ListFilter, cursor string, limit int) (*HistoryPage, error) {
	var logs []Log
	for _, log := range r.logs {
		if filter.FarmerID != "" && log.FarmerID != filter.FarmerID {
			continue
		}
		if filter.Status != "" && log.Status != filter.Status {
			continue
		}
		if filter.District != "" && log.District != filter.District {
			continue
		}
		if filter.Signal != "" && log.Signal != filter.Signal {
			continue
		}
		if cursor != "" {
			before, err := time.Parse(time.RFC3339Nano, cursor)
			if err != nil {
				return nil, err
			}
			if !log.CreatedAt.Before(before) {
				continue
			}
		}
		logs = append(logs, *log)
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})

	page := &HistoryPage{}
	if len(logs) > limit {
		logs = logs[:limit]
		page.NextCursor = logs[len(logs)-1].CreatedAt.Format(time.RFC3339Nano)
	}
	page.Logs = logs
	return page, nil
}

func (r *memoryRepository) CountByStatus(_ context.Context) (map[Status]int64, error) {
	counts := make(map[Status]int64)
	for _, log := range r.logs {
		counts[log.Status]++
	}
	return counts, nil
}

func heatWaveContext(farmerID string) *advisory.AdvisoryContext {
	signal := weather.NewSignal(weather.SignalHeatWaveAlert, "temperature above 40C")
	return &advisory.AdvisoryContext{
		FarmerID:      farmerID,
		FarmerName:    "Ravi",
		FarmerPhone:   "+919800000001",
		District:      "Nashik",
		CropType:      "wheat",
		GrowthStage:   advisory.StageFlowering,
		Current:       weather.Data{District: "Nashik", TemperatureC: 43, ObservedAt: time.Now()},
		Signals:       []weather.Signal{signal},
		PrimarySignal: &signal,
		RiskLevel:     advisory.RiskCritical,
	}
}

func heatWaveMatch() rules.Result {
	return rules.Result{
		RuleID:    "rule-1",
		RuleName:  "Heat Wave - Wheat Flowering Critical",
		Priority:  95,
		Triggered: true,
	}
}

func newTestService(repo Repository, now time.Time) *Service {
	return NewService(repo, logger.NopLogger(), WithClock(func() time.Time { return now }))
}

func TestNewLogFromMatch(t *testing.T) {
	now := time.Date(2025, time.July, 10, 14, 30, 0, 0, time.UTC)

	log := NewLogFromMatch(heatWaveContext("farmer-1"), heatWaveMatch(), "WEATHER_ALERT", "SMS", now)

	assert.NotEmpty(t, log.ID)
	assert.Equal(t, StatusCreated, log.Status)
	assert.Equal(t, "HEAT_WAVE_ALERT", log.Signal)
	assert.Equal(t, "EMERGENCY", log.Severity)
	assert.Equal(t, PriorityCritical, log.Priority)
	assert.Equal(t, "SMS", log.Channel)
	assert.Equal(t, "farmer-1:WEATHER_ALERT:HEAT_WAVE_ALERT:2025071014", log.DedupKey)
	assert.Equal(t, "Ravi", log.FarmerName)
	assert.Equal(t, "+919800000001", log.FarmerPhone)
	assert.Equal(t, "FLOWERING", log.GrowthStage)
	assert.Contains(t, log.ContentSnapshot, "crop=wheat")
}

func TestRecordDeduplicatesWithinHourBucket(t *testing.T) {
	now := time.Date(2025, time.July, 10, 14, 0, 0, 0, time.UTC)
	repo := newMemoryRepository()
	service := newTestService(repo, now)

	first := NewLogFromMatch(heatWaveContext("farmer-1"), heatWaveMatch(), "WEATHER_ALERT", "SMS", now)
	deduped, err := service.Record(context.Background(), first)
	require.NoError(t, err)
	assert.False(t, deduped)
	assert.Equal(t, StatusCreated, first.Status)

	second := NewLogFromMatch(heatWaveContext("farmer-1"), heatWaveMatch(), "WEATHER_ALERT", "SMS", now.Add(20*time.Minute))
	deduped, err = service.Record(context.Background(), second)
	require.NoError(t, err)
	assert.True(t, deduped)
	assert.Equal(t, StatusDeduped, second.Status)

	// A different farmer in the same hour is not a duplicate.
	other := NewLogFromMatch(heatWaveContext("farmer-2"), heatWaveMatch(), "WEATHER_ALERT", "SMS", now)
	deduped, err = service.Record(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, deduped)

	// Next hour bucket opens again.
	later := NewLogFromMatch(heatWaveContext("farmer-1"), heatWaveMatch(), "WEATHER_ALERT", "SMS", now.Add(time.Hour))
	deduped, err = service.Record(context.Background(), later)
	require.NoError(t, err)
	assert.False(t, deduped)
}

func TestStatusLifecycle(t *testing.T) {
	now := time.Date(2025, time.July, 10, 14, 0, 0, 0, time.UTC)
	repo := newMemoryRepository()
	service := newTestService(repo, now)

	log := NewLogFromMatch(heatWaveContext("farmer-1"), heatWaveMatch(), "WEATHER_ALERT", "SMS", now)
	_, err := service.Record(context.Background(), log)
	require.NoError(t, err)

	updated, err := service.MarkDispatched(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDispatched, updated.Status)
	require.NotNil(t, updated.DispatchedAt)

	updated, err = service.MarkDelivered(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, updated.Status)

	updated, err = service.MarkOpened(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpened, updated.Status)
	openedAt := *updated.OpenedAt

	// Repeated open is a no-op.
	updated, err = service.MarkOpened(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpened, updated.Status)
	assert.Equal(t, openedAt, *updated.OpenedAt)

	updated, err = service.MarkFeedback(context.Background(), log.ID, "HELPFUL", "saved my crop")
	require.NoError(t, err)
	assert.Equal(t, StatusFeedbackReceived, updated.Status)
	assert.Equal(t, "HELPFUL", updated.Feedback)
	assert.Equal(t, "saved my crop", updated.FeedbackComment)
}

func TestIllegalTransitionIsIgnored(t *testing.T) {
	now := time.Date(2025, time.July, 10, 14, 0, 0, 0, time.UTC)
	repo := newMemoryRepository()
	service := newTestService(repo, now)

	log := NewLogFromMatch(heatWaveContext("farmer-1"), heatWaveMatch(), "WEATHER_ALERT", "SMS", now)
	_, err := service.Record(context.Background(), log)
	require.NoError(t, err)

	// CREATED cannot jump straight to OPENED.
	updated, err := service.MarkOpened(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, updated.Status)
	assert.Nil(t, updated.OpenedAt)
}

func TestMarkDeliveryFailedRecordsReason(t *testing.T) {
	now := time.Date(2025, time.July, 10, 14, 0, 0, 0, time.UTC)
	repo := newMemoryRepository()
	service := newTestService(repo, now)

	log := NewLogFromMatch(heatWaveContext("farmer-1"), heatWaveMatch(), "WEATHER_ALERT", "SMS", now)
	_, err := service.Record(context.Background(), log)
	require.NoError(t, err)

	_, err = service.MarkDispatched(context.Background(), log.ID)
	require.NoError(t, err)

	updated, err := service.MarkDeliveryFailed(context.Background(), log.ID, "gateway timeout")
	require.NoError(t, err)
	assert.Equal(t, StatusDeliveryFailed, updated.Status)
	assert.Equal(t, "gateway timeout", updated.FailureReason)
}

func TestGetLogNotFound(t *testing.T) {
	service := newTestService(newMemoryRepository(), time.Now())

	_, err := service.GetLog(context.Background(), "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestHistoryPagination(t *testing.T) {
	now := time.Date(2025, time.July, 10, 14, 0, 0, 0, time.UTC)
	repo := newMemoryRepository()
	service := newTestService(repo, now)

	for i := 0; i < 5; i++ {
		log := NewLogFromMatch(heatWaveContext("farmer-1"), heatWaveMatch(), "WEATHER_ALERT", "SMS", now.Add(time.Duration(i)*time.Hour))
		_, err := service.Record(context.Background(), log)
		require.NoError(t, err)
	}

	page, err := service.History(context.Background(), "farmer-1", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Logs, 2)
	require.NotEmpty(t, page.NextCursor)
	assert.True(t, page.Logs[0].CreatedAt.After(page.Logs[1].CreatedAt), "newest first")

	seen := len(page.Logs)
	for page.NextCursor != "" {
		page, err = service.History(context.Background(), "farmer-1", page.NextCursor, 2)
		require.NoError(t, err)
		seen += len(page.Logs)
	}
	assert.Equal(t, 5, seen)
}
