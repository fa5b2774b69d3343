package orchestrator

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agroadvisor/internal/advisory"
	"agroadvisor/internal/delivery"
	"agroadvisor/internal/logger"
	"agroadvisor/internal/notification"
	"agroadvisor/internal/rules"
	"agroadvisor/internal/weather"
	pkgerrors "agroadvisor/pkg/errors"
)

type stubSignals struct {
	byDistrict   map[string][]weather.Signal
	availability map[string]bool
	lastPoll     time.Time
}

func (s *stubSignals) SignalsByDistrict() map[string][]weather.Signal { return s.byDistrict }
func (s *stubSignals) ProviderAvailability() map[string]bool          { return s.availability }
func (s *stubSignals) LastPoll() time.Time                            { return s.lastPoll }

type stubContexts struct {
	byDistrict map[string][]advisory.AdvisoryContext
	byFarmer   map[string]*advisory.AdvisoryContext
}

func (s *stubContexts) BuildForDistrict(_ context.Context, district string) ([]advisory.AdvisoryContext, error) {
	return s.byDistrict[district], nil
}

func (s *stubContexts) BuildForFarmer(_ context.Context, farmerID string) (*advisory.AdvisoryContext, error) {
	built, ok := s.byFarmer[farmerID]
	if !ok {
		return nil, nil
	}
	out := *built
	return &out, nil
}

type stubRules struct {
	results     []rules.Result
	panicOn     string
	evaluations int
}

func (s *stubRules) ExecuteRules(_ context.Context, src rules.FieldSource) ([]rules.Result, error) {
	s.evaluations++
	if s.panicOn != "" {
		if id, ok := src.Field("farmer_id"); ok && id.AsString() == s.panicOn {
			panic("corrupt rule definition")
		}
	}
	return s.results, nil
}

type capturingSender struct {
	messages []notification.Message
}

func (s *capturingSender) Send(_ context.Context, msg notification.Message) error {
	s.messages = append(s.messages, msg)
	return nil
}

type memoryDeliveryRepo struct {
	logs map[string]*delivery.Log
}

func newMemoryDeliveryRepo() *memoryDeliveryRepo {
	return &memoryDeliveryRepo{logs: make(map[string]*delivery.Log)}
}

func (r *memoryDeliveryRepo) Create(_ context.Context, log *delivery.Log) error {
	stored := *log
	r.logs[log.ID] = &stored
	return nil
}

func (r *memoryDeliveryRepo) GetByID(_ context.Context, id string) (*delivery.Log, error) {
	log, ok := r.logs[id]
	if !ok {
		return nil, nil
	}
	out := *log
	return &out, nil
}

func (r *memoryDeliveryRepo) Update(_ context.Context, log *delivery.Log) error {
	stored := *log
	r.logs[log.ID] = &stored
	return nil
}

func (r *memoryDeliveryRepo) FindActiveByDedupKey(_ context.Context, dedupKey string) (*delivery.Log, error) {
	for _, log := range r.logs {
		if log.DedupKey == dedupKey && log.Status != delivery.StatusDeduped {
			out := *log
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memoryDeliveryRepo) ListByFarmer(_ context.Context, farmerID, _ string, limit int) (*delivery.HistoryPage, error) {
	return r.List(nil, delivery.ListFilter{FarmerID: farmerID}, "", limit)
}

func (r *memoryDeliveryRepo) List(_ context.Context, filter delivery.ListFilter, _ string, limit int) (*delivery.HistoryPage, error) {
	var logs []delivery.Log
	for _, log := range r.logs {
		if filter.FarmerID == "" || log.FarmerID == filter.FarmerID {
			logs = append(logs, *log)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return &delivery.HistoryPage{Logs: logs}, nil
}

func (r *memoryDeliveryRepo) CountByStatus(_ context.Context) (map[delivery.Status]int64, error) {
	counts := make(map[delivery.Status]int64)
	for _, log := range r.logs {
		counts[log.Status]++
	}
	return counts, nil
}

func heatWaveContext(farmerID string) advisory.AdvisoryContext {
	signal := weather.NewSignal(weather.SignalHeatWaveAlert, "temperature above 40C")
	return advisory.AdvisoryContext{
		FarmerID:      farmerID,
		District:      "Nashik",
		CropType:      "wheat",
		GrowthStage:   advisory.StageFlowering,
		Current:       weather.Data{District: "Nashik", TemperatureC: 43, ObservedAt: time.Now()},
		Signals:       []weather.Signal{signal},
		PrimarySignal: &signal,
		RiskLevel:     advisory.RiskCritical,
	}
}

func triggeredResult() rules.Result {
	return rules.Result{
		RuleID:    "rule-1",
		RuleName:  "Heat Wave - Wheat Flowering Critical",
		Priority:  95,
		Triggered: true,
		Actions: []rules.Action{
			{Type: "SEND_ADVISORY", Payload: map[string]string{"advisory_type": "HEAT_STRESS"}},
		},
	}
}

type fixture struct {
	orchestrator *Orchestrator
	repo         *memoryDeliveryRepo
	sender       *capturingSender
	rules        *stubRules
	clockAt      *time.Time
}

func newFixture(signals *stubSignals, contexts *stubContexts, ruleExec *stubRules) *fixture {
	now := time.Date(2025, time.July, 10, 14, 0, 0, 0, time.UTC)
	clockAt := &now
	clock := func() time.Time { return *clockAt }

	repo := newMemoryDeliveryRepo()
	deliveries := delivery.NewService(repo, logger.NopLogger(), delivery.WithClock(clock))
	sender := &capturingSender{}

	orch := New(signals, contexts, ruleExec, deliveries, sender, logger.NopLogger(),
		WithClock(clock))

	return &fixture{
		orchestrator: orch,
		repo:         repo,
		sender:       sender,
		rules:        ruleExec,
		clockAt:      clockAt,
	}
}

func TestRunCycleDispatchesAdvisories(t *testing.T) {
	signals := &stubSignals{byDistrict: map[string][]weather.Signal{
		"Nashik": {weather.NewSignal(weather.SignalHeatWaveAlert, "temperature above 40C")},
		"Latur":  {weather.NewSignal(weather.SignalNormalConditions, "clear")},
	}}
	contexts := &stubContexts{byDistrict: map[string][]advisory.AdvisoryContext{
		"Nashik": {heatWaveContext("farmer-1"), heatWaveContext("farmer-2")},
	}}
	f := newFixture(signals, contexts, &stubRules{results: []rules.Result{triggeredResult()}})

	report, err := f.orchestrator.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.DistrictsEvaluated, "normal-conditions district is skipped")
	assert.Equal(t, 2, report.FarmersEvaluated)
	assert.Equal(t, 2, report.RulesMatched)
	assert.Equal(t, 2, report.AdvisoriesCreated)
	assert.Equal(t, 2, report.Dispatched)
	assert.Empty(t, report.Errors)

	require.Len(t, f.sender.messages, 2)
	assert.Equal(t, "SMS", f.sender.messages[0].Channel, "emergency goes over SMS")

	counts, err := f.repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[delivery.StatusDispatched])
}

func TestRunCycleRecordsAdvisoryTypeFromAction(t *testing.T) {
	signals := &stubSignals{byDistrict: map[string][]weather.Signal{
		"Nashik": {weather.NewSignal(weather.SignalHeatWaveAlert, "temperature above 40C")},
	}}
	contexts := &stubContexts{byDistrict: map[string][]advisory.AdvisoryContext{
		"Nashik": {heatWaveContext("farmer-1")},
	}}
	f := newFixture(signals, contexts, &stubRules{results: []rules.Result{triggeredResult()}})

	_, err := f.orchestrator.RunCycle(context.Background())
	require.NoError(t, err)

	for _, log := range f.repo.logs {
		assert.Equal(t, "HEAT_STRESS", log.AdvisoryType)
	}
}

func TestRunCycleSameHourCountsDedupedNotCreated(t *testing.T) {
	signals := &stubSignals{byDistrict: map[string][]weather.Signal{
		"Nashik": {weather.NewSignal(weather.SignalHeatWaveAlert, "temperature above 40C")},
	}}
	contexts := &stubContexts{byDistrict: map[string][]advisory.AdvisoryContext{
		"Nashik": {heatWaveContext("farmer-1")},
	}}
	f := newFixture(signals, contexts, &stubRules{results: []rules.Result{triggeredResult()}})

	first, err := f.orchestrator.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.AdvisoriesCreated)
	assert.Equal(t, 0, first.Deduped)

	// A second cycle in the same hour starts a fresh in-cycle set, so
	// the storage dedup key catches the repeat.
	second, err := f.orchestrator.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.AdvisoriesCreated, "a deduped log is not a created advisory")
	assert.Equal(t, 1, second.Deduped)
	assert.Equal(t, 0, second.Dispatched)
	assert.Len(t, f.sender.messages, 1)
}

func TestProcessFarmerSecondCallSameHourIsNoOp(t *testing.T) {
	built := heatWaveContext("farmer-1")
	contexts := &stubContexts{byFarmer: map[string]*advisory.AdvisoryContext{
		"farmer-1": &built,
	}}
	f := newFixture(&stubSignals{}, contexts, &stubRules{results: []rules.Result{triggeredResult()}})

	first, err := f.orchestrator.ProcessFarmer(context.Background(), "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Dispatched)

	second, err := f.orchestrator.ProcessFarmer(context.Background(), "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Dispatched)
	assert.Equal(t, 1, second.Deduped)

	assert.Len(t, f.repo.logs, 1, "no second delivery log in the same hour")
	assert.Len(t, f.sender.messages, 1)
}

func TestProcessFarmerNextHourSendsAgain(t *testing.T) {
	built := heatWaveContext("farmer-1")
	contexts := &stubContexts{byFarmer: map[string]*advisory.AdvisoryContext{
		"farmer-1": &built,
	}}
	f := newFixture(&stubSignals{}, contexts, &stubRules{results: []rules.Result{triggeredResult()}})

	_, err := f.orchestrator.ProcessFarmer(context.Background(), "farmer-1")
	require.NoError(t, err)

	*f.clockAt = f.clockAt.Add(time.Hour)

	report, err := f.orchestrator.ProcessFarmer(context.Background(), "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dispatched)
	assert.Len(t, f.repo.logs, 2)
}

func TestProcessFarmerUnknownFarmerIsNoOp(t *testing.T) {
	f := newFixture(&stubSignals{}, &stubContexts{}, &stubRules{})

	report, err := f.orchestrator.ProcessFarmer(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, report.FarmersEvaluated)
	assert.Empty(t, f.repo.logs)
}

func TestRunCyclePanicIsContainedPerFarmer(t *testing.T) {
	signals := &stubSignals{byDistrict: map[string][]weather.Signal{
		"Nashik": {weather.NewSignal(weather.SignalHeatWaveAlert, "temperature above 40C")},
	}}
	contexts := &stubContexts{byDistrict: map[string][]advisory.AdvisoryContext{
		"Nashik": {heatWaveContext("farmer-1"), heatWaveContext("farmer-2")},
	}}
	ruleExec := &stubRules{results: []rules.Result{triggeredResult()}, panicOn: "farmer-1"}
	f := newFixture(signals, contexts, ruleExec)

	report, err := f.orchestrator.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "farmer-1")
	assert.Equal(t, 1, report.Dispatched, "healthy farmer still served")
}

func TestRunCycleRejectsOverlap(t *testing.T) {
	f := newFixture(&stubSignals{}, &stubContexts{}, &stubRules{})

	f.orchestrator.mu.Lock()
	f.orchestrator.running = true
	f.orchestrator.mu.Unlock()

	_, err := f.orchestrator.RunCycle(context.Background())
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestRunCycleSkipsFarmersWithoutTriggeredRules(t *testing.T) {
	signals := &stubSignals{byDistrict: map[string][]weather.Signal{
		"Nashik": {weather.NewSignal(weather.SignalHeatWaveAlert, "temperature above 40C")},
	}}
	contexts := &stubContexts{byDistrict: map[string][]advisory.AdvisoryContext{
		"Nashik": {heatWaveContext("farmer-1")},
	}}
	ruleExec := &stubRules{results: []rules.Result{{RuleID: "rule-1", Triggered: false}}}
	f := newFixture(signals, contexts, ruleExec)

	report, err := f.orchestrator.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.AdvisoriesCreated)
	assert.Empty(t, f.repo.logs)

	// No advisory was produced, so the farmer is not marked and a rule
	// change can still serve them this hour.
	report, err = f.orchestrator.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Deduped)
	assert.Equal(t, 2, ruleExec.evaluations)
}

func TestHealthReflectsLastCycle(t *testing.T) {
	signals := &stubSignals{
		byDistrict:   map[string][]weather.Signal{},
		availability: map[string]bool{"openweather": true, "imd": false},
		lastPoll:     time.Date(2025, time.July, 10, 13, 45, 0, 0, time.UTC),
	}
	f := newFixture(signals, &stubContexts{}, &stubRules{})

	status := f.orchestrator.Health()
	assert.False(t, status.Running)
	assert.Nil(t, status.LastRunAt)

	_, err := f.orchestrator.RunCycle(context.Background())
	require.NoError(t, err)

	status = f.orchestrator.Health()
	require.NotNil(t, status.LastRunAt)
	require.NotNil(t, status.LastCycle)
	assert.Equal(t, map[string]bool{"openweather": true, "imd": false}, status.ProviderAvailability)
	require.NotNil(t, status.LastWeatherPoll)
}

func TestDedupSetKeyAndClear(t *testing.T) {
	at := time.Date(2025, time.July, 10, 14, 0, 0, 0, time.UTC)
	set := NewDedupSet(func() time.Time { return at })

	key := set.Key("farmer-1", "HEAT_WAVE_ALERT", "wheat")
	assert.Equal(t, "farmer-1:HEAT_WAVE_ALERT:wheat:14", key)

	assert.False(t, set.Seen(key))
	set.Mark(key)
	assert.True(t, set.Seen(key))
	assert.Equal(t, 1, set.Len())

	set.Clear()
	assert.False(t, set.Seen(key))
	assert.Equal(t, 0, set.Len())
}
