package rules

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agroadvisor/internal/logger"
	pkgerrors "agroadvisor/pkg/errors"
)

// memoryRepository backs service tests without postgres.
type memoryRepository struct {
	rules      map[string]*Rule
	order      []string
	activeHits int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{rules: make(map[string]*Rule)}
}

func (r *memoryRepository) Create(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.GroupID == "" {
		rule.GroupID = rule.ID
	}
	if rule.Version == 0 {
		rule.Version = 1
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	clone := *rule
	r.rules[rule.ID] = &clone
	r.order = append(r.order, rule.ID)
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	rule, ok := r.rules[id]
	if !ok {
		return nil, nil
	}
	clone := *rule
	return &clone, nil
}

func (r *memoryRepository) List(ctx context.Context, filter ListFilter) ([]Rule, error) {
	var out []Rule
	for _, id := range r.order {
		rule := r.rules[id]
		if filter.Status != "" && rule.Status != filter.Status {
			continue
		}
		if filter.GroupID != "" && rule.GroupID != filter.GroupID {
			continue
		}
		out = append(out, *rule)
	}
	return out, nil
}

func (r *memoryRepository) GetActive(ctx context.Context) ([]Rule, error) {
	r.activeHits++
	var out []Rule
	for _, id := range r.order {
		rule := r.rules[id]
		if rule.Status == StatusActive && rule.IsActive {
			out = append(out, *rule)
		}
	}
	// priority descending, insertion order preserved among equals
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority > out[j-1].Priority; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (r *memoryRepository) ListVersions(ctx context.Context, groupID string) ([]Rule, error) {
	var out []Rule
	for _, id := range r.order {
		if r.rules[id].GroupID == groupID {
			out = append(out, *r.rules[id])
		}
	}
	return out, nil
}

func (r *memoryRepository) ArchiveAndInsert(ctx context.Context, oldID string, next *Rule) error {
	old, ok := r.rules[oldID]
	if !ok {
		return pkgerrors.ErrNotFound.WithDetail("id", oldID)
	}
	old.Status = StatusArchived
	old.IsActive = false
	old.UpdatedAt = time.Now()
	return r.Create(ctx, next)
}

func heatWaveWheatRequest() CreateRuleRequest {
	return CreateRuleRequest{
		Name: "Heat Wave - Wheat Flowering Critical",
		Definition: Definition{
			Logic: LogicAnd,
			Conditions: []Condition{
				{Field: "weather_signal", Operator: OperatorEquals, Value: "HEAT_WAVE_ALERT"},
				{Field: "crop_type", Operator: OperatorEquals, Value: "WHEAT"},
				{Field: "growth_stage", Operator: OperatorEquals, Value: "FLOWERING"},
			},
			Actions: []Action{
				{Type: "SEND_ADVISORY", Payload: map[string]string{"template": "heat_wave_wheat"}},
			},
		},
		Priority:  95,
		CreatedBy: "agronomy-team",
	}
}

func TestCreateRuleFirstVersionIsOwnGroup(t *testing.T) {
	svc := NewService(newMemoryRepository(), logger.NopLogger())

	rule, err := svc.CreateRule(context.Background(), heatWaveWheatRequest())
	require.NoError(t, err)

	assert.Equal(t, rule.ID, rule.GroupID)
	assert.Equal(t, 1, rule.Version)
	assert.Equal(t, StatusActive, rule.Status)
	assert.True(t, rule.IsActive)
	assert.Equal(t, 95, rule.Priority)
}

func TestCreateRuleValidation(t *testing.T) {
	svc := NewService(newMemoryRepository(), logger.NopLogger())

	tests := []struct {
		name string
		req  CreateRuleRequest
	}{
		{"missing name", CreateRuleRequest{}},
		{"bad operator", CreateRuleRequest{
			Name: "x",
			Definition: Definition{Conditions: []Condition{
				{Field: "f", Operator: "MATCHES", Value: "v"},
			}},
		}},
		{"bad logic", CreateRuleRequest{
			Name:       "x",
			Definition: Definition{Logic: "XOR"},
		}},
		{"archived status on create", CreateRuleRequest{
			Name:   "x",
			Status: StatusArchived,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateRule(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
		})
	}
}

func TestUpdateRuleArchivesOldVersion(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo, logger.NopLogger())
	ctx := context.Background()

	v1, err := svc.CreateRule(ctx, heatWaveWheatRequest())
	require.NoError(t, err)

	newPriority := 80
	v2, err := svc.UpdateRule(ctx, v1.ID, UpdateRuleRequest{Priority: &newPriority, UpdatedBy: "ops"})
	require.NoError(t, err)

	assert.NotEqual(t, v1.ID, v2.ID)
	assert.Equal(t, v1.GroupID, v2.GroupID)
	assert.Equal(t, v1.Version+1, v2.Version)
	assert.Equal(t, 80, v2.Priority)
	assert.Equal(t, v1.Name, v2.Name)

	// The old row ends ARCHIVED and inactive; its content is untouched.
	old, err := svc.GetRule(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, old.Status)
	assert.False(t, old.IsActive)
	assert.Equal(t, 95, old.Priority)
	assert.Equal(t, v1.Definition, old.Definition)

	// Exactly one active version per group.
	versions, err := svc.ListVersions(ctx, v2.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	activeCount := 0
	for _, v := range versions {
		if v.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestUpdateRuleRejectsArchivedVersion(t *testing.T) {
	svc := NewService(newMemoryRepository(), logger.NopLogger())
	ctx := context.Background()

	v1, err := svc.CreateRule(ctx, heatWaveWheatRequest())
	require.NoError(t, err)

	_, err = svc.UpdateRule(ctx, v1.ID, UpdateRuleRequest{UpdatedBy: "ops"})
	require.NoError(t, err)

	// v1 is archived now; updating it again must conflict.
	_, err = svc.UpdateRule(ctx, v1.ID, UpdateRuleRequest{UpdatedBy: "ops"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestUpdateRuleNotFound(t *testing.T) {
	svc := NewService(newMemoryRepository(), logger.NopLogger())

	_, err := svc.UpdateRule(context.Background(), "no-such-rule", UpdateRuleRequest{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestExecuteRulesOrderAndCaching(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo, logger.NopLogger())
	ctx := context.Background()

	_, err := svc.CreateRule(ctx, CreateRuleRequest{
		Name:     "low priority catch-all",
		Priority: 10,
	})
	require.NoError(t, err)

	_, err = svc.CreateRule(ctx, heatWaveWheatRequest())
	require.NoError(t, err)

	src := FieldMap{}.
		SetString("weather_signal", "HEAT_WAVE_ALERT").
		SetString("crop_type", "WHEAT").
		SetString("growth_stage", "FLOWERING")

	results, err := svc.ExecuteRules(ctx, src)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Priority descending: heat wave rule first.
	assert.Equal(t, "Heat Wave - Wheat Flowering Critical", results[0].RuleName)
	assert.Equal(t, 95, results[0].Priority)
	assert.True(t, results[0].Triggered)
	assert.Equal(t, "low priority catch-all", results[1].RuleName)

	// Repeated execution serves the cache.
	hits := repo.activeHits
	_, err = svc.ExecuteRules(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, hits, repo.activeHits)

	// A mutation invalidates the cache.
	_, err = svc.CreateRule(ctx, CreateRuleRequest{Name: "another", Priority: 5})
	require.NoError(t, err)
	results, err = svc.ExecuteRules(ctx, src)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, hits+1, repo.activeHits)
}

func TestExecuteRulesSkipsExpiredWindow(t *testing.T) {
	repo := newMemoryRepository()

	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, logger.NopLogger(), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	past := fixed.Add(-48 * time.Hour)
	pastEnd := fixed.Add(-24 * time.Hour)
	_, err := svc.CreateRule(ctx, CreateRuleRequest{
		Name:          "expired",
		EffectiveFrom: &past,
		EffectiveTo:   &pastEnd,
	})
	require.NoError(t, err)

	future := fixed.Add(24 * time.Hour)
	_, err = svc.CreateRule(ctx, CreateRuleRequest{
		Name:          "not yet effective",
		EffectiveFrom: &future,
	})
	require.NoError(t, err)

	_, err = svc.CreateRule(ctx, CreateRuleRequest{Name: "open window"})
	require.NoError(t, err)

	results, err := svc.ExecuteRules(ctx, FieldMap{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "open window", results[0].RuleName)
}

func TestSimulate(t *testing.T) {
	svc := NewService(newMemoryRepository(), logger.NopLogger())

	result, err := svc.Simulate(context.Background(), SimulateRequest{
		Definition: Definition{
			Logic: LogicAnd,
			Conditions: []Condition{
				{Field: "temperature", Operator: OperatorGT, Value: "40"},
			},
		},
		Context: map[string]interface{}{"temperature": 43.0},
	})
	require.NoError(t, err)
	assert.True(t, result.Triggered)
	assert.NotEmpty(t, result.MatchReason)

	result, err = svc.Simulate(context.Background(), SimulateRequest{
		Definition: Definition{
			Conditions: []Condition{
				{Field: "temperature", Operator: OperatorGT, Value: "40"},
			},
		},
		Context: map[string]interface{}{"temperature": 30.0},
	})
	require.NoError(t, err)
	assert.False(t, result.Triggered)
	assert.Empty(t, result.MatchReason)
}
