package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "agroadvisor/pkg/errors"

	"agroadvisor/internal/rules"
)

func TestRulesService_CreateAndAudit(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewRepository(infra.PostgresDB)
	audit := rules.NewAuditRepository(infra.PostgresDB)
	svc := rules.NewService(repo, createTestLogger(), rules.WithAudit(audit))
	ctx := context.Background()

	created, err := svc.CreateRule(ctx, createTestRuleRequest("heat_stress_wheat", 90))
	require.NoError(t, err)
	assert.Equal(t, rules.StatusActive, created.Status)
	assert.True(t, created.IsActive)
	assert.Equal(t, 1, created.Version)

	logs, err := svc.GetAuditLogs(ctx, created.GroupID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "create", logs[0].Action)
}

func TestRulesService_UpdateCreatesNewVersion(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewRepository(infra.PostgresDB)
	audit := rules.NewAuditRepository(infra.PostgresDB)
	svc := rules.NewService(repo, createTestLogger(), rules.WithAudit(audit))
	ctx := context.Background()

	created, err := svc.CreateRule(ctx, createTestRuleRequest("heat_stress_wheat", 90))
	require.NoError(t, err)

	newPriority := 95
	updated, err := svc.UpdateRule(ctx, created.ID, rules.UpdateRuleRequest{
		Priority:  &newPriority,
		UpdatedBy: "integration-test",
	})
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, updated.ID)
	assert.Equal(t, created.GroupID, updated.GroupID)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 95, updated.Priority)

	old, err := svc.GetRule(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, rules.StatusArchived, old.Status)

	versions, err := svc.ListVersions(ctx, updated.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	logs, err := svc.GetAuditLogs(ctx, updated.GroupID, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestRulesService_UpdateArchivedVersionRejected(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewRepository(infra.PostgresDB)
	svc := rules.NewService(repo, createTestLogger())
	ctx := context.Background()

	created, err := svc.CreateRule(ctx, createTestRuleRequest("heat_stress_wheat", 90))
	require.NoError(t, err)

	newPriority := 95
	_, err = svc.UpdateRule(ctx, created.ID, rules.UpdateRuleRequest{Priority: &newPriority})
	require.NoError(t, err)

	_, err = svc.UpdateRule(ctx, created.ID, rules.UpdateRuleRequest{Priority: &newPriority})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
}
