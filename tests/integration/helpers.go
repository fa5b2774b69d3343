package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agroadvisor/internal/logger"
	"agroadvisor/internal/rules"
)

const containerStartupTimeout = 60

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestRuleRequest(name string, priority int) rules.CreateRuleRequest {
	return rules.CreateRuleRequest{
		Name: name,
		Definition: rules.Definition{
			Logic: rules.LogicAnd,
			Conditions: []rules.Condition{
				{Field: "temperature", Operator: rules.OperatorGTE, Value: "40"},
				{Field: "crop_type", Operator: rules.OperatorEquals, Value: "wheat"},
			},
			Actions: []rules.Action{
				{Type: "SEND_ADVISORY", Payload: map[string]string{"advisory_type": "HEAT_STRESS"}},
			},
		},
		Priority:  priority,
		CreatedBy: "integration-test",
	}
}

func insertFarmer(t *testing.T, db *sql.DB, id, name, district string, landSize float64) {
	t.Helper()

	_, err := db.ExecContext(context.Background(),
		`INSERT INTO farmers (id, name, phone, district, land_size_acres) VALUES ($1, $2, $3, $4, $5)`,
		id, name, "+910000000000", district, landSize)
	require.NoError(t, err)
}

func insertCropListing(t *testing.T, db *sql.DB, id, farmerID, cropName string, createdAt time.Time) {
	t.Helper()

	_, err := db.ExecContext(context.Background(),
		`INSERT INTO crop_listings (id, farmer_id, crop_name, created_at) VALUES ($1, $2, $3, $4)`,
		id, farmerID, cropName, createdAt)
	require.NoError(t, err)
}
