package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "agroadvisor/pkg/errors"

	"agroadvisor/internal/advisory"
)

func TestPostgresDirectory_GetFarmer(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	insertFarmer(t, infra.PostgresDB, "farmer-1", "Ravi", "Pune", 4.5)

	directory := advisory.NewPostgresDirectory(infra.PostgresDB)
	profile, err := directory.GetFarmer(context.Background(), "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", profile.Name)
	assert.Equal(t, "Pune", profile.District)
	assert.InDelta(t, 4.5, profile.LandSizeAcres, 0.001)
}

func TestPostgresDirectory_GetFarmer_NotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	directory := advisory.NewPostgresDirectory(infra.PostgresDB)
	_, err := directory.GetFarmer(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestPostgresDirectory_FindFarmersByDistrict(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	insertFarmer(t, infra.PostgresDB, "farmer-1", "Ravi", "Pune", 4.5)
	insertFarmer(t, infra.PostgresDB, "farmer-2", "Meera", "Pune", 2.0)
	insertFarmer(t, infra.PostgresDB, "farmer-3", "Arjun", "Nashik", 6.0)

	directory := advisory.NewPostgresDirectory(infra.PostgresDB)
	farmers, err := directory.FindFarmersByDistrict(context.Background(), "Pune")
	require.NoError(t, err)
	require.Len(t, farmers, 2)
	assert.Equal(t, "farmer-1", farmers[0].ID)
	assert.Equal(t, "farmer-2", farmers[1].ID)
}

func TestPostgresDirectory_FindByFarmer_NewestFirst(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	insertFarmer(t, infra.PostgresDB, "farmer-1", "Ravi", "Pune", 4.5)
	now := time.Now().UTC()
	insertCropListing(t, infra.PostgresDB, "listing-1", "farmer-1", "rice", now.AddDate(0, -4, 0))
	insertCropListing(t, infra.PostgresDB, "listing-2", "farmer-1", "wheat", now.AddDate(0, -2, 0))

	directory := advisory.NewPostgresDirectory(infra.PostgresDB)
	listings, err := directory.FindByFarmer(context.Background(), "farmer-1")
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "wheat", listings[0].CropName)
	assert.Equal(t, "rice", listings[1].CropName)
}

func TestPostgresDirectory_FindFarmerIDsByCrop(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	insertFarmer(t, infra.PostgresDB, "farmer-1", "Ravi", "Pune", 4.5)
	insertFarmer(t, infra.PostgresDB, "farmer-2", "Meera", "Nashik", 2.0)
	now := time.Now().UTC()
	insertCropListing(t, infra.PostgresDB, "listing-1", "farmer-1", "Wheat", now)
	insertCropListing(t, infra.PostgresDB, "listing-2", "farmer-1", "wheat", now.Add(-time.Hour))
	insertCropListing(t, infra.PostgresDB, "listing-3", "farmer-2", "wheat", now)

	directory := advisory.NewPostgresDirectory(infra.PostgresDB)
	ids, err := directory.FindFarmerIDsByCrop(context.Background(), "WHEAT")
	require.NoError(t, err)
	assert.Equal(t, []string{"farmer-1", "farmer-2"}, ids)
}
