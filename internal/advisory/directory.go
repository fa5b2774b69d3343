package advisory

import (
	"context"
	"database/sql"

	pkgerrors "agroadvisor/pkg/errors"
)

// UserDirectory resolves farmer profiles from the platform user store.
type UserDirectory interface {
	GetFarmer(ctx context.Context, farmerID string) (*FarmerProfile, error)
	FindFarmersByDistrict(ctx context.Context, district string) ([]FarmerProfile, error)
}

// CropListingStore resolves a farmer's crop listings. FindFarmerIDsByCrop
// backs the crop-targeted batch build.
type CropListingStore interface {
	FindByFarmer(ctx context.Context, farmerID string) ([]CropListing, error)
	FindFarmerIDsByCrop(ctx context.Context, cropName string) ([]string, error)
}

// PostgresDirectory implements both collaborator interfaces over the
// shared platform schema.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) GetFarmer(ctx context.Context, farmerID string) (*FarmerProfile, error) {
	query := `
		SELECT id, name, phone, district, land_size_acres
		FROM farmers
		WHERE id = $1`

	var p FarmerProfile
	err := d.db.QueryRowContext(ctx, query, farmerID).Scan(
		&p.ID, &p.Name, &p.Phone, &p.District, &p.LandSizeAcres,
	)
	if err == sql.ErrNoRows {
		return nil, pkgerrors.ErrNotFound.WithDetail("farmer_id", farmerID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return &p, nil
}

func (d *PostgresDirectory) FindFarmersByDistrict(ctx context.Context, district string) ([]FarmerProfile, error) {
	query := `
		SELECT id, name, phone, district, land_size_acres
		FROM farmers
		WHERE district = $1
		ORDER BY id`

	rows, err := d.db.QueryContext(ctx, query, district)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	defer rows.Close()

	var farmers []FarmerProfile
	for rows.Next() {
		var p FarmerProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.District, &p.LandSizeAcres); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		farmers = append(farmers, p)
	}
	return farmers, rows.Err()
}

func (d *PostgresDirectory) FindByFarmer(ctx context.Context, farmerID string) ([]CropListing, error) {
	query := `
		SELECT id, farmer_id, crop_name, created_at
		FROM crop_listings
		WHERE farmer_id = $1
		ORDER BY created_at DESC`

	rows, err := d.db.QueryContext(ctx, query, farmerID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	defer rows.Close()

	var listings []CropListing
	for rows.Next() {
		var l CropListing
		if err := rows.Scan(&l.ID, &l.FarmerID, &l.CropName, &l.CreatedAt); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (d *PostgresDirectory) FindFarmerIDsByCrop(ctx context.Context, cropName string) ([]string, error) {
	query := `
		SELECT DISTINCT farmer_id
		FROM crop_listings
		WHERE lower(crop_name) = lower($1)
		ORDER BY farmer_id`

	rows, err := d.db.QueryContext(ctx, query, cropName)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
