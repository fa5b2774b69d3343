package advisory

import (
	"context"
	"sort"
	"time"

	"agroadvisor/internal/logger"
	"agroadvisor/internal/weather"
	pkgerrors "agroadvisor/pkg/errors"
)

// SnapshotSource supplies the freshest weather snapshot for a district.
type SnapshotSource interface {
	CurrentSnapshot(ctx context.Context, district string) (weather.Snapshot, bool)
	SignalsByDistrict() map[string][]weather.Signal
}

type Clock func() time.Time

// ContextBuilder assembles advisory contexts from the user directory,
// crop listings and the weather snapshot store.
//
// Missing inputs are a skip, not a failure: a farmer without a profile,
// district or weather snapshot yields a nil context and a warn log, and
// leaves the rest of the batch untouched.
type ContextBuilder struct {
	directory UserDirectory
	crops     CropListingStore
	snapshots SnapshotSource
	clock     Clock
	logger    logger.Logger
}

func NewContextBuilder(
	directory UserDirectory,
	crops CropListingStore,
	snapshots SnapshotSource,
	log logger.Logger,
	opts ...BuilderOption,
) *ContextBuilder {
	b := &ContextBuilder{
		directory: directory,
		crops:     crops,
		snapshots: snapshots,
		clock:     time.Now,
		logger:    log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type BuilderOption func(*ContextBuilder)

func WithClock(clock Clock) BuilderOption {
	return func(b *ContextBuilder) {
		b.clock = clock
	}
}

// BuildForFarmer builds the advisory context for one farmer. A nil
// context with a nil error means the farmer was skipped.
func (b *ContextBuilder) BuildForFarmer(ctx context.Context, farmerID string) (*AdvisoryContext, error) {
	farmer, err := b.directory.GetFarmer(ctx, farmerID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			b.logger.WarnwCtx(ctx, "farmer not found, skipping advisory context",
				"farmer_id", farmerID)
			return nil, nil
		}
		return nil, err
	}
	return b.buildFromProfile(ctx, *farmer)
}

// BuildForDistrict builds contexts for every farmer registered in the
// district. Farmers that cannot be built are skipped.
func (b *ContextBuilder) BuildForDistrict(ctx context.Context, district string) ([]AdvisoryContext, error) {
	farmers, err := b.directory.FindFarmersByDistrict(ctx, district)
	if err != nil {
		return nil, err
	}
	return b.buildBatch(ctx, farmers), nil
}

// BuildForCrop builds contexts for every farmer with an active listing
// of the crop, regardless of district.
func (b *ContextBuilder) BuildForCrop(ctx context.Context, cropName string) ([]AdvisoryContext, error) {
	ids, err := b.crops.FindFarmerIDsByCrop(ctx, cropName)
	if err != nil {
		return nil, err
	}

	contexts := make([]AdvisoryContext, 0, len(ids))
	for _, id := range ids {
		built, err := b.BuildForFarmer(ctx, id)
		if err != nil {
			b.logger.WarnwCtx(ctx, "failed to build advisory context, skipping farmer",
				"farmer_id", id, "error", err)
			continue
		}
		if built != nil {
			contexts = append(contexts, *built)
		}
	}
	return contexts, nil
}

// BuildForSignals builds contexts for every farmer in a district whose
// cached snapshot carries at least one of the given signal kinds.
// Districts with no matching signal never hit the directory.
func (b *ContextBuilder) BuildForSignals(ctx context.Context, kinds []weather.SignalKind) ([]AdvisoryContext, error) {
	wanted := make(map[weather.SignalKind]struct{}, len(kinds))
	for _, kind := range kinds {
		wanted[kind] = struct{}{}
	}

	var districts []string
	for district, signals := range b.snapshots.SignalsByDistrict() {
		for _, s := range signals {
			if _, ok := wanted[s.Kind]; ok {
				districts = append(districts, district)
				break
			}
		}
	}
	sort.Strings(districts)

	contexts := make([]AdvisoryContext, 0, len(districts))
	for _, district := range districts {
		built, err := b.BuildForDistrict(ctx, district)
		if err != nil {
			b.logger.WarnwCtx(ctx, "failed to build advisory contexts for district, skipping",
				"district", district, "error", err)
			continue
		}
		contexts = append(contexts, built...)
	}
	return contexts, nil
}

func (b *ContextBuilder) buildBatch(ctx context.Context, farmers []FarmerProfile) []AdvisoryContext {
	contexts := make([]AdvisoryContext, 0, len(farmers))
	for _, farmer := range farmers {
		built, err := b.buildFromProfile(ctx, farmer)
		if err != nil {
			b.logger.WarnwCtx(ctx, "failed to build advisory context, skipping farmer",
				"farmer_id", farmer.ID, "error", err)
			continue
		}
		if built != nil {
			contexts = append(contexts, *built)
		}
	}
	return contexts
}

func (b *ContextBuilder) buildFromProfile(ctx context.Context, farmer FarmerProfile) (*AdvisoryContext, error) {
	if farmer.District == "" {
		b.logger.WarnwCtx(ctx, "farmer has no district, skipping advisory context",
			"farmer_id", farmer.ID)
		return nil, nil
	}

	snapshot, ok := b.snapshots.CurrentSnapshot(ctx, farmer.District)
	if !ok {
		b.logger.WarnwCtx(ctx, "no weather snapshot for district, skipping advisory context",
			"farmer_id", farmer.ID, "district", farmer.District)
		return nil, nil
	}

	now := b.clock()
	built := &AdvisoryContext{
		FarmerID:      farmer.ID,
		FarmerName:    farmer.Name,
		FarmerPhone:   farmer.Phone,
		District:      farmer.District,
		LandSizeAcres: farmer.LandSizeAcres,
		CropType:      "unknown",
		GrowthStage:   StageUnknown,
		Current:       snapshot.Current,
		Forecast:      snapshot.Forecast,
		Signals:       snapshot.Signals,
		BuiltAt:       now,
	}

	listings, err := b.crops.FindByFarmer(ctx, farmer.ID)
	if err != nil {
		return nil, err
	}
	if listing := latestListing(listings); listing != nil {
		days := int(now.Sub(listing.CreatedAt).Hours() / 24)
		built.CropType = listing.CropName
		built.DaysAfterPlanting = days
		built.GrowthStage = StageForDays(days)
	}

	if primary := weather.HighestSeveritySignal(snapshot.Signals); primary != nil {
		p := *primary
		built.PrimarySignal = &p
		built.RiskLevel = RiskFor(p.Severity, built.GrowthStage)
	} else {
		built.RiskLevel = RiskLow
	}

	for _, s := range snapshot.Signals {
		if !s.IsNormal() {
			built.Risks = append(built.Risks, s.Description)
		}
	}

	built.Season, built.Monsoon = SeasonFor(now)

	return built, nil
}

func latestListing(listings []CropListing) *CropListing {
	var latest *CropListing
	for i := range listings {
		if latest == nil || listings[i].CreatedAt.After(latest.CreatedAt) {
			latest = &listings[i]
		}
	}
	return latest
}
