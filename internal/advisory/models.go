package advisory

import (
	"strconv"
	"time"

	"agroadvisor/internal/constants"
	"agroadvisor/internal/rules"
	"agroadvisor/internal/weather"
)

type GrowthStage string

const (
	StageLandPreparation GrowthStage = "LAND_PREPARATION"
	StageSeedling        GrowthStage = "SEEDLING"
	StageVegetative      GrowthStage = "VEGETATIVE"
	StageFlowering       GrowthStage = "FLOWERING"
	StageFruiting        GrowthStage = "FRUITING"
	StageMaturation      GrowthStage = "MATURATION"
	StageHarvesting      GrowthStage = "HARVESTING"
	StagePostHarvest     GrowthStage = "POST_HARVEST"
	StageUnknown         GrowthStage = "UNKNOWN"
)

// WeatherSensitive reports whether the stage is vulnerable to adverse
// weather. New stages must be mapped here or they default to sensitive.
func (s GrowthStage) WeatherSensitive() bool {
	switch s {
	case StageSeedling, StageFlowering, StageFruiting:
		return true
	case StageVegetative, StageMaturation, StageHarvesting:
		return true
	case StageLandPreparation, StagePostHarvest, StageUnknown:
		return false
	default:
		return true
	}
}

// StageForDays derives the growth stage from days since the crop
// listing was created. A crop-agnostic heuristic with fixed day
// thresholds, kept deliberately simple.
func StageForDays(days int) GrowthStage {
	switch {
	case days < 0:
		return StageUnknown
	case days < constants.SeedlingMaxDays:
		return StageSeedling
	case days < constants.VegetativeMaxDays:
		return StageVegetative
	case days < constants.FloweringMaxDays:
		return StageFlowering
	case days < constants.FruitingMaxDays:
		return StageFruiting
	case days < constants.MaturationMaxDays:
		return StageMaturation
	default:
		return StageHarvesting
	}
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskFor maps the primary signal severity and stage sensitivity to a
// risk level, exhaustively over the severity enum.
func RiskFor(severity weather.Severity, stage GrowthStage) RiskLevel {
	switch severity {
	case weather.SeverityEmergency:
		return RiskCritical
	case weather.SeverityWarning:
		if stage.WeatherSensitive() {
			return RiskHigh
		}
		return RiskMedium
	case weather.SeverityWatch:
		return RiskMedium
	case weather.SeverityInfo:
		return RiskLow
	default:
		return RiskLow
	}
}

type Season string

const (
	SeasonKharif      Season = "KHARIF"
	SeasonPostMonsoon Season = "POST_MONSOON"
	SeasonRabi        Season = "RABI"
	SeasonSummer      Season = "SUMMER"
)

func SeasonFor(t time.Time) (Season, bool) {
	switch t.Month() {
	case time.June, time.July, time.August, time.September:
		return SeasonKharif, true
	case time.October, time.November:
		return SeasonPostMonsoon, false
	case time.December, time.January, time.February:
		return SeasonRabi, false
	default:
		return SeasonSummer, false
	}
}

// FarmerProfile is the denormalized slice of the user directory this
// core needs.
type FarmerProfile struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	District      string  `json:"district"`
	LandSizeAcres float64 `json:"land_size_acres"`
}

type CropListing struct {
	ID        string    `json:"id"`
	FarmerID  string    `json:"farmer_id"`
	CropName  string    `json:"crop_name"`
	CreatedAt time.Time `json:"created_at"`
}

// AdvisoryContext joins everything the rule engine needs to know
// about one farmer at one moment. Built fresh per evaluation cycle,
// never persisted; the delivery log stores a content snapshot only.
type AdvisoryContext struct {
	FarmerID      string  `json:"farmer_id"`
	FarmerName    string  `json:"farmer_name"`
	FarmerPhone   string  `json:"farmer_phone"`
	District      string  `json:"district"`
	LandSizeAcres float64 `json:"land_size_acres"`

	CropType          string      `json:"crop_type"`
	GrowthStage       GrowthStage `json:"growth_stage"`
	DaysAfterPlanting int         `json:"days_after_planting"`

	Current       weather.Data            `json:"current"`
	Forecast      []weather.ForecastEntry `json:"forecast"`
	Signals       []weather.Signal        `json:"signals"`
	PrimarySignal *weather.Signal         `json:"primary_signal,omitempty"`

	Season  Season `json:"season"`
	Monsoon bool   `json:"monsoon"`

	RiskLevel RiskLevel `json:"risk_level"`
	Risks     []string  `json:"risks,omitempty"`

	BuiltAt time.Time `json:"built_at"`
}

// Valid reports whether the context is complete enough to evaluate:
// farmer identity, district, current weather and at least one signal.
func (c *AdvisoryContext) Valid() bool {
	return c.FarmerID != "" &&
		c.District != "" &&
		!c.Current.ObservedAt.IsZero() &&
		len(c.Signals) > 0
}

// Fields flattens the context into the typed map the rule engine
// evaluates conditions against.
func (c *AdvisoryContext) Fields() rules.FieldMap {
	m := rules.FieldMap{}.
		SetString("farmer_id", c.FarmerID).
		SetString("district", c.District).
		SetNumber("land_size_acres", c.LandSizeAcres).
		SetString("crop_type", c.CropType).
		SetString("growth_stage", string(c.GrowthStage)).
		SetNumber("days_after_planting", float64(c.DaysAfterPlanting)).
		SetNumber("temperature", c.Current.TemperatureC).
		SetNumber("humidity", c.Current.HumidityPct).
		SetNumber("rainfall", c.Current.RainfallMM).
		SetNumber("wind_speed", c.Current.WindSpeedKmh).
		SetString("season", string(c.Season)).
		SetBool("monsoon", c.Monsoon).
		SetString("risk_level", string(c.RiskLevel)).
		SetBool("stage_weather_sensitive", c.GrowthStage.WeatherSensitive())

	if c.PrimarySignal != nil {
		m.SetString("weather_signal", string(c.PrimarySignal.Kind))
		m.SetString("severity", c.PrimarySignal.Severity.String())
		m.SetNumber("severity_rank", float64(c.PrimarySignal.Severity))
	}

	kinds := make([]string, 0, len(c.Signals))
	for _, s := range c.Signals {
		kinds = append(kinds, string(s.Kind))
	}
	m.SetList("signals", kinds)

	return m
}

// SnapshotText renders a compact human-readable content snapshot for
// the delivery log.
func (c *AdvisoryContext) SnapshotText() string {
	text := "district=" + c.District +
		" crop=" + c.CropType +
		" stage=" + string(c.GrowthStage) +
		" risk=" + string(c.RiskLevel) +
		" temp=" + strconv.FormatFloat(c.Current.TemperatureC, 'f', 1, 64) + "C" +
		" rain=" + strconv.FormatFloat(c.Current.RainfallMM, 'f', 0, 64) + "mm"
	if c.PrimarySignal != nil {
		text = string(c.PrimarySignal.Kind) + " (" + c.PrimarySignal.Severity.String() + "): " + text
	}
	return text
}
