package weather

import "time"

// Data is a normalized observation for one district. Providers with
// different wire formats all decode into this shape.
type Data struct {
	District        string    `json:"district"`
	TemperatureC    float64   `json:"temperature_c"`
	HumidityPct     float64   `json:"humidity_pct"`
	RainfallMM      float64   `json:"rainfall_mm"`
	WindSpeedKmh    float64   `json:"wind_speed_kmh"`
	HailProbability float64   `json:"hail_probability_pct"`
	DryDays         int       `json:"dry_days"`
	Thunder         bool      `json:"thunder"`
	ObservedAt      time.Time `json:"observed_at"`
}

type ForecastEntry struct {
	Time         time.Time `json:"time"`
	TemperatureC float64   `json:"temperature_c"`
	RainfallMM   float64   `json:"rainfall_mm"`
	WindSpeedKmh float64   `json:"wind_speed_kmh"`
}

// Snapshot is the last-known-good unit cached per district.
type Snapshot struct {
	District  string          `json:"district"`
	Current   Data            `json:"current"`
	Forecast  []ForecastEntry `json:"forecast"`
	Signals   []Signal        `json:"signals"`
	FetchedAt time.Time       `json:"fetched_at"`
	Source    string          `json:"source"`
	Stale     bool            `json:"stale"`
}

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWatch
	SeverityWarning
	SeverityEmergency
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWatch:
		return "WATCH"
	case SeverityWarning:
		return "WARNING"
	case SeverityEmergency:
		return "EMERGENCY"
	default:
		return "INFO"
	}
}

type SignalKind string

const (
	SignalNormalConditions  SignalKind = "NORMAL_CONDITIONS"
	SignalHeavyRainExpected SignalKind = "HEAVY_RAIN_EXPECTED"
	SignalHeatWaveAlert     SignalKind = "HEAT_WAVE_ALERT"
	SignalFrostRisk         SignalKind = "FROST_RISK"
	SignalHighHumidityRisk  SignalKind = "HIGH_HUMIDITY_RISK"
	SignalStormAlert        SignalKind = "STORM_ALERT"
	SignalDroughtWarning    SignalKind = "DROUGHT_WARNING"
	SignalFloodRisk         SignalKind = "FLOOD_RISK"
	SignalThunderstormAlert SignalKind = "THUNDERSTORM_ALERT"
	SignalHailRisk          SignalKind = "HAIL_RISK"
	SignalColdWaveAlert     SignalKind = "COLD_WAVE_ALERT"
	SignalStrongWind        SignalKind = "STRONG_WIND"
	SignalHighTemperature   SignalKind = "HIGH_TEMPERATURE"
)

// SeverityFor is fixed domain knowledge: each signal variant maps to
// exactly one severity. New variants must be added here or they route
// to INFO.
func SeverityFor(kind SignalKind) Severity {
	switch kind {
	case SignalHeatWaveAlert, SignalStormAlert, SignalFloodRisk:
		return SeverityEmergency
	case SignalHeavyRainExpected, SignalFrostRisk, SignalDroughtWarning,
		SignalThunderstormAlert, SignalHailRisk, SignalColdWaveAlert:
		return SeverityWarning
	case SignalHighHumidityRisk, SignalStrongWind, SignalHighTemperature:
		return SeverityWatch
	case SignalNormalConditions:
		return SeverityInfo
	default:
		return SeverityInfo
	}
}

type Signal struct {
	Kind        SignalKind `json:"kind"`
	Severity    Severity   `json:"severity"`
	Description string     `json:"description"`
}

func NewSignal(kind SignalKind, description string) Signal {
	return Signal{
		Kind:        kind,
		Severity:    SeverityFor(kind),
		Description: description,
	}
}

// IsNormal reports whether the signal carries no actionable weather risk.
func (s Signal) IsNormal() bool {
	return s.Kind == SignalNormalConditions
}
