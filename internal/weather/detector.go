package weather

import (
	"fmt"

	"agroadvisor/internal/config"
)

// Detector derives discrete weather signals from raw measurements.
// Pure: no I/O, no clock, safe for concurrent use.
type Detector struct {
	thresholds config.ThresholdsConfig
}

func NewDetector(thresholds config.ThresholdsConfig) *Detector {
	applyThresholdDefaults(&thresholds)
	return &Detector{thresholds: thresholds}
}

func applyThresholdDefaults(t *config.ThresholdsConfig) {
	if t.HeavyRainMM == 0 {
		t.HeavyRainMM = 50
	}
	if t.FloodRainMM == 0 {
		t.FloodRainMM = 200
	}
	if t.HeatWaveCelsius == 0 {
		t.HeatWaveCelsius = 42
	}
	if t.HighTempCelsius == 0 {
		t.HighTempCelsius = 35
	}
	if t.ColdWaveCelsius == 0 {
		t.ColdWaveCelsius = 5
	}
	if t.FrostCelsius == 0 {
		t.FrostCelsius = 2
	}
	if t.HighHumidityPct == 0 {
		t.HighHumidityPct = 90
	}
	if t.StrongWindKmh == 0 {
		t.StrongWindKmh = 40
	}
	if t.StormWindKmh == 0 {
		t.StormWindKmh = 75
	}
	if t.DroughtDryDays == 0 {
		t.DroughtDryDays = 21
	}
	if t.HailProbabilityPct == 0 {
		t.HailProbabilityPct = 60
	}
}

// DetectSignals maps measurements to a ranked signal list. The result
// is never empty: when nothing notable is found it contains exactly
// NORMAL_CONDITIONS. Ranking is severity descending with detection
// order preserved among equals.
func (d *Detector) DetectSignals(data Data) []Signal {
	t := d.thresholds
	var signals []Signal

	if data.RainfallMM >= t.FloodRainMM {
		signals = append(signals, NewSignal(SignalFloodRisk,
			fmt.Sprintf("Rainfall %.0fmm exceeds flood threshold %.0fmm", data.RainfallMM, t.FloodRainMM)))
	} else if data.RainfallMM >= t.HeavyRainMM {
		signals = append(signals, NewSignal(SignalHeavyRainExpected,
			fmt.Sprintf("Rainfall %.0fmm exceeds heavy rain threshold %.0fmm", data.RainfallMM, t.HeavyRainMM)))
	}

	if data.TemperatureC >= t.HeatWaveCelsius {
		signals = append(signals, NewSignal(SignalHeatWaveAlert,
			fmt.Sprintf("Temperature %.1f°C at or above heat wave threshold %.1f°C", data.TemperatureC, t.HeatWaveCelsius)))
	} else if data.TemperatureC >= t.HighTempCelsius {
		signals = append(signals, NewSignal(SignalHighTemperature,
			fmt.Sprintf("Temperature %.1f°C at or above high temperature threshold %.1f°C", data.TemperatureC, t.HighTempCelsius)))
	}

	if data.TemperatureC <= t.FrostCelsius {
		signals = append(signals, NewSignal(SignalFrostRisk,
			fmt.Sprintf("Temperature %.1f°C at or below frost threshold %.1f°C", data.TemperatureC, t.FrostCelsius)))
	} else if data.TemperatureC <= t.ColdWaveCelsius {
		signals = append(signals, NewSignal(SignalColdWaveAlert,
			fmt.Sprintf("Temperature %.1f°C at or below cold wave threshold %.1f°C", data.TemperatureC, t.ColdWaveCelsius)))
	}

	if data.WindSpeedKmh >= t.StormWindKmh {
		signals = append(signals, NewSignal(SignalStormAlert,
			fmt.Sprintf("Wind speed %.0fkm/h at or above storm threshold %.0fkm/h", data.WindSpeedKmh, t.StormWindKmh)))
	} else if data.WindSpeedKmh >= t.StrongWindKmh {
		signals = append(signals, NewSignal(SignalStrongWind,
			fmt.Sprintf("Wind speed %.0fkm/h at or above strong wind threshold %.0fkm/h", data.WindSpeedKmh, t.StrongWindKmh)))
	}

	if data.Thunder {
		signals = append(signals, NewSignal(SignalThunderstormAlert, "Thunderstorm activity reported"))
	}

	if data.HailProbability >= t.HailProbabilityPct {
		signals = append(signals, NewSignal(SignalHailRisk,
			fmt.Sprintf("Hail probability %.0f%% at or above threshold %.0f%%", data.HailProbability, t.HailProbabilityPct)))
	}

	if data.HumidityPct >= t.HighHumidityPct {
		signals = append(signals, NewSignal(SignalHighHumidityRisk,
			fmt.Sprintf("Humidity %.0f%% at or above threshold %.0f%%", data.HumidityPct, t.HighHumidityPct)))
	}

	if data.DryDays >= t.DroughtDryDays {
		signals = append(signals, NewSignal(SignalDroughtWarning,
			fmt.Sprintf("%d consecutive dry days at or above drought threshold %d", data.DryDays, t.DroughtDryDays)))
	}

	if len(signals) == 0 {
		return []Signal{NewSignal(SignalNormalConditions, "No notable weather risk detected")}
	}

	return rankBySeverity(signals)
}

// rankBySeverity sorts severity descending. The sort is stable by
// construction: equal severities keep detection order.
func rankBySeverity(signals []Signal) []Signal {
	ranked := make([]Signal, 0, len(signals))
	for sev := SeverityEmergency; sev >= SeverityInfo; sev-- {
		for _, s := range signals {
			if s.Severity == sev {
				ranked = append(ranked, s)
			}
		}
	}
	return ranked
}

// HighestSeveritySignal returns the most severe signal, first in
// detection order winning ties, or nil for an empty list.
func HighestSeveritySignal(signals []Signal) *Signal {
	if len(signals) == 0 {
		return nil
	}
	best := signals[0]
	for _, s := range signals[1:] {
		if s.Severity > best.Severity {
			best = s
		}
	}
	return &best
}
