// Package patterns implements consolidation zone detection and N-shape breakout
// detection over daily bars.
package patterns

import (
	"time"

	"nscan/internal/errors"
)

// Params holds every tunable of the detection pipeline. A Params value is passed
// explicitly to each detector; detectors never read global state.
type Params struct {
	RetracementThreshold  float64 `mapstructure:"retracement_threshold"`
	MaxRetracementDays    int     `mapstructure:"max_retracement_days"`
	VolumeSurgeMultiple   float64 `mapstructure:"volume_surge_multiple"`
	VolumeQuietMultiple   float64 `mapstructure:"volume_quiet_multiple"`
	BreakoutConfirmMargin float64 `mapstructure:"breakout_confirm_margin"`
	VerificationDays      int     `mapstructure:"verification_days"`

	ConsolidationMinDays          int     `mapstructure:"consolidation_min_days"`
	ConsolidationMaxVolatility    float64 `mapstructure:"consolidation_max_volatility"`
	ConsolidationVolumeQuietRatio float64 `mapstructure:"consolidation_volume_quiet_ratio"`
	ConsolidationLookahead        int     `mapstructure:"consolidation_lookahead"`
	MergeZones                    bool    `mapstructure:"merge_zones"`

	TargetMultiple float64 `mapstructure:"target_multiple"`
	StopBuffer     float64 `mapstructure:"stop_buffer"`
	EntryBuffer    float64 `mapstructure:"entry_buffer"`

	// TargetYear and TargetMonth restrict standalone confirmations to one calendar
	// month. Zero disables the filter.
	TargetYear  int `mapstructure:"target_year"`
	TargetMonth int `mapstructure:"target_month"`

	LookbackMonths int `mapstructure:"lookback_months"`
	ExtremumWindow int `mapstructure:"extremum_window"`
}

// StandaloneParams returns the defaults for scanning recent bars without a zone.
func StandaloneParams() Params {
	return Params{
		RetracementThreshold:          0.5,
		MaxRetracementDays:            10,
		VolumeSurgeMultiple:           1.2,
		VolumeQuietMultiple:           0.6,
		BreakoutConfirmMargin:         0.02,
		VerificationDays:              2,
		ConsolidationMinDays:          90,
		ConsolidationMaxVolatility:    0.25,
		ConsolidationVolumeQuietRatio: 0.8,
		ConsolidationLookahead:        10,
		MergeZones:                    true,
		TargetMultiple:                1.0,
		StopBuffer:                    0.02,
		EntryBuffer:                   0.01,
		LookbackMonths:                1,
		ExtremumWindow:                5,
	}
}

// BreakoutParams returns the defaults for scanning breakouts out of long consolidations.
func BreakoutParams() Params {
	p := StandaloneParams()
	p.MaxRetracementDays = 15
	p.VolumeQuietMultiple = 0.7
	p.TargetMultiple = 1.5
	p.LookbackMonths = 60
	return p
}

// Validate checks that every parameter lies in its usable range.
func (p Params) Validate() error {
	// Checked in declaration order so the first invalid field is always the one reported.
	positive := []struct {
		field string
		value float64
	}{
		{"retracement_threshold", p.RetracementThreshold},
		{"volume_surge_multiple", p.VolumeSurgeMultiple},
		{"volume_quiet_multiple", p.VolumeQuietMultiple},
		{"consolidation_max_volatility", p.ConsolidationMaxVolatility},
		{"consolidation_volume_quiet_ratio", p.ConsolidationVolumeQuietRatio},
		{"target_multiple", p.TargetMultiple},
	}
	for _, f := range positive {
		if f.value <= 0 {
			return errors.NewValidationError(f.field, f.value, "must be positive")
		}
	}

	nonNegative := []struct {
		field string
		value float64
	}{
		{"breakout_confirm_margin", p.BreakoutConfirmMargin},
		{"stop_buffer", p.StopBuffer},
		{"entry_buffer", p.EntryBuffer},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			return errors.NewValidationError(f.field, f.value, "must not be negative")
		}
	}

	if p.StopBuffer >= 1 {
		return errors.NewValidationError("stop_buffer", p.StopBuffer, "must be below 1")
	}
	if p.MaxRetracementDays < 1 {
		return errors.NewValidationError("max_retracement_days", p.MaxRetracementDays, "must be at least 1")
	}
	if p.VerificationDays < 1 {
		return errors.NewValidationError("verification_days", p.VerificationDays, "must be at least 1")
	}
	if p.ConsolidationMinDays < 2 {
		return errors.NewValidationError("consolidation_min_days", p.ConsolidationMinDays, "must be at least 2")
	}
	if p.ConsolidationLookahead < 1 {
		return errors.NewValidationError("consolidation_lookahead", p.ConsolidationLookahead, "must be at least 1")
	}
	if p.ExtremumWindow < 1 {
		return errors.NewValidationError("extremum_window", p.ExtremumWindow, "must be at least 1")
	}
	if p.LookbackMonths < 0 {
		return errors.NewValidationError("lookback_months", p.LookbackMonths, "must not be negative")
	}
	if p.TargetMonth < 0 || p.TargetMonth > 12 {
		return errors.NewValidationError("target_month", p.TargetMonth, "must be between 1 and 12, or 0 to disable")
	}
	if (p.TargetMonth == 0) != (p.TargetYear == 0) {
		return errors.NewValidationError("target_year", p.TargetYear, "target_year and target_month must be set together")
	}
	return nil
}

// WithTargetMonth returns a copy of p restricted to confirmations in the given month.
func (p Params) WithTargetMonth(year int, month time.Month) Params {
	p.TargetYear = year
	p.TargetMonth = int(month)
	return p
}
