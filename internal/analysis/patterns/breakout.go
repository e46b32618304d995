package patterns

import (
	"math"

	"nscan/internal/analysis"
	"nscan/internal/models"
)

// DirectBreakoutDetector reports a single-bar breakout out of a consolidation zone
// that needs no intermediate pullback. Only the first bar to trade above the zone
// top is considered; if it fails confirmation the zone yields nothing.
type DirectBreakoutDetector struct {
	params Params
	levels *LevelCalculator
}

// NewDirectBreakoutDetector creates a direct breakout detector.
func NewDirectBreakoutDetector(p Params) *DirectBreakoutDetector {
	return &DirectBreakoutDetector{
		params: p,
		levels: NewLevelCalculator(p),
	}
}

func (d *DirectBreakoutDetector) Name() string {
	return "DirectBreakoutDetector"
}

// DetectAfter returns at most one pattern for the zone.
func (d *DirectBreakoutDetector) DetectAfter(series *models.Series, zone analysis.ConsolidationZone) []analysis.Pattern {
	p := d.params
	bars := series.Bars

	j := zone.EndIndex + 1
	for j < series.Len() && !(bars[j].High > zone.High) {
		j++
	}
	if j >= series.Len() {
		return nil
	}

	bar := bars[j]
	ratio := (bar.High - zone.High) / zone.High
	if ratio < p.BreakoutConfirmMargin {
		return nil
	}

	ma := series.MA5Volume[j]
	if math.IsNaN(ma) || bar.Volume < ma*p.VolumeSurgeMultiple {
		return nil
	}

	last := j + p.VerificationDays
	if last >= series.Len() {
		return nil
	}
	if series.MinLow(j, last) < zone.High*(1-p.StopBuffer) {
		return nil
	}

	z := zone
	low := analysis.Point{Index: zone.StartIndex, Date: zone.StartDate, Price: zone.Low}
	high := analysis.Point{Index: j, Date: bar.Date, Price: bar.High}
	pattern := analysis.Pattern{
		Symbol:            series.Symbol,
		Type:              analysis.PatternDirectBreakout,
		Classification:    analysis.PatternDirectBreakout.Classification(),
		S1:                low,
		H1:                high,
		S2:                low,
		H2:                high,
		FirstLeg:          bar.High - zone.Low,
		BreakoutRatio:     ratio,
		Vol1:              bar.Volume,
		ConfirmDate:       bar.Date,
		Zone:              &z,
		SuggestedBuyDate:  bar.Date,
		SuggestedBuyPrice: bar.Close,
	}
	d.levels.Apply(&pattern)

	return []analysis.Pattern{pattern}
}
