package patterns

import (
	"nscan/internal/analysis"
	"nscan/internal/models"
)

// ConsolidationDetector finds ranges of narrow price action on quiet volume that
// precede a pickup in activity.
type ConsolidationDetector struct {
	minDays       int
	maxVolatility float64
	quietRatio    float64
	lookahead     int
	merge         bool
}

// NewConsolidationDetector creates a detector from the consolidation parameters.
func NewConsolidationDetector(p Params) *ConsolidationDetector {
	return &ConsolidationDetector{
		minDays:       p.ConsolidationMinDays,
		maxVolatility: p.ConsolidationMaxVolatility,
		quietRatio:    p.ConsolidationVolumeQuietRatio,
		lookahead:     p.ConsolidationLookahead,
		merge:         p.MergeZones,
	}
}

func (d *ConsolidationDetector) Name() string {
	return "ConsolidationDetector"
}

// Detect returns the qualifying zones in chronological order. A series shorter than
// the minimum window yields no zones.
//
// With merging enabled every window of exactly minDays bars is tested and
// overlapping qualifiers are folded into disjoint zones. Without merging each window
// spans [end-minDays, end] and qualifiers are returned as found.
func (d *ConsolidationDetector) Detect(series *models.Series) []analysis.ConsolidationZone {
	n := series.Len()
	if d.minDays < 1 || n < d.minDays {
		return nil
	}

	var zones []analysis.ConsolidationZone
	if !d.merge {
		for end := d.minDays; end < n; end++ {
			if zone, ok := d.evaluate(series, end-d.minDays, end); ok {
				zones = append(zones, zone)
			}
		}
		return zones
	}

	for start := 0; start+d.minDays <= n; start++ {
		end := start + d.minDays - 1
		zone, ok := d.evaluate(series, start, end)
		if !ok {
			continue
		}
		if last := len(zones) - 1; last >= 0 && start <= zones[last].EndIndex {
			zones[last] = buildZone(series, zones[last].StartIndex, end)
			continue
		}
		zones = append(zones, zone)
	}
	return zones
}

// evaluate applies the volatility and relative-volume tests to [start, end].
// The following-volume average covers up to lookahead bars after end and is
// clipped to the bars that exist, so a partial look-ahead is still averaged. Only
// when no bar follows end does the window's own average stand in.
func (d *ConsolidationDetector) evaluate(series *models.Series, start, end int) (analysis.ConsolidationZone, bool) {
	zone := buildZone(series, start, end)
	if zone.Low <= 0 || zone.Volatility > d.maxVolatility {
		return zone, false
	}

	following := zone.AvgVolume
	if end+1 < series.Len() {
		last := end + d.lookahead
		if last > series.Len()-1 {
			last = series.Len() - 1
		}
		following = series.MeanVolume(end+1, last)
	}

	return zone, zone.AvgVolume <= following*d.quietRatio
}

func buildZone(series *models.Series, start, end int) analysis.ConsolidationZone {
	low := series.MinLow(start, end)
	high := series.MaxHigh(start, end)
	zone := analysis.ConsolidationZone{
		StartIndex: start,
		EndIndex:   end,
		StartDate:  series.Bars[start].Date,
		EndDate:    series.Bars[end].Date,
		Low:        low,
		High:       high,
		AvgVolume:  series.MeanVolume(start, end),
	}
	if low > 0 {
		zone.Volatility = (high - low) / low
	}
	return zone
}
