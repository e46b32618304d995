package patterns

import (
	"math"
	"time"

	"nscan/internal/analysis"
	"nscan/internal/models"
)

// NPatternDetector finds four-point N shapes: a first leg, a shallow pullback on
// quiet volume and a second leg that breaks the first extreme on expanding volume.
// Candidate points sit at fixed offsets from the scan position, so every position is
// evaluated independently and overlapping confirmations are all reported.
type NPatternDetector struct {
	params Params
	levels *LevelCalculator
}

// NewNPatternDetector creates an N pattern detector.
func NewNPatternDetector(p Params) *NPatternDetector {
	return &NPatternDetector{
		params: p,
		levels: NewLevelCalculator(p),
	}
}

func (d *NPatternDetector) Name() string {
	return "NPatternDetector"
}

// candidate holds the indices of the four points in chronological order: origin of
// the first leg, end of the first leg, end of the pullback and the confirmation bar.
// For a positive N these are S1, H1, S2, H2; for a negative N they are H1, S1, H2, S2.
type candidate struct {
	typ                      analysis.PatternType
	origin, peak, pull, conf int
}

// Detect scans the whole series without a zone anchor and reports positive and
// negative patterns. With v verification days, position i anchors a positive N at
// S1=i-v-2, H1=i-v-1, S2=i-v, H2=i and a negative N at H1=i-v-2, S1=i-v-1, H2=i-v, S2=i.
func (d *NPatternDetector) Detect(series *models.Series) []analysis.Pattern {
	v := d.params.VerificationDays
	var patterns []analysis.Pattern

	for i := v + 2; i < series.Len()-v; i++ {
		for _, c := range []candidate{
			{typ: analysis.PatternPositiveN, origin: i - v - 2, peak: i - v - 1, pull: i - v, conf: i},
			{typ: analysis.PatternNegativeN, origin: i - v - 2, peak: i - v - 1, pull: i - v, conf: i},
		} {
			p, ok := d.evaluate(series, c, nil)
			if !ok || !d.inTargetMonth(p.ConfirmDate) {
				continue
			}
			patterns = append(patterns, p)
		}
	}

	return patterns
}

// DetectAfter scans the bars following a consolidation zone for positive patterns
// whose first leg clears the zone top. Position i anchors S1=i-2, H1=i-1, S2=i, H2=i+v.
func (d *NPatternDetector) DetectAfter(series *models.Series, zone analysis.ConsolidationZone) []analysis.Pattern {
	v := d.params.VerificationDays
	first := zone.EndIndex + 1
	if first+v+3 >= series.Len() {
		return nil
	}

	var patterns []analysis.Pattern
	for i := first; i < series.Len()-v; i++ {
		c := candidate{typ: analysis.PatternPositiveN, origin: i - 2, peak: i - 1, pull: i, conf: i + v}
		if p, ok := d.evaluate(series, c, &zone); ok {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func (d *NPatternDetector) inTargetMonth(t time.Time) bool {
	if d.params.TargetYear == 0 || d.params.TargetMonth == 0 {
		return true
	}
	return t.Year() == d.params.TargetYear && int(t.Month()) == d.params.TargetMonth
}

// evaluate runs the rule gates in order and builds the pattern when all pass.
func (d *NPatternDetector) evaluate(series *models.Series, c candidate, zone *analysis.ConsolidationZone) (analysis.Pattern, bool) {
	bars := series.Bars
	p := d.params
	positive := c.typ == analysis.PatternPositiveN

	var s1, h1, s2, h2 int
	if positive {
		s1, h1, s2, h2 = c.origin, c.peak, c.pull, c.conf
	} else {
		h1, s1, h2, s2 = c.origin, c.peak, c.pull, c.conf
	}
	S1, H1 := bars[s1].Low, bars[h1].High
	S2, H2 := bars[s2].Low, bars[h2].High

	if zone != nil && !(H1 > zone.High) {
		return analysis.Pattern{}, false
	}

	if positive && !(S2 > S1 && H2 > H1) {
		return analysis.Pattern{}, false
	}
	if !positive && !(H2 < H1 && S2 < S1) {
		return analysis.Pattern{}, false
	}

	firstLeg := H1 - S1
	if firstLeg <= 0 {
		return analysis.Pattern{}, false
	}

	var retracement float64
	if positive {
		retracement = (H1 - S2) / firstLeg
	} else {
		retracement = (H2 - S1) / firstLeg
	}
	if retracement > p.RetracementThreshold {
		return analysis.Pattern{}, false
	}
	// Both orientations measure the pullback window from H1 to S2.
	if models.DaysBetween(bars[h1].Date, bars[s2].Date) > p.MaxRetracementDays {
		return analysis.Pattern{}, false
	}

	if zone != nil && S2 < zone.High*(1-p.StopBuffer) {
		return analysis.Pattern{}, false
	}

	ma := series.MA5Volume[h1]
	if math.IsNaN(ma) {
		return analysis.Pattern{}, false
	}
	vol1 := series.SumVolume(c.origin, c.peak)
	vol2 := series.SumVolume(c.peak, c.pull)
	vol3 := series.SumVolume(c.pull, c.conf)
	if vol1 < ma*p.VolumeSurgeMultiple || vol2 > vol1*p.VolumeQuietMultiple || vol3 < vol1 {
		return analysis.Pattern{}, false
	}

	var breakout float64
	if positive {
		breakout = (H2 - H1) / H1
	} else {
		breakout = (S1 - S2) / S1
	}
	if breakout < p.BreakoutConfirmMargin {
		return analysis.Pattern{}, false
	}

	last := c.conf + p.VerificationDays
	if last >= series.Len() {
		return analysis.Pattern{}, false
	}
	if positive && series.MinLow(c.conf, last) < H1 {
		return analysis.Pattern{}, false
	}
	if !positive && series.MaxHigh(c.conf, last) > H1 {
		return analysis.Pattern{}, false
	}

	pattern := analysis.Pattern{
		Symbol:            series.Symbol,
		Type:              c.typ,
		Classification:    c.typ.Classification(),
		S1:                analysis.Point{Index: s1, Date: bars[s1].Date, Price: S1},
		H1:                analysis.Point{Index: h1, Date: bars[h1].Date, Price: H1},
		S2:                analysis.Point{Index: s2, Date: bars[s2].Date, Price: S2},
		H2:                analysis.Point{Index: h2, Date: bars[h2].Date, Price: H2},
		FirstLeg:          firstLeg,
		Retracement:       retracement,
		BreakoutRatio:     breakout,
		Vol1:              vol1,
		Vol2:              vol2,
		Vol3:              vol3,
		ConfirmDate:       bars[c.conf].Date,
		SuggestedBuyDate:  bars[s2].Date,
		SuggestedBuyPrice: bars[s2].Close,
	}
	if zone != nil {
		z := *zone
		pattern.Zone = &z
	}
	d.levels.Apply(&pattern)

	return pattern, true
}
