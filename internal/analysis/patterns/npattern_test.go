package patterns

import (
	"math"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"nscan/internal/analysis"
	"nscan/internal/models"
)

func countType(patterns []analysis.Pattern, typ analysis.PatternType) int {
	n := 0
	for _, p := range patterns {
		if p.Type == typ {
			n++
		}
	}
	return n
}

func TestEngine_BreakoutEndToEnd(t *testing.T) {
	series := mustSeries(t, breakoutBars())
	result := NewEngine(breakoutTestParams()).Analyze(series, ModeBreakout)

	if len(result.Zones) != 1 {
		t.Fatalf("zones = %d, want 1: %+v", len(result.Zones), result.Zones)
	}
	zone := result.Zones[0]
	if zone.StartIndex != 6 || zone.EndIndex != 21 {
		t.Errorf("zone = [%d,%d], want [6,21]", zone.StartIndex, zone.EndIndex)
	}
	if zone.High != 12 {
		t.Errorf("zone high = %v, want 12", zone.High)
	}

	if got := countType(result.Patterns, analysis.PatternPositiveN); got != 1 {
		t.Fatalf("positive patterns = %d, want 1", got)
	}
	var p analysis.Pattern
	for _, cand := range result.Patterns {
		if cand.Type == analysis.PatternPositiveN {
			p = cand
		}
	}

	if p.Entry != 13.5 {
		t.Errorf("entry = %v, want 13.5", p.Entry)
	}
	if p.S1.Index != 21 || p.H1.Index != 22 || p.S2.Index != 23 || p.H2.Index != 25 {
		t.Errorf("points = %d,%d,%d,%d, want 21,22,23,25", p.S1.Index, p.H1.Index, p.S2.Index, p.H2.Index)
	}
	if !approx(p.Stop, 12*0.98) {
		t.Errorf("stop = %v, want %v", p.Stop, 12*0.98)
	}
	if !approx(p.Target, 13.5+p.FirstLeg*1.5) {
		t.Errorf("target = %v", p.Target)
	}
	if p.RiskReward == nil || *p.RiskReward <= 0 {
		t.Errorf("risk reward = %v, want positive", p.RiskReward)
	}
	if p.Zone == nil || !p.Zone.EndDate.Equal(day(21)) {
		t.Errorf("zone not attached to pattern")
	}
	if !p.ConfirmDate.Equal(day(25)) {
		t.Errorf("confirm date = %v, want %v", p.ConfirmDate, day(25))
	}
	if p.Vol1 != 4000 || p.Vol2 != 2500 || p.Vol3 != 5000 {
		t.Errorf("volumes = %v/%v/%v, want 4000/2500/5000", p.Vol1, p.Vol2, p.Vol3)
	}
}

func TestEngine_BreakoutPullbackVolumeTooHeavy(t *testing.T) {
	bars := breakoutBars()
	bars[23].Volume = 1000
	series := mustSeries(t, bars)

	result := NewEngine(breakoutTestParams()).Analyze(series, ModeBreakout)
	if got := countType(result.Patterns, analysis.PatternPositiveN); got != 0 {
		t.Errorf("positive patterns = %d, want 0", got)
	}
}

func TestNPatternDetector_AnchoredSkipsZoneNearEnd(t *testing.T) {
	series := mustSeries(t, breakoutBars())
	zone := analysis.ConsolidationZone{StartIndex: 10, EndIndex: 24, High: 12, Low: 9.9}

	if got := NewNPatternDetector(breakoutTestParams()).DetectAfter(series, zone); len(got) != 0 {
		t.Errorf("expected no patterns when the zone ends too close to the data end, got %d", len(got))
	}
}

func TestNPatternDetector_StandalonePositive(t *testing.T) {
	series := mustSeries(t, defaultStandaloneBars())
	patterns := NewNPatternDetector(standaloneTestParams()).Detect(series)

	if len(patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(patterns))
	}
	p := patterns[0]
	if p.Type != analysis.PatternPositiveN {
		t.Fatalf("type = %s, want positive", p.Type)
	}
	if p.S1.Price != 10 || p.H1.Price != 12 || p.S2.Price != 11.2 || p.H2.Price != 12.5 {
		t.Errorf("prices = %v/%v/%v/%v", p.S1.Price, p.H1.Price, p.S2.Price, p.H2.Price)
	}
	if !approx(p.Retracement, 0.4) {
		t.Errorf("retracement = %v, want 0.4", p.Retracement)
	}
	if !approx(p.Stop, 12*1.01) {
		t.Errorf("stop = %v, want %v", p.Stop, 12*1.01)
	}
	if p.Zone != nil {
		t.Error("standalone pattern should not carry a zone")
	}
	if !p.SuggestedBuyDate.Equal(day(8)) || p.SuggestedBuyPrice != 11.4 {
		t.Errorf("suggested buy = %v @ %v", p.SuggestedBuyDate, p.SuggestedBuyPrice)
	}
}

func TestNPatternDetector_StandaloneNegative(t *testing.T) {
	series := mustSeries(t, mirror(defaultStandaloneBars()))
	patterns := NewNPatternDetector(standaloneTestParams()).Detect(series)

	if len(patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(patterns))
	}
	p := patterns[0]
	if p.Type != analysis.PatternNegativeN {
		t.Fatalf("type = %s, want negative", p.Type)
	}
	if !(p.H1.Index < p.S1.Index && p.S1.Index < p.H2.Index && p.H2.Index < p.S2.Index) {
		t.Errorf("points out of order: %+v", p)
	}
	if p.Entry != p.S2.Price {
		t.Errorf("entry = %v, want S2 %v", p.Entry, p.S2.Price)
	}
	if p.Target >= p.Entry {
		t.Errorf("target %v should lie below entry %v", p.Target, p.Entry)
	}
	if p.RiskReward == nil || *p.RiskReward <= 0 {
		t.Errorf("risk reward = %v, want positive", p.RiskReward)
	}
}

func TestNPatternDetector_RetracementBoundary(t *testing.T) {
	params := standaloneTestParams()

	bars := defaultStandaloneBars()
	bars[8].Low = 11.0 // (12-11)/(12-10) == 0.5
	got := NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if !confirmedOn(got, analysis.PatternPositiveN, day(10)) {
		t.Error("retracement exactly at threshold should be accepted")
	}

	bars[8].Low = 10.99
	got = NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if confirmedOn(got, analysis.PatternPositiveN, day(10)) {
		t.Error("retracement above threshold should be rejected")
	}
}

func TestNPatternDetector_SurgeVolumeBoundary(t *testing.T) {
	params := standaloneTestParams()
	params.VolumeSurgeMultiple = 1.5

	// ma5 at H1 = (3*700 + 450 + 450) / 5 = 600; vol1 = 900 = 600 * 1.5
	bars := standaloneBars(700, 450, 450, 50, 5000)
	got := NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if !confirmedOn(got, analysis.PatternPositiveN, day(10)) {
		t.Error("first-leg volume exactly at the surge threshold should be accepted")
	}

	bars = standaloneBars(700, 450, 449, 50, 5000)
	got = NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if confirmedOn(got, analysis.PatternPositiveN, day(10)) {
		t.Error("first-leg volume below the surge threshold should be rejected")
	}
}

func TestNPatternDetector_QuietVolumeBoundary(t *testing.T) {
	params := standaloneTestParams()
	params.VolumeQuietMultiple = 0.5

	// vol1 = 6000, vol2 = 3000 + 0 = 6000 * 0.5
	bars := standaloneBars(1000, 3000, 3000, 0, 6000)
	got := NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if !confirmedOn(got, analysis.PatternPositiveN, day(10)) {
		t.Error("pullback volume exactly at the quiet threshold should be accepted")
	}

	bars = standaloneBars(1000, 3000, 3000, 1, 6000)
	got = NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if confirmedOn(got, analysis.PatternPositiveN, day(10)) {
		t.Error("pullback volume above the quiet threshold should be rejected")
	}
}

func TestNPatternDetector_VerificationFailure(t *testing.T) {
	bars := defaultStandaloneBars()
	bars[11] = bar(11, 12.0, 12.4, 11.9, 12.2, 1500)

	got := NewNPatternDetector(standaloneTestParams()).Detect(mustSeries(t, bars))
	if confirmedOn(got, analysis.PatternPositiveN, day(10)) {
		t.Error("a verification bar trading below H1 should reject the pattern")
	}
}

func TestNPatternDetector_PullbackTooLong(t *testing.T) {
	bars := defaultStandaloneBars()
	// Push the calendar forward from S2 so that H1 -> S2 spans 12 days.
	for i := 8; i < len(bars); i++ {
		bars[i].Date = bars[i].Date.AddDate(0, 0, 11)
	}

	got := NewNPatternDetector(standaloneTestParams()).Detect(mustSeries(t, bars))
	if len(got) != 0 {
		t.Errorf("patterns = %d, want 0 when the pullback exceeds the day limit", len(got))
	}
}

func TestNPatternDetector_NegativeRetracementBoundary(t *testing.T) {
	params := standaloneTestParams()

	bars := negativeStandaloneBars(1000, 3000, 3000, 500, 5000)
	bars[8].High = 19.0 // (19-18)/(20-18) == 0.5
	got := NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if !confirmedOn(got, analysis.PatternNegativeN, day(10)) {
		t.Error("retracement exactly at threshold should be accepted")
	}

	bars[8].High = 19.01
	got = NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if confirmedOn(got, analysis.PatternNegativeN, day(10)) {
		t.Error("retracement above threshold should be rejected")
	}
}

func TestNPatternDetector_NegativePullbackDays(t *testing.T) {
	bars := negativeStandaloneBars(1000, 3000, 3000, 500, 5000)
	series := mustSeries(t, bars)

	tests := []struct {
		name    string
		maxDays int
		want    bool
	}{
		// H1 -> S2 spans 4 days while S1 -> S2 spans 3.
		{"H1 to S2 within limit", 4, true},
		{"H1 to S2 beyond limit", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := standaloneTestParams()
			params.MaxRetracementDays = tt.maxDays
			got := NewNPatternDetector(params).Detect(series)
			if confirmedOn(got, analysis.PatternNegativeN, day(10)) != tt.want {
				t.Errorf("MaxRetracementDays=%d: confirmed = %v, want %v", tt.maxDays, !tt.want, tt.want)
			}
		})
	}
}

func TestNPatternDetector_NegativePullbackTooLong(t *testing.T) {
	bars := negativeStandaloneBars(1000, 3000, 3000, 500, 5000)
	// Push the calendar forward from S1 so that H1 -> S2 spans 12 days.
	for i := 7; i < len(bars); i++ {
		bars[i].Date = bars[i].Date.AddDate(0, 0, 8)
	}

	got := NewNPatternDetector(standaloneTestParams()).Detect(mustSeries(t, bars))
	if confirmedOn(got, analysis.PatternNegativeN, day(18)) {
		t.Error("a negative pullback beyond the day limit should be rejected")
	}
}

func TestNPatternDetector_NegativeSurgeVolumeBoundary(t *testing.T) {
	params := standaloneTestParams()
	params.VolumeSurgeMultiple = 1.5
	params.VolumeQuietMultiple = 2

	// ma5 at H1 = (4*100 + 10) / 5 = 82; vol1 = 10 + 113 = 123 = 82 * 1.5.
	// ma5 at S1 would be 84.6 and reject the same leg.
	bars := negativeStandaloneBars(100, 10, 113, 0, 5000)
	got := NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if !confirmedOn(got, analysis.PatternNegativeN, day(10)) {
		t.Error("first-leg volume exactly at the surge threshold should be accepted")
	}

	bars = negativeStandaloneBars(100, 10, 112, 0, 5000)
	got = NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if confirmedOn(got, analysis.PatternNegativeN, day(10)) {
		t.Error("first-leg volume below the surge threshold should be rejected")
	}
}

func TestNPatternDetector_NegativeBreakoutBoundary(t *testing.T) {
	params := standaloneTestParams()
	params.BreakoutConfirmMargin = 0.03125

	bars := negativeStandaloneBars(1000, 3000, 3000, 500, 5000)
	bars[10].Low = 17.4375 // (18-17.4375)/18 == 0.03125
	got := NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if !confirmedOn(got, analysis.PatternNegativeN, day(10)) {
		t.Error("breakdown exactly at the confirm margin should be accepted")
	}
	if len(got) == 1 && !approx(got[0].BreakoutRatio, 0.03125) {
		t.Errorf("breakout ratio = %v, want 0.03125", got[0].BreakoutRatio)
	}

	bars[10].Low = 17.44
	got = NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if confirmedOn(got, analysis.PatternNegativeN, day(10)) {
		t.Error("breakdown short of the confirm margin should be rejected")
	}
}

func TestNPatternDetector_NegativeVerificationFailure(t *testing.T) {
	params := standaloneTestParams()

	bars := negativeStandaloneBars(1000, 3000, 3000, 500, 5000)
	bars[11].High = 20.0
	got := NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if !confirmedOn(got, analysis.PatternNegativeN, day(10)) {
		t.Error("a verification high touching H1 should be accepted")
	}

	bars[11].High = 20.4
	got = NewNPatternDetector(params).Detect(mustSeries(t, bars))
	if confirmedOn(got, analysis.PatternNegativeN, day(10)) {
		t.Error("a verification bar trading above H1 should reject the pattern")
	}
}

func TestNPatternDetector_TargetMonth(t *testing.T) {
	series := mustSeries(t, defaultStandaloneBars())

	params := standaloneTestParams()
	params.TargetYear, params.TargetMonth = 2024, 1
	if got := NewNPatternDetector(params).Detect(series); len(got) != 1 {
		t.Errorf("patterns in target month = %d, want 1", len(got))
	}

	params.TargetMonth = 2
	if got := NewNPatternDetector(params).Detect(series); len(got) != 0 {
		t.Errorf("patterns outside target month = %d, want 0", len(got))
	}
}

func TestNPatternDetector_ShortSeries(t *testing.T) {
	series := mustSeries(t, defaultStandaloneBars()[:4])
	if got := NewNPatternDetector(standaloneTestParams()).Detect(series); len(got) != 0 {
		t.Errorf("patterns = %d, want 0", len(got))
	}
}

// randomWalk builds a valid bar series from per-bar returns and volumes.
func randomWalk(returns, volumes []float64) []models.Bar {
	bars := make([]models.Bar, len(returns))
	price := 10.0
	for i, r := range returns {
		open := price
		price = math.Max(0.5, price*(1+r))
		spread := math.Abs(r)/2 + 0.005
		bars[i] = models.Bar{
			Date:   day(i),
			Open:   open,
			High:   math.Max(open, price) * (1 + spread),
			Low:    math.Min(open, price) * (1 - spread),
			Close:  price,
			Volume: volumes[i],
		}
	}
	return bars
}

// looseParams accepts most shapes so that random walks produce patterns.
func looseParams() Params {
	p := standaloneTestParams()
	p.RetracementThreshold = 10
	p.MaxRetracementDays = 30
	p.VolumeSurgeMultiple = 0.01
	p.VolumeQuietMultiple = 100
	p.BreakoutConfirmMargin = 0
	p.VerificationDays = 1
	return p
}

// Property: every emitted pattern respects the structural ordering of its points.
func TestProperty_PatternOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("points are ordered in time and price", prop.ForAll(
		func(returns, volumes []float64) bool {
			series, err := models.NewSeries("RW", randomWalk(returns, volumes))
			if err != nil {
				return false
			}
			for _, p := range NewNPatternDetector(looseParams()).Detect(series) {
				switch p.Type {
				case analysis.PatternPositiveN:
					if !(p.S1.Index < p.H1.Index && p.H1.Index < p.S2.Index && p.S2.Index < p.H2.Index) {
						return false
					}
					if !(p.S2.Price > p.S1.Price && p.H2.Price > p.H1.Price) {
						return false
					}
				case analysis.PatternNegativeN:
					if !(p.H1.Index < p.S1.Index && p.S1.Index < p.H2.Index && p.H2.Index < p.S2.Index) {
						return false
					}
					if !(p.H2.Price < p.H1.Price && p.S2.Price < p.S1.Price) {
						return false
					}
				}
				if p.FirstLeg <= 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(60, gen.Float64Range(-0.06, 0.06)),
		gen.SliceOfN(60, gen.Float64Range(100, 10000)),
	))

	properties.TestingRun(t)
}

// Property: detection is a pure function of its input.
func TestProperty_DetectionIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("repeated runs are identical", prop.ForAll(
		func(returns, volumes []float64) bool {
			series, err := models.NewSeries("RW", randomWalk(returns, volumes))
			if err != nil {
				return false
			}
			params := looseParams()
			params.ConsolidationMinDays = 10
			params.ConsolidationMaxVolatility = 0.5
			params.ConsolidationVolumeQuietRatio = 2
			engine := NewEngine(params)

			first := engine.Analyze(series, ModeBreakout)
			second := engine.Analyze(series, ModeBreakout)
			standalone1 := engine.Analyze(series, ModeStandalone)
			standalone2 := engine.Analyze(series, ModeStandalone)
			return reflect.DeepEqual(first, second) && reflect.DeepEqual(standalone1, standalone2)
		},
		gen.SliceOfN(80, gen.Float64Range(-0.05, 0.05)),
		gen.SliceOfN(80, gen.Float64Range(100, 10000)),
	))

	properties.TestingRun(t)
}

// Property: anchored patterns clear the zone top and confirm after the zone ends.
func TestProperty_AnchoredPatternsFollowZone(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("anchored patterns sit above their zone", prop.ForAll(
		func(returns, volumes []float64) bool {
			series, err := models.NewSeries("RW", randomWalk(returns, volumes))
			if err != nil {
				return false
			}
			params := looseParams()
			params.ConsolidationMinDays = 10
			params.ConsolidationMaxVolatility = 0.5
			params.ConsolidationVolumeQuietRatio = 2

			for _, p := range NewEngine(params).Analyze(series, ModeBreakout).Patterns {
				if p.Zone == nil || !p.ConfirmDate.After(p.Zone.EndDate) {
					return false
				}
				if p.Type == analysis.PatternPositiveN && !(p.H1.Price > p.Zone.High) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(80, gen.Float64Range(-0.05, 0.05)),
		gen.SliceOfN(80, gen.Float64Range(100, 10000)),
	))

	properties.TestingRun(t)
}
