package patterns

import (
	"math"
	"testing"
	"time"

	"nscan/internal/analysis"
	"nscan/internal/models"
)

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func bar(i int, o, h, l, c, v float64) models.Bar {
	return models.Bar{Date: day(i), Open: o, High: h, Low: l, Close: c, Volume: v}
}

func flat(i int, v float64) models.Bar {
	return bar(i, 10, 10.1, 9.9, 10, v)
}

func mustSeries(t *testing.T, bars []models.Bar) *models.Series {
	t.Helper()
	s, err := models.NewSeries("TEST", bars)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	return s
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// breakoutBars is thirty bars: a flat base at 10, a three-bar surge to 13 on
// doubled volume, a two-bar pullback to 12 on light volume, a surge to 13.5 and
// a few stable bars above 13.
func breakoutBars() []models.Bar {
	bars := make([]models.Bar, 0, 30)
	for i := 0; i < 20; i++ {
		bars = append(bars, flat(i, 1000))
	}
	bars = append(bars,
		bar(20, 10, 11, 10, 11, 2000),
		bar(21, 11, 12, 10.8, 12, 2000),
		bar(22, 12, 13, 11.9, 13, 2000),
		bar(23, 13, 13, 12, 12.5, 500),
		bar(24, 12.5, 12.6, 12, 12.2, 500),
		bar(25, 13.1, 13.5, 13.05, 13.4, 4000),
		bar(26, 13.4, 13.5, 13.2, 13.3, 3000),
		bar(27, 13.3, 13.4, 13.1, 13.2, 1500),
		bar(28, 13.2, 13.4, 13.05, 13.3, 1500),
		bar(29, 13.3, 13.45, 13.1, 13.4, 1500),
	)
	return bars
}

// breakoutTestParams scales the consolidation window to the thirty-bar fixture.
func breakoutTestParams() Params {
	p := BreakoutParams()
	p.ConsolidationMinDays = 10
	p.LookbackMonths = 0
	return p
}

// standaloneBars is fourteen bars holding one positive N at S1=6, H1=7, S2=8, H2=10
// with two verification bars. Leg volumes are x6, x7, x8, x10 over a base of v.
func standaloneBars(v, x6, x7, x8, x10 float64) []models.Bar {
	bars := make([]models.Bar, 0, 14)
	for i := 0; i < 6; i++ {
		bars = append(bars, flat(i, v))
	}
	bars = append(bars,
		bar(6, 10.1, 10.5, 10.0, 10.4, x6),
		bar(7, 10.7, 12.0, 10.6, 11.9, x7),
		bar(8, 11.7, 11.8, 11.2, 11.4, x8),
		bar(9, 11.4, 11.6, 10.5, 11.5, 600),
		bar(10, 12.2, 12.5, 12.1, 12.4, x10),
		bar(11, 12.3, 12.4, 12.05, 12.2, 1500),
		bar(12, 12.2, 12.45, 12.1, 12.3, 1500),
		bar(13, 12.3, 12.4, 12.1, 12.3, 1500),
	)
	return bars
}

func defaultStandaloneBars() []models.Bar {
	return standaloneBars(1000, 3000, 3000, 500, 5000)
}

func standaloneTestParams() Params {
	p := StandaloneParams()
	p.LookbackMonths = 0
	return p
}

// mirror reflects prices around 15 so that a rising fixture becomes a falling one.
func mirror(bars []models.Bar) []models.Bar {
	out := make([]models.Bar, len(bars))
	for i, b := range bars {
		out[i] = models.Bar{
			Date:   b.Date,
			Open:   30 - b.Open,
			High:   30 - b.Low,
			Low:    30 - b.High,
			Close:  30 - b.Close,
			Volume: b.Volume,
		}
	}
	return out
}

// negativeStandaloneBars mirrors standaloneBars into a negative N at H1=6, S1=7,
// H2=8, S2=10. H1 is 20.0 and S1 is 18.0.
func negativeStandaloneBars(v, x6, x7, x8, x10 float64) []models.Bar {
	return mirror(standaloneBars(v, x6, x7, x8, x10))
}

func confirmedOn(patterns []analysis.Pattern, typ analysis.PatternType, d time.Time) bool {
	for _, p := range patterns {
		if p.Type == typ && p.ConfirmDate.Equal(d) {
			return true
		}
	}
	return false
}
