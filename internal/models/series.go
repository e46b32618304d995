package models

import (
	"fmt"
	"math"
	"time"

	"nscan/internal/analysis/indicators"
	"nscan/internal/errors"
)

// MAVolumePeriod is the window of the trailing volume mean carried by every series.
const MAVolumePeriod = 5

// Series is a validated, chronologically ordered sequence of daily bars for one symbol.
// It is read-only once built; detectors share it without copying.
type Series struct {
	Symbol    string
	Bars      []Bar
	MA5Volume []float64
}

// NewSeries validates bars and derives the trailing 5-bar volume mean.
// Dates must be strictly increasing; prices must be finite and positive with High >= Low.
func NewSeries(symbol string, bars []Bar) (*Series, error) {
	for i, b := range bars {
		if err := validateBar(b); err != nil {
			return nil, errors.NewDataError("bars", symbol,
				fmt.Sprintf("bar %d (%s)", i, b.Date.Format("2006-01-02")), err)
		}
		if i > 0 && !b.Date.After(bars[i-1].Date) {
			return nil, errors.NewDataError("bars", symbol,
				fmt.Sprintf("bar %d (%s) does not follow %s", i,
					b.Date.Format("2006-01-02"), bars[i-1].Date.Format("2006-01-02")),
				errors.ErrNonMonotonicDates)
		}
	}

	return &Series{
		Symbol:    symbol,
		Bars:      bars,
		MA5Volume: volumeMean(bars),
	}, nil
}

func validateBar(b Bar) error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return errors.Wrapf(errors.ErrInvalidBar, "price %v", v)
		}
	}
	if b.High < b.Low {
		return errors.Wrapf(errors.ErrInvalidBar, "high %v below low %v", b.High, b.Low)
	}
	if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
		return errors.Wrapf(errors.ErrInvalidBar, "volume %v", b.Volume)
	}
	return nil
}

func volumeMean(bars []Bar) []float64 {
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}
	return indicators.SMA(volumes, MAVolumePeriod)
}

// Len returns the number of bars.
func (s *Series) Len() int {
	return len(s.Bars)
}

// Date returns the date of bar i.
func (s *Series) Date(i int) time.Time {
	return s.Bars[i].Date
}

// SumVolume returns the total volume over the inclusive index range [from, to].
func (s *Series) SumVolume(from, to int) float64 {
	var total float64
	for i := from; i <= to; i++ {
		total += s.Bars[i].Volume
	}
	return total
}

// MeanVolume returns the average volume over the inclusive index range [from, to].
// An empty range yields 0.
func (s *Series) MeanVolume(from, to int) float64 {
	var volumes []float64
	for i := from; i <= to; i++ {
		volumes = append(volumes, s.Bars[i].Volume)
	}
	return indicators.Mean(volumes)
}

// MinLow returns the lowest low over the inclusive index range [from, to].
func (s *Series) MinLow(from, to int) float64 {
	low := math.Inf(1)
	for i := from; i <= to; i++ {
		low = math.Min(low, s.Bars[i].Low)
	}
	return low
}

// MaxHigh returns the highest high over the inclusive index range [from, to].
func (s *Series) MaxHigh(from, to int) float64 {
	high := math.Inf(-1)
	for i := from; i <= to; i++ {
		high = math.Max(high, s.Bars[i].High)
	}
	return high
}

// LastMonths returns a series restricted to the bars dated within n calendar months of
// the last bar. The volume mean is recomputed over the restricted bars. n <= 0 returns s.
func (s *Series) LastMonths(n int) *Series {
	if n <= 0 || len(s.Bars) == 0 {
		return s
	}
	cutoff := s.Bars[len(s.Bars)-1].Date.AddDate(0, -n, 0)
	start := 0
	for start < len(s.Bars) && s.Bars[start].Date.Before(cutoff) {
		start++
	}
	if start == 0 {
		return s
	}
	bars := s.Bars[start:]
	return &Series{
		Symbol:    s.Symbol,
		Bars:      bars,
		MA5Volume: volumeMean(bars),
	}
}
