package patterns

import (
	"sort"

	"nscan/internal/analysis/indicators"
	"nscan/internal/models"
)

// ChipAnalyzer estimates how traded volume is distributed across price over the
// most recent bars and how much of it sits in profit at the last close.
type ChipAnalyzer struct {
	window   int // bars considered
	minBars  int
	bins     int
	topBins  int
	posRange float64 // percent distance from the main peak treated as "within"
}

// NewChipAnalyzer creates a chip analyzer.
func NewChipAnalyzer() *ChipAnalyzer {
	return &ChipAnalyzer{
		window:   60,
		minBars:  30,
		bins:     20,
		topBins:  3,
		posRange: 10,
	}
}

func (c *ChipAnalyzer) Name() string {
	return "ChipAnalyzer"
}

// ChipBin is one price band of the distribution.
type ChipBin struct {
	Low    float64
	High   float64
	Mid    float64
	Volume float64
}

// ChipStats summarises a chip distribution.
type ChipStats struct {
	Bins          []ChipBin
	TotalVolume   float64
	Concentration float64 // share of volume in the top bins, percent
	Status        string
	Peaks         []ChipBin
	Valleys       []ChipBin
	PeakPrice     float64
	ValleyPrice   float64
	Position      string
	ProfitRatio   float64 // percent of volume whose typical price is below the last close
	AvgCost       float64
	CostDeviation float64 // percent distance of the last close from AvgCost
	CurrentPrice  float64
}

// Analyze returns nil when fewer than minBars bars are available or the
// window has no price range.
func (c *ChipAnalyzer) Analyze(bars []models.Bar) *ChipStats {
	if len(bars) < c.minBars {
		return nil
	}
	recent := bars
	if len(recent) > c.window {
		recent = recent[len(recent)-c.window:]
	}

	low, high := recent[0].Low, recent[0].High
	for _, b := range recent {
		if b.Low < low {
			low = b.Low
		}
		if b.High > high {
			high = b.High
		}
	}
	if high == low {
		return nil
	}

	stats := &ChipStats{CurrentPrice: recent[len(recent)-1].Close}
	stats.Bins = c.distribute(recent, low, high)

	volumes := make([]float64, len(stats.Bins))
	for i, bin := range stats.Bins {
		volumes[i] = bin.Volume
		stats.TotalVolume += bin.Volume
	}
	stats.Concentration = c.concentration(volumes, stats.TotalVolume)
	stats.Status = concentrationStatus(stats.Concentration)

	for i := 1; i < len(stats.Bins)-1; i++ {
		prev, cur, next := volumes[i-1], volumes[i], volumes[i+1]
		if cur > prev && cur > next {
			stats.Peaks = append(stats.Peaks, stats.Bins[i])
		} else if cur < prev && cur < next {
			stats.Valleys = append(stats.Valleys, stats.Bins[i])
		}
	}

	stats.Position = "unknown"
	if peak, ok := heaviest(stats.Peaks); ok {
		stats.PeakPrice = peak.Mid
		dist := (stats.CurrentPrice - peak.Mid) / peak.Mid * 100
		switch {
		case dist > c.posRange:
			stats.Position = "above peak"
		case dist < -c.posRange:
			stats.Position = "below peak"
		default:
			stats.Position = "within peak"
		}
	}
	if valley, ok := heaviest(stats.Valleys); ok {
		stats.ValleyPrice = valley.Mid
	}

	c.profit(recent, stats)
	return stats
}

// distribute credits each bar's volume to every bin its range overlaps.
func (c *ChipAnalyzer) distribute(bars []models.Bar, low, high float64) []ChipBin {
	size := (high - low) / float64(c.bins)
	bins := make([]ChipBin, c.bins)
	for i := range bins {
		bins[i].Low = low + float64(i)*size
		bins[i].High = low + float64(i+1)*size
		bins[i].Mid = (bins[i].Low + bins[i].High) / 2
		for _, b := range bars {
			if b.Low <= bins[i].High && b.High >= bins[i].Low {
				bins[i].Volume += b.Volume
			}
		}
	}
	return bins
}

func (c *ChipAnalyzer) concentration(volumes []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	sorted := append([]float64(nil), volumes...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	n := c.topBins
	if n > len(sorted) {
		n = len(sorted)
	}
	var top float64
	for _, v := range sorted[:n] {
		top += v
	}
	return top / total * 100
}

func (c *ChipAnalyzer) profit(bars []models.Bar, stats *ChipStats) {
	var total, inProfit, weighted float64
	for _, b := range bars {
		cost := b.TypicalPrice()
		total += b.Volume
		weighted += cost * b.Volume
		if cost < stats.CurrentPrice {
			inProfit += b.Volume
		}
	}

	stats.AvgCost = stats.CurrentPrice
	if total > 0 {
		stats.ProfitRatio = inProfit / total * 100
		stats.AvgCost = weighted / total
	}
	if stats.AvgCost > 0 {
		stats.CostDeviation = (stats.CurrentPrice - stats.AvgCost) / stats.AvgCost * 100
	}
}

func concentrationStatus(pct float64) string {
	switch {
	case pct > 70:
		return "highly concentrated"
	case pct > 50:
		return "moderately concentrated"
	case pct > 30:
		return "dispersed"
	default:
		return "highly dispersed"
	}
}

func heaviest(bins []ChipBin) (ChipBin, bool) {
	volumes := make([]float64, len(bins))
	for i, b := range bins {
		volumes[i] = b.Volume
	}
	idx := indicators.Highest(volumes)
	if idx < 0 {
		return ChipBin{}, false
	}
	return bins[idx], true
}
