package patterns

import (
	"nscan/internal/analysis"
)

// LevelCalculator derives entry, stop, target and risk/reward for a pattern.
type LevelCalculator struct {
	targetMultiple float64
	stopBuffer     float64
	entryBuffer    float64
}

// NewLevelCalculator creates a level calculator.
func NewLevelCalculator(p Params) *LevelCalculator {
	return &LevelCalculator{
		targetMultiple: p.TargetMultiple,
		stopBuffer:     p.StopBuffer,
		entryBuffer:    p.EntryBuffer,
	}
}

// Apply fills the trade levels of p.
//
// Entry is the confirmation price: H2, or S2 for a negative pattern. The stop sits
// stopBuffer below the zone top when the pattern is anchored to a zone, otherwise
// entryBuffer above H1. The target projects the first leg times targetMultiple from
// the entry in the pattern's direction. RiskReward is left nil when entry equals stop.
func (c *LevelCalculator) Apply(p *analysis.Pattern) {
	entry := p.H2.Price
	if p.Type == analysis.PatternNegativeN {
		entry = p.S2.Price
	}

	var stop float64
	if p.Zone != nil {
		stop = p.Zone.High * (1 - c.stopBuffer)
	} else {
		stop = p.H1.Price * (1 + c.entryBuffer)
	}

	projection := p.FirstLeg * c.targetMultiple
	target := entry + projection
	if !p.Type.Bullish() {
		target = entry - projection
	}

	p.Entry = entry
	p.Stop = stop
	p.Target = target
	p.RiskReward = RiskReward(entry, stop, target)
}

// RiskReward returns (target-entry)/(entry-stop), or nil when entry equals stop.
func RiskReward(entry, stop, target float64) *float64 {
	risk := entry - stop
	if risk == 0 {
		return nil
	}
	rr := (target - entry) / risk
	return &rr
}
