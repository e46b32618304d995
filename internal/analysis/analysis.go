// Package analysis provides the shared result types for consolidation and
// N-shape breakout detection.
package analysis

import (
	"time"

	"nscan/internal/models"
)

// PatternDetector defines the interface for detectors that scan a whole series.
type PatternDetector interface {
	Name() string
	Detect(series *models.Series) []Pattern
}

// ZoneDetector finds consolidation zones in a series.
type ZoneDetector interface {
	Name() string
	Detect(series *models.Series) []ConsolidationZone
}

// AnchoredDetector scans the bars that follow a consolidation zone.
type AnchoredDetector interface {
	Name() string
	DetectAfter(series *models.Series, zone ConsolidationZone) []Pattern
}

// PatternType represents the shape of a confirmed pattern.
type PatternType string

const (
	PatternPositiveN      PatternType = "positive"
	PatternNegativeN      PatternType = "negative"
	PatternDirectBreakout PatternType = "direct_breakout"
)

// Classification returns a human-readable label for the pattern type.
func (t PatternType) Classification() string {
	switch t {
	case PatternPositiveN:
		return "N-shape breakout"
	case PatternNegativeN:
		return "inverted N breakdown"
	case PatternDirectBreakout:
		return "direct zone breakout"
	default:
		return string(t)
	}
}

// Bullish reports whether the pattern anticipates rising prices.
func (t PatternType) Bullish() bool {
	return t != PatternNegativeN
}

// ConsolidationZone is a contiguous range of bars with narrow price range and
// below-average volume relative to the bars that follow it.
type ConsolidationZone struct {
	StartIndex int
	EndIndex   int
	StartDate  time.Time
	EndDate    time.Time
	Low        float64
	High       float64
	Volatility float64
	AvgVolume  float64
}

// Days returns the number of bars in the zone.
func (z ConsolidationZone) Days() int {
	return z.EndIndex - z.StartIndex + 1
}

// Point is one of the four structural points of an N pattern.
type Point struct {
	Index int
	Date  time.Time
	Price float64
}

// Pattern is a confirmed structural pattern with its trade levels.
// Instances are built fully populated and not modified afterwards.
type Pattern struct {
	Symbol         string
	Type           PatternType
	Classification string

	S1 Point
	H1 Point
	S2 Point
	H2 Point

	FirstLeg      float64
	Retracement   float64
	BreakoutRatio float64
	Vol1          float64
	Vol2          float64
	Vol3          float64

	ConfirmDate time.Time
	Zone        *ConsolidationZone

	Entry      float64
	Stop       float64
	Target     float64
	RiskReward *float64

	SuggestedBuyDate  time.Time
	SuggestedBuyPrice float64
}

// ZoneEnd returns the end date of the anchoring zone, or the zero time.
func (p Pattern) ZoneEnd() time.Time {
	if p.Zone == nil {
		return time.Time{}
	}
	return p.Zone.EndDate
}
