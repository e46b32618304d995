package patterns

import (
	"fmt"
	"strings"

	"nscan/internal/analysis"
	"nscan/internal/models"
)

// Mode selects how N patterns are anchored.
type Mode string

const (
	// ModeStandalone scans recent bars for N patterns without a consolidation anchor.
	ModeStandalone Mode = "standalone"
	// ModeBreakout scans the bars after each consolidation zone.
	ModeBreakout Mode = "breakout"
)

// ParseModes parses "standalone", "breakout" or "all".
func ParseModes(s string) ([]Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ModeStandalone):
		return []Mode{ModeStandalone}, nil
	case string(ModeBreakout), "":
		return []Mode{ModeBreakout}, nil
	case "all", "both":
		return []Mode{ModeStandalone, ModeBreakout}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q (want standalone, breakout or all)", s)
	}
}

// Result is the detection output for one symbol in one mode.
type Result struct {
	Symbol   string
	Mode     Mode
	Bars     int
	Zones    []analysis.ConsolidationZone
	Patterns []analysis.Pattern
}

// Engine wires the detectors of one mode together. It holds no state between calls.
type Engine struct {
	params Params
	zones  *ConsolidationDetector
	nshape *NPatternDetector
	direct *DirectBreakoutDetector
}

// NewEngine creates an engine for the given parameters.
func NewEngine(p Params) *Engine {
	return &Engine{
		params: p,
		zones:  NewConsolidationDetector(p),
		nshape: NewNPatternDetector(p),
		direct: NewDirectBreakoutDetector(p),
	}
}

// Params returns the parameters the engine was built with.
func (e *Engine) Params() Params {
	return e.params
}

// Analyze runs detection for one series. The series is first restricted to the
// configured lookback window.
func (e *Engine) Analyze(series *models.Series, mode Mode) Result {
	series = series.LastMonths(e.params.LookbackMonths)
	result := Result{
		Symbol: series.Symbol,
		Mode:   mode,
		Bars:   series.Len(),
	}

	switch mode {
	case ModeStandalone:
		result.Patterns = e.nshape.Detect(series)
	case ModeBreakout:
		result.Zones = e.zones.Detect(series)
		detectors := []analysis.AnchoredDetector{e.nshape, e.direct}
		for _, zone := range result.Zones {
			for _, d := range detectors {
				result.Patterns = append(result.Patterns, d.DetectAfter(series, zone)...)
			}
		}
	}

	return result
}
