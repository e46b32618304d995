package patterns

import (
	"fmt"
	"math"

	"nscan/internal/analysis/indicators"
	"nscan/internal/models"
)

// ShapeKind names a descriptive swing shape.
type ShapeKind string

const (
	ShapeSwingN       ShapeKind = "swing_n"
	ShapeVReversal    ShapeKind = "v_reversal"
	ShapeDoubleBottom ShapeKind = "double_bottom"
	ShapeHeadShoulder ShapeKind = "head_shoulder_bottom"
	ShapeTriangle     ShapeKind = "triangle"
	ShapeBox          ShapeKind = "box"
	ShapeRisingChan   ShapeKind = "rising_channel"
	ShapeFallingChan  ShapeKind = "falling_channel"
	ShapeRoundBottom  ShapeKind = "rounding_bottom"
)

// Shape is a descriptive label derived from close-price extrema. Shapes are context
// for a report; they do not gate pattern emission.
type Shape struct {
	Kind  ShapeKind
	Label string
	Value float64
}

// SwingAnalyzer labels the most recent swing structure of a series.
type SwingAnalyzer struct {
	window       int
	minBars      int
	maxRetrace   float64
	vMoveRatio   float64
	bottomTol    float64
	necklineRise float64

	// Range shapes.
	triangleShrink float64
	triangleRange  float64
	boxRange       float64
	boxTouches     int
	channelFit     float64
}

// NewSwingAnalyzer creates a swing analyzer using the given extremum half-window.
func NewSwingAnalyzer(window int) *SwingAnalyzer {
	return &SwingAnalyzer{
		window:       window,
		minBars:      20,
		maxRetrace:   0.5,
		vMoveRatio:   0.15,
		bottomTol:    0.05,
		necklineRise: 0.10,

		triangleShrink: 0.6,
		triangleRange:  0.15,
		boxRange:       0.2,
		boxTouches:     3,
		channelFit:     0.1,
	}
}

func (a *SwingAnalyzer) Name() string {
	return "SwingAnalyzer"
}

// Describe returns every shape the latest extrema support.
func (a *SwingAnalyzer) Describe(bars []models.Bar) []Shape {
	if len(bars) < a.minBars {
		return nil
	}

	closes := Closes(bars)
	ext := FindExtrema(closes, a.window)

	var shapes []Shape
	if s, ok := a.swingN(closes, ext); ok {
		shapes = append(shapes, s)
	}
	if s, ok := a.vReversal(closes, ext); ok {
		shapes = append(shapes, s)
	}
	if s, ok := a.doubleBottom(closes, ext); ok {
		shapes = append(shapes, s)
	}
	if s, ok := a.headShoulderBottom(closes, ext); ok {
		shapes = append(shapes, s)
	}
	if s, ok := a.triangle(bars); ok {
		shapes = append(shapes, s)
	}
	if s, ok := a.box(bars); ok {
		shapes = append(shapes, s)
	}
	if s, ok := a.channel(closes); ok {
		shapes = append(shapes, s)
	}
	if s, ok := a.roundingBottom(closes, ext); ok {
		shapes = append(shapes, s)
	}
	return shapes
}

// swingN checks the last two minima and maxima for a rising N with a shallow pullback.
func (a *SwingAnalyzer) swingN(closes []float64, ext Extrema) (Shape, bool) {
	if len(ext.Minima) < 2 || len(ext.Maxima) < 2 {
		return Shape{}, false
	}
	s1i, s2i := ext.Minima[len(ext.Minima)-2], ext.Minima[len(ext.Minima)-1]
	h1i, h2i := ext.Maxima[len(ext.Maxima)-2], ext.Maxima[len(ext.Maxima)-1]
	if !(s1i < h1i && h1i < s2i && s2i < h2i) {
		return Shape{}, false
	}

	s1, h1, s2, h2 := closes[s1i], closes[h1i], closes[s2i], closes[h2i]
	if !(s2 > s1 && h2 > h1) || h1-s1 <= 0 {
		return Shape{}, false
	}
	retrace := (h1 - s2) / (h1 - s1)
	if retrace >= a.maxRetrace {
		return Shape{}, false
	}
	return Shape{
		Kind:  ShapeSwingN,
		Label: fmt.Sprintf("swing N (pullback %.1f%%)", retrace*100),
		Value: retrace,
	}, true
}

// vReversal checks that the last minimum follows a sharp drop and precedes a sharp rise.
func (a *SwingAnalyzer) vReversal(closes []float64, ext Extrema) (Shape, bool) {
	if len(ext.Minima) == 0 {
		return Shape{}, false
	}
	m := ext.Minima[len(ext.Minima)-1]
	if m < 10 || m > len(closes)-10 {
		return Shape{}, false
	}

	low := closes[m]
	before := math.Inf(-1)
	for _, c := range closes[:m] {
		before = math.Max(before, c)
	}
	after := math.Inf(-1)
	for _, c := range closes[m:] {
		after = math.Max(after, c)
	}

	drop := (before - low) / before
	rise := (after - low) / low
	if drop <= a.vMoveRatio || rise <= a.vMoveRatio {
		return Shape{}, false
	}
	return Shape{
		Kind:  ShapeVReversal,
		Label: fmt.Sprintf("V reversal (drop %.1f%%, rise %.1f%%)", drop*100, rise*100),
		Value: rise,
	}, true
}

// doubleBottom checks for two similar troughs separated by a clearly higher peak.
func (a *SwingAnalyzer) doubleBottom(closes []float64, ext Extrema) (Shape, bool) {
	if len(closes) < 30 || len(ext.Minima) < 2 || len(ext.Maxima) < 1 {
		return Shape{}, false
	}
	s1i, s2i := ext.Minima[len(ext.Minima)-2], ext.Minima[len(ext.Minima)-1]
	hi := ext.Maxima[len(ext.Maxima)-1]
	if !(s1i < hi && hi < s2i) {
		return Shape{}, false
	}

	s1, h, s2 := closes[s1i], closes[hi], closes[s2i]
	diff := math.Abs(s1-s2) / math.Min(s1, s2)
	if diff >= a.bottomTol || h <= s1*(1+a.necklineRise) {
		return Shape{}, false
	}
	return Shape{
		Kind:  ShapeDoubleBottom,
		Label: fmt.Sprintf("W double bottom (troughs %.1f%% apart)", diff*100),
		Value: diff,
	}, true
}

// headShoulderBottom checks the last three minima for a head below two similar
// shoulders, each shoulder followed or preceded by a higher peak.
func (a *SwingAnalyzer) headShoulderBottom(closes []float64, ext Extrema) (Shape, bool) {
	if len(closes) < 40 || len(ext.Minima) < 3 || len(ext.Maxima) < 2 {
		return Shape{}, false
	}
	l1i, hdi, l2i := ext.Minima[len(ext.Minima)-3], ext.Minima[len(ext.Minima)-2], ext.Minima[len(ext.Minima)-1]
	p1i, p2i := ext.Maxima[len(ext.Maxima)-2], ext.Maxima[len(ext.Maxima)-1]
	if !(l1i < p1i && p1i < hdi && hdi < p2i && p2i < l2i) {
		return Shape{}, false
	}

	l1, p1, head, p2, l2 := closes[l1i], closes[p1i], closes[hdi], closes[p2i], closes[l2i]
	shoulder := math.Min(l1, l2)
	diff := math.Abs(l1-l2) / shoulder
	if !(head < l1 && head < l2) || diff >= a.bottomTol || p1 <= l1 || p2 <= l2 {
		return Shape{}, false
	}
	depth := (shoulder - head) / shoulder
	return Shape{
		Kind:  ShapeHeadShoulder,
		Label: fmt.Sprintf("head and shoulders bottom (head %.1f%% below shoulders)", depth*100),
		Value: depth,
	}, true
}

// triangle compares the high-low range of the two halves of bars and reports a
// converging range when the second half is markedly tighter.
func (a *SwingAnalyzer) triangle(bars []models.Bar) (Shape, bool) {
	if len(bars) < 30 {
		return Shape{}, false
	}
	mid := len(bars) / 2
	first, second := rangeRatio(bars[:mid]), rangeRatio(bars[mid:])
	if first <= 0 || second >= first*a.triangleShrink || second >= a.triangleRange {
		return Shape{}, false
	}
	shrink := 1 - second/first
	return Shape{
		Kind:  ShapeTriangle,
		Label: fmt.Sprintf("converging triangle (range down %.1f%%)", shrink*100),
		Value: shrink,
	}, true
}

// box reports a narrow range whose highs and lows repeatedly reach beyond one
// standard deviation of their means.
func (a *SwingAnalyzer) box(bars []models.Bar) (Shape, bool) {
	if len(bars) < 30 {
		return Shape{}, false
	}
	spread := rangeRatio(bars)
	if spread >= a.boxRange {
		return Shape{}, false
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i] = b.High, b.Low
	}
	upper := indicators.Mean(highs) + indicators.StdDev(highs, 1)
	lower := indicators.Mean(lows) - indicators.StdDev(lows, 1)

	var touchUpper, touchLower int
	for i := range bars {
		if highs[i] > upper {
			touchUpper++
		}
		if lows[i] < lower {
			touchLower++
		}
	}
	if touchUpper <= a.boxTouches || touchLower <= a.boxTouches {
		return Shape{}, false
	}
	return Shape{
		Kind:  ShapeBox,
		Label: fmt.Sprintf("box range (spread %.1f%%)", spread*100),
		Value: spread,
	}, true
}

// channel fits a line to the closes and reports a rising or falling channel when
// the residual spread is small relative to the mean close.
func (a *SwingAnalyzer) channel(closes []float64) (Shape, bool) {
	if len(closes) < 30 {
		return Shape{}, false
	}
	slope, intercept := indicators.LinearFit(closes)
	if slope == 0 {
		return Shape{}, false
	}

	residuals := make([]float64, len(closes))
	for i, c := range closes {
		residuals[i] = c - (slope*float64(i) + intercept)
	}
	if indicators.StdDev(residuals, 0)/indicators.Mean(closes) >= a.channelFit {
		return Shape{}, false
	}

	if slope > 0 {
		return Shape{Kind: ShapeRisingChan, Label: fmt.Sprintf("rising channel (slope %.4f)", slope), Value: slope}, true
	}
	return Shape{Kind: ShapeFallingChan, Label: fmt.Sprintf("falling channel (slope %.4f)", slope), Value: slope}, true
}

// roundingBottom checks that the closes trend down into the last minimum and up out
// of it, with at least twenty bars on each side.
func (a *SwingAnalyzer) roundingBottom(closes []float64, ext Extrema) (Shape, bool) {
	if len(closes) < 40 || len(ext.Minima) == 0 {
		return Shape{}, false
	}
	m := ext.Minima[len(ext.Minima)-1]
	if m < 20 || m > len(closes)-20 {
		return Shape{}, false
	}

	before, _ := indicators.LinearFit(closes[:m])
	after, _ := indicators.LinearFit(closes[m:])
	if before >= 0 || after <= 0 {
		return Shape{}, false
	}
	return Shape{
		Kind:  ShapeRoundBottom,
		Label: fmt.Sprintf("rounding bottom (slopes %.4f, %.4f)", before, after),
		Value: after,
	}, true
}

// rangeRatio is the high-low spread of bars relative to the lowest low.
func rangeRatio(bars []models.Bar) float64 {
	high, low := math.Inf(-1), math.Inf(1)
	for _, b := range bars {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	if low <= 0 {
		return 0
	}
	return (high - low) / low
}

// DescribeShapes labels the swing structure of bars with the given extremum half-window.
func DescribeShapes(bars []models.Bar, window int) []Shape {
	return NewSwingAnalyzer(window).Describe(bars)
}
