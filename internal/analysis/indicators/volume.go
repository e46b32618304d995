// Package indicators provides rolling statistics over price and volume columns.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

// SMA returns the trailing simple moving average of values over period.
// Positions before the first full window are NaN, as is every position when
// len(values) < period. A non-positive period yields all NaN.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nanSlice(len(values))
	}

	result := talib.Sma(values, period)
	for i := 0; i < period-1; i++ {
		result[i] = math.NaN()
	}
	return result
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// LinearFit returns the least-squares slope and intercept of values against their
// position, with the first value at x=0. Fewer than two values yield zeros.
func LinearFit(values []float64) (slope, intercept float64) {
	n := len(values)
	if n < 2 {
		return 0, 0
	}
	return talib.LinearRegSlope(values, n)[n-1], talib.LinearRegIntercept(values, n)[n-1]
}

// StdDev returns the standard deviation of values with ddof delta degrees of
// freedom: 0 for the population form, 1 for the sample form. It is 0 when fewer
// than ddof+1 values are given.
func StdDev(values []float64, ddof int) float64 {
	n := len(values)
	if n < 2 || n <= ddof {
		return 0
	}
	std := talib.StdDev(values, n, 1)[n-1]
	return std * math.Sqrt(float64(n)/float64(n-ddof))
}

// Highest returns the index of the largest value, or -1 for an empty slice.
// Ties resolve to the earliest index.
func Highest(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	idx := 0
	for i, v := range values[1:] {
		if v > values[idx] {
			idx = i + 1
		}
	}
	return idx
}

func nanSlice(n int) []float64 {
	result := make([]float64, n)
	for i := range result {
		result[i] = math.NaN()
	}
	return result
}
