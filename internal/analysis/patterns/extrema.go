package patterns

import (
	"nscan/internal/models"
)

// Extrema holds the indices of strict local minima and maxima in ascending order.
type Extrema struct {
	Minima []int
	Maxima []int
}

// FindExtrema reports every index i whose value is strictly greater (maximum) or
// strictly smaller (minimum) than every other value in [i-n, i+n]. Ties are never
// extrema, and indices closer than n to either end are skipped.
func FindExtrema(values []float64, n int) Extrema {
	return findExtrema(values, values, n)
}

// FindSwingExtrema scans lows for minima and highs for maxima.
func FindSwingExtrema(bars []models.Bar, n int) Extrema {
	lows := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	for i, b := range bars {
		lows[i] = b.Low
		highs[i] = b.High
	}
	return findExtrema(lows, highs, n)
}

// Closes extracts the close column.
func Closes(bars []models.Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

func findExtrema(lows, highs []float64, n int) Extrema {
	var result Extrema
	if n < 1 {
		return result
	}

	for i := n; i < len(highs)-n; i++ {
		isMax, isMin := true, true
		for j := i - n; j <= i+n; j++ {
			if j == i {
				continue
			}
			if highs[i] <= highs[j] {
				isMax = false
			}
			if lows[i] >= lows[j] {
				isMin = false
			}
			if !isMax && !isMin {
				break
			}
		}
		if isMax {
			result.Maxima = append(result.Maxima, i)
		}
		if isMin {
			result.Minima = append(result.Minima, i)
		}
	}

	return result
}
