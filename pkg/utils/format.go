// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
)

const (
	wan = 1e4
	yi  = 1e8
)

// FormatVolume formats a share count with the 万 (1e4) and 亿 (1e8) units used
// on mainland exchanges.
func FormatVolume(volume float64) string {
	abs := math.Abs(volume)
	switch {
	case abs >= yi:
		return fmt.Sprintf("%.2f亿", volume/yi)
	case abs >= wan:
		return fmt.Sprintf("%.2f万", volume/wan)
	default:
		return fmt.Sprintf("%.0f", volume)
	}
}

// FormatPercent formats a ratio as a signed percentage.
func FormatPercent(ratio float64) string {
	sign := ""
	if ratio > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, ratio*100)
}

// FormatPrice formats a price with two decimals.
func FormatPrice(price float64) string {
	return fmt.Sprintf("%.2f", price)
}

// FormatRatio formats an optional ratio, printing "-" when absent.
func FormatRatio(r *float64) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *r)
}
