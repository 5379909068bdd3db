package models

import (
	"math"
	"regexp"
	"strconv"
)

var leadingNumber = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseWeight reads the leading decimal number of s, ignoring any trailing
// text such as a unit. It fails on NaN, infinities and text with no number.
func ParseWeight(s string) (float64, bool) {
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// RoundWeight rounds to one decimal, half away from zero
func RoundWeight(v float64) float64 {
	return math.Round(v*10) / 10
}

// RoundCleanedWeight rounds to the two decimals of the cleaned log, half
// away from zero. Reduced entries carry this precision whether or not they
// pass through a cleaned file.
func RoundCleanedWeight(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatCleanedWeight renders the two-decimal cleaned log form, "72.45"
func FormatCleanedWeight(v float64) string {
	return strconv.FormatFloat(RoundCleanedWeight(v), 'f', 2, 64)
}

// FormatWeight renders the one-decimal transmission form, "72.4"
func FormatWeight(v float64) string {
	return strconv.FormatFloat(RoundWeight(v), 'f', 1, 64)
}

// WeightsEqual compares two weights at one-decimal precision
func WeightsEqual(a, b float64) bool {
	return FormatWeight(a) == FormatWeight(b)
}
