// Package pricing computes session prices from tutor rates.
package pricing

import (
	"math"
	"time"
)

// DurationHours returns the length of [start, end) in fractional hours. Inverted ranges yield zero.
func DurationHours(start, end time.Time) float64 {
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Hours()
}

// Price is hourlyRate × duration × roster, rounded to cents. A non-positive roster or rate prices at zero.
func Price(hourlyRate float64, start, end time.Time, roster int) float64 {
	if hourlyRate <= 0 || roster <= 0 {
		return 0
	}
	return roundCents(hourlyRate * DurationHours(start, end) * float64(roster))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
