package domain

import "math"

// InitialVersion is assigned on first-ever creation of an entity.
const InitialVersion = 1.0

// NextVersion bumps the decimal part of a version: 1.0 -> 1.1.
func NextVersion(version float64) float64 {
	return math.Round((version+0.1)*10) / 10
}

// NextMajorVersion bumps the integer part of a version: 1.3 -> 2.0.
func NextMajorVersion(version float64) float64 {
	return math.Round((math.Floor(version)+1.0)*10) / 10
}
