package main

import (
	"math"
)

// ============================================================================
// Circular Statistics
// ============================================================================
//
// Wind directions wrap at 360°, so every mean here is a vector mean: each
// heading becomes a unit vector, the vectors are summed, and atan2 of the sum
// gives the mean heading. Arithmetic means of headings are forbidden
// everywhere in this codebase; both the hourly archiver and the notification
// predicate call through these helpers.

// CircularMean returns the vector mean of the given headings, normalised to
// [0, 360). An empty input returns 0.
func CircularMean(degrees []float64) float64 {
	if len(degrees) == 0 {
		return 0
	}
	var sinSum, cosSum float64
	for _, d := range degrees {
		r := d * math.Pi / 180
		sinSum += math.Sin(r)
		cosSum += math.Cos(r)
	}
	mean := math.Atan2(sinSum, cosSum) * 180 / math.Pi
	if mean < 0 {
		mean += 360
	}
	return math.Mod(mean, 360)
}

// CircularMeanInt rounds the circular mean to whole degrees in [0, 360).
func CircularMeanInt(degrees []float64) int {
	return int(math.Round(CircularMean(degrees))) % 360
}

// ResultantLength returns R ∈ [0, 1], the length of the mean unit vector.
// R near 1 means tightly clustered headings; near 0 means scattered.
func ResultantLength(degrees []float64) float64 {
	if len(degrees) == 0 {
		return 0
	}
	var sinSum, cosSum float64
	for _, d := range degrees {
		r := d * math.Pi / 180
		sinSum += math.Sin(r)
		cosSum += math.Cos(r)
	}
	n := float64(len(degrees))
	return math.Sqrt(math.Pow(sinSum/n, 2) + math.Pow(cosSum/n, 2))
}

// CircularSpread converts the resultant length into an angular spread in
// degrees via acos(min(R,1)).
func CircularSpread(degrees []float64) float64 {
	r := ResultantLength(degrees)
	if r > 1 {
		r = 1
	}
	return math.Acos(r) * 180 / math.Pi
}

// AngularDistance returns the shortest separation between two headings,
// in [0, 180].
func AngularDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	d = math.Mod(d, 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// MaxAngularDeviation returns the largest shortest-path separation between
// any heading and the circular mean of the set.
func MaxAngularDeviation(degrees []float64) float64 {
	if len(degrees) == 0 {
		return 0
	}
	mean := CircularMean(degrees)
	var max float64
	for _, d := range degrees {
		if dev := AngularDistance(d, mean); dev > max {
			max = dev
		}
	}
	return max
}

// NormalizeDegrees wraps any degree value into [0, 360).
func NormalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
