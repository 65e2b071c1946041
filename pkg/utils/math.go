package utils

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Clamp clamps a value between min and max
func Clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampFloat64 clamps a float64 value between min and max
func ClampFloat64(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// MapRange linearly maps value from [inMin, inMax] onto [outMin, outMax].
// A degenerate input range maps everything onto outMin.
func MapRange(inMin, inMax, value, outMin, outMax float64) float64 {
	if inMax == inMin {
		return outMin
	}
	return outMin + (value-inMin)*(outMax-outMin)/(inMax-inMin)
}

// Mean calculates the mean of a slice of float64 values (0 for empty input)
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// MeanAbsDev calculates the mean absolute deviation around the mean
func MeanAbsDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := stat.Mean(values, nil)
	sum := 0.0
	for _, v := range values {
		sum += math.Abs(v - mean)
	}
	return sum / float64(len(values))
}

// MinMax returns the smallest and largest non-NaN values. ok is false when
// no such value exists.
func MinMax(values []float64) (min, max float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		ok = true
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, ok
}
