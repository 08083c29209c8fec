package stats

import "math"

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// Sum returns the sum of all values
func Sum(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum
}

// Mode returns the most frequent value (for discrete data).
// Ties resolve to the smallest of the most frequent values so the result
// does not depend on map iteration order.
func Mode(values []int) int {
	if len(values) == 0 {
		return 0
	}

	freq := make(map[int]int)
	for _, v := range values {
		freq[v]++
	}

	maxFreq := 0
	mode := math.MaxInt
	for v, f := range freq {
		if f > maxFreq || (f == maxFreq && v < mode) {
			maxFreq = f
			mode = v
		}
	}

	return mode
}

// FloorTo rounds v down to the nearest multiple of increment.
func FloorTo(v, increment float64) float64 {
	if increment <= 0 {
		return v
	}
	return math.Floor(v/increment) * increment
}

// Clamp restricts v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
