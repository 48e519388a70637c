package metrics

import "math"

// Mean calculates the arithmetic mean
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ClampFloat64 constrains a value to a range
func ClampFloat64(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// round1 rounds to one decimal place for presentation-stable scores
func round1(value float64) float64 {
	return math.Round(value*10) / 10
}

// saturating scales value against target onto 0-100, capping at 100
// once the target is reached.
func saturating(value, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return ClampFloat64(value/target*100, 0, 100)
}
