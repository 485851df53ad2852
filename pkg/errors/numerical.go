package errors

import "math"

// CheckScalar returns a ValueError when value is NaN or Inf. Used by the
// coordinate-descent solver to fail loudly instead of propagating garbage.
func CheckScalar(operation string, value float64) error {
	if math.IsNaN(value) {
		return NewValueError(operation, "NaN encountered")
	}
	if math.IsInf(value, 0) {
		return NewValueError(operation, "Inf encountered")
	}
	return nil
}

// ClipValue constrains value to [min, max].
func ClipValue(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// StabilizeLog guards log against zero or negative input.
func StabilizeLog(value float64) float64 {
	const eps = 1e-15
	if value < eps {
		value = eps
	}
	return math.Log(value)
}

// StabilizeExp guards exp against overflow and underflow of the argument.
func StabilizeExp(value float64) float64 {
	const bound = 500.0
	return math.Exp(ClipValue(value, -bound, bound))
}
