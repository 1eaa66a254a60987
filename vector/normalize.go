package vector

import (
	"errors"
	"math"
)

// DefaultTolerance is the accepted deviation of a vector norm from 1.
const DefaultTolerance = 1e-3

// ErrZeroVector is returned when normalizing a vector without direction.
var ErrZeroVector = errors.New("zero vector cannot be normalized")

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// IsNormalized reports whether |‖v‖ - 1| <= tolerance.
func IsNormalized(v []float32, tolerance float64) bool {
	if len(v) == 0 {
		return false
	}
	return math.Abs(Norm(v)-1) <= tolerance
}

// Normalize returns a unit-length copy of v.
func Normalize(v []float32) ([]float32, error) {
	n := Norm(v)
	if n == 0 {
		return nil, ErrZeroVector
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, nil
}

// Dot returns the inner product of a and b, which equals the cosine similarity
// for normalized inputs.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		if i >= len(b) {
			break
		}
		sum += a[i] * b[i]
	}
	return sum
}
