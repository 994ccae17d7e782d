package nn

import (
	"fmt"
	"math"
)

// checkFinite validates that every element of every slice is a finite
// number. It is the single trust-boundary check invoked after forward,
// backward, and apply steps; op names the boundary for the error message.
func checkFinite(op string, slices ...[]float64) error {
	for _, s := range slices {
		for i, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s produced %v at index %d", ErrNotFinite, op, v, i)
			}
		}
	}
	return nil
}

// ceilDiv returns ceil(a/b) for positive b.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// equalSlices reports exact element-wise equality, treating nil and empty
// as equal only to themselves (mirroring how optimizer state is either
// unallocated on both sides or allocated with identical contents).
func equalSlices(a, b []float64) bool {
	if len(a) != len(b) || (a == nil) != (b == nil) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
