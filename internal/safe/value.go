// Package safe provides overflow-safe numeric conversions.
package safe

import (
	"math"
)

// Uint64ToInt64 safely converts an uint64 value to int64, clamping to
// math.MaxInt64 if overflow would occur.
// Returns the converted value and a boolean indicating whether clamping
// occurred.
func Uint64ToInt64(val uint64) (int64, bool) {
	if val > math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(val), false
}
