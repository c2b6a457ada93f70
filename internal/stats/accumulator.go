// Package stats provides a constant-space accumulator for running
// distributional statistics over a stream of measurements.
package stats

import (
	"errors"
	"math"
)

// ErrInsufficientData is returned when a statistic is undefined for the
// number of values pushed so far (variance and friends need at least two).
var ErrInsufficientData = errors.New("insufficient data: statistic requires at least 2 values")

// Accumulator maintains running moment statistics (mean, variance, skewness,
// kurtosis) and the peak value of a measurement stream in O(1) space, using
// single-pass incremental update formulas. The zero value is not ready for
// use; create instances with New.
//
// An Accumulator is not safe for concurrent use. Each instance expects a
// single writer; combine per-writer instances off the hot path with Merge.
type Accumulator struct {
	n    uint64
	m1   float64
	m2   float64
	m3   float64
	m4   float64
	peak float64
}

// New creates an empty Accumulator.
func New() *Accumulator {
	a := &Accumulator{}
	a.Clear()
	return a
}

// Clear resets the accumulator to its freshly constructed state.
func (a *Accumulator) Clear() {
	a.n = 0
	a.m1 = 0
	a.m2 = 0
	a.m3 = 0
	a.m4 = 0
	a.peak = math.Inf(-1)
}

// Push folds a single measurement into the running statistics.
func (a *Accumulator) Push(x float64) {
	n1 := float64(a.n)
	a.n++
	n := float64(a.n)

	delta := x - a.m1
	deltaN := delta / n
	deltaN2 := deltaN * deltaN
	term1 := delta * deltaN * n1

	a.m1 += deltaN
	a.m4 += term1*deltaN2*(n*n-3*n+3) + 6*deltaN2*a.m2 - 4*deltaN*a.m3
	a.m3 += term1*deltaN*(n-2) - 3*deltaN*a.m2
	a.m2 += term1

	if x > a.peak {
		a.peak = x
	}
}

// Merge folds another accumulator into this one using only the two sides'
// summary statistics; individual values are never replayed. The operation is
// associative and commutative up to floating-point rounding, so per-writer
// accumulators can be combined in any order. The other accumulator is not
// modified.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil || other.n == 0 {
		return
	}
	if a.n == 0 {
		*a = *other
		return
	}

	na := float64(a.n)
	nb := float64(other.n)
	n := na + nb

	delta := other.m1 - a.m1
	delta2 := delta * delta
	delta3 := delta * delta2
	delta4 := delta2 * delta2

	m1 := (na*a.m1 + nb*other.m1) / n
	m2 := a.m2 + other.m2 + delta2*na*nb/n
	m3 := a.m3 + other.m3 +
		delta3*na*nb*(na-nb)/(n*n) +
		3*delta*(na*other.m2-nb*a.m2)/n
	m4 := a.m4 + other.m4 +
		delta4*na*nb*(na*na-na*nb+nb*nb)/(n*n*n) +
		6*delta2*(na*na*other.m2+nb*nb*a.m2)/(n*n) +
		4*delta*(na*other.m3-nb*a.m3)/n

	a.n += other.n
	a.m1 = m1
	a.m2 = m2
	a.m3 = m3
	a.m4 = m4
	if other.peak > a.peak {
		a.peak = other.peak
	}
}

// Size returns the number of values pushed so far.
func (a *Accumulator) Size() uint64 {
	return a.n
}

// Mean returns the running mean, or 0 when no values have been pushed.
func (a *Accumulator) Mean() float64 {
	return a.m1
}

// Var returns the sample variance (denominator n-1).
// Returns ErrInsufficientData when fewer than 2 values have been pushed.
func (a *Accumulator) Var() (float64, error) {
	if a.n < 2 {
		return 0, ErrInsufficientData
	}
	return a.m2 / float64(a.n-1), nil
}

// Std returns the sample standard deviation.
// Returns ErrInsufficientData when fewer than 2 values have been pushed.
func (a *Accumulator) Std() (float64, error) {
	v, err := a.Var()
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

// SEM returns the standard error of the mean (std / sqrt(n)).
// Returns ErrInsufficientData when fewer than 2 values have been pushed.
func (a *Accumulator) SEM() (float64, error) {
	s, err := a.Std()
	if err != nil {
		return 0, err
	}
	return s / math.Sqrt(float64(a.n)), nil
}

// Skewness returns the sample skewness of the values pushed so far.
func (a *Accumulator) Skewness() float64 {
	if a.m2 == 0 {
		return 0
	}
	return math.Sqrt(float64(a.n)) * a.m3 / math.Pow(a.m2, 1.5)
}

// Kurtosis returns the excess kurtosis of the values pushed so far
// (0 for a normal distribution).
func (a *Accumulator) Kurtosis() float64 {
	if a.m2 == 0 {
		return 0
	}
	return float64(a.n)*a.m4/(a.m2*a.m2) - 3.0
}

// Peak returns the maximum value ever pushed, or negative infinity when the
// accumulator is empty.
func (a *Accumulator) Peak() float64 {
	return a.peak
}
