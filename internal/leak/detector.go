// Package leak detects aggregate counters that are anomalously concentrated
// relative to a uniform null, using a Monte-Carlo multinomial test with a
// Benjamini-Yekutieli correction for multiple hypotheses.
package leak

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// Candidate is one flagged site: its index in the input vector and the
// empirical p-value at the time it was flagged.
type Candidate struct {
	Site   int
	PValue float64
}

// Detector runs the concentration test. It keeps no state between calls
// beyond its random source; input vectors are copied, never mutated.
type Detector struct {
	alpha  float64
	trials int
	rng    *rand.Rand
}

// NewDetector creates a detector with significance level alpha and the given
// Monte-Carlo trial count. Alpha outside (0, 1), a non-positive trial count,
// or a nil random source is a configuration error; values are never clamped.
func NewDetector(alpha float64, trials int, rng *rand.Rand) (*Detector, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("alpha must be in (0, 1), got %g", alpha)
	}
	if trials <= 0 {
		return nil, fmt.Errorf("trial count must be positive, got %d", trials)
	}
	if rng == nil {
		return nil, errors.New("detector requires a random source")
	}
	return &Detector{alpha: alpha, trials: trials, rng: rng}, nil
}

// NormalizedEntropy returns the Shannon entropy of v scaled by its maximum
// possible value log(len(v)), in [0, 1]. Zero counts contribute nothing
// (0*log(0) is taken as 0); a vector with fewer than two categories or a
// zero sum has entropy 0.
func NormalizedEntropy(v []uint64) float64 {
	if len(v) < 2 {
		return 0
	}
	var total uint64
	for _, c := range v {
		total += c
	}
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range v {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log(p)
	}
	return h / math.Log(float64(len(v)))
}

// PValue estimates the likelihood that sum(v) observations spread uniformly
// over len(v) categories would concentrate at least as much as v: the
// fraction of Monte-Carlo multinomial draws whose normalized entropy is at
// or below that of v. A vector with fewer than two categories or a zero sum
// yields 1.
func (d *Detector) PValue(v []uint64) float64 {
	n := len(v)
	if n < 2 {
		return 1
	}
	var total uint64
	for _, c := range v {
		total += c
	}
	if total == 0 {
		return 1
	}

	observed := NormalizedEntropy(v)
	draw := make([]uint64, n)
	hits := 0
	for t := 0; t < d.trials; t++ {
		clear(draw)
		for i := uint64(0); i < total; i++ {
			draw[d.rng.IntN(n)]++
		}
		if NormalizedEntropy(draw) <= observed {
			hits++
		}
	}
	return float64(hits) / float64(d.trials)
}

// Candidates returns the sites of v whose counts are anomalously
// concentrated, most anomalous first. Each round compares the current
// p-value of the working vector against the Benjamini-Yekutieli threshold
// alpha*(removed+1)/(n*H_n); while the p-value stays at or below it, the
// largest remaining count (first index on ties) is flagged and zeroed, and
// the test repeats. Every round honors the configured trial count.
//
// At most n-1 sites are ever flagged: a vector with a single surviving
// nonzero count is trivially concentrated and carries no further evidence.
// Fewer than two sites or an all-zero vector yields no candidates.
func (d *Detector) Candidates(v []uint64) []Candidate {
	n := len(v)
	if n < 2 {
		return nil
	}
	work := slices.Clone(v)
	hn := harmonic(n)

	var out []Candidate
	for removed := 0; removed < n-1; removed++ {
		var total uint64
		for _, c := range work {
			total += c
		}
		if total == 0 {
			break
		}
		p := d.PValue(work)
		threshold := d.alpha * float64(removed+1) / (float64(n) * hn)
		if p > threshold {
			break
		}
		idx := argmax(work)
		out = append(out, Candidate{Site: idx, PValue: p})
		work[idx] = 0
	}
	return out
}

// harmonic returns the n-th harmonic number.
func harmonic(n int) float64 {
	h := 0.0
	for i := 1; i <= n; i++ {
		h += 1 / float64(i)
	}
	return h
}

// argmax returns the first index holding the maximum value.
func argmax(v []uint64) int {
	best := 0
	for i, c := range v {
		if c > v[best] {
			best = i
		}
	}
	return best
}
