// Package sampling maintains fixed-capacity uniform random samples of
// unbounded measurement streams.
package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Reservoir keeps a statistically uniform sample of at most capacity items
// from a stream of unknown length. Once the reservoir is full it switches to
// a geometric skip-ahead (Vitter's Algorithm Z as refined by Li): instead of
// drawing a random number per arrival, it draws how many arrivals to pass
// over before the next replacement. The marginal inclusion probability of
// every item remains exactly k/N, identical to naive one-draw-per-item
// reservoir sampling.
//
// A Reservoir is not safe for concurrent use; each instance expects a single
// writer. All randomness comes from the caller-supplied *rand.Rand, so a
// fixed seed reproduces the exact sequence of skip and slot decisions.
type Reservoir[T any] struct {
	capacity int
	seen     uint64
	items    []T
	rng      *rand.Rand
	skip     uint64
	weight   float64
}

// NewReservoir creates a reservoir holding at most capacity items.
// A non-positive capacity or nil random source is a configuration error.
func NewReservoir[T any](capacity int, rng *rand.Rand) (*Reservoir[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("reservoir capacity must be positive, got %d", capacity)
	}
	if rng == nil {
		return nil, errors.New("reservoir requires a random source")
	}
	return &Reservoir[T]{
		capacity: capacity,
		items:    make([]T, 0, capacity),
		rng:      rng,
	}, nil
}

// Add folds one arrival into the sample. Amortized O(1) and allocation-free
// once the reservoir is at capacity.
func (r *Reservoir[T]) Add(item T) {
	r.seen++

	if len(r.items) < r.capacity {
		r.items = append(r.items, item)
		if len(r.items) == r.capacity {
			r.redrawWeight()
			r.skip = r.drawSkip()
		}
		return
	}

	if r.skip > 0 {
		r.skip--
		return
	}

	r.items[r.rng.IntN(r.capacity)] = item
	r.redrawWeight()
	r.skip = r.drawSkip()
}

// redrawWeight advances the running weight W by exp(log(U)/k). U is redrawn
// if it comes out 0, where the logarithm is undefined.
func (r *Reservoir[T]) redrawWeight() {
	if r.weight == 0 {
		r.weight = 1
	}
	r.weight *= math.Exp(math.Log(r.uniform()) / float64(r.capacity))
}

// drawSkip draws the number of arrivals to pass over before the next
// replacement, from the geometric distribution floor(log(U)/log(1-W)).
// W >= 1 would make the logarithm non-negative, so it is redrawn first.
func (r *Reservoir[T]) drawSkip() uint64 {
	for r.weight >= 1 {
		r.weight = 1
		r.redrawWeight()
	}
	return uint64(math.Floor(math.Log(r.uniform()) / math.Log(1-r.weight)))
}

// uniform draws from (0, 1), redrawing the rare exact 0.
func (r *Reservoir[T]) uniform() float64 {
	for {
		if u := r.rng.Float64(); u > 0 {
			return u
		}
	}
}

// Sample returns a snapshot copy of the current sample. Its length is
// min(seen, capacity).
func (r *Reservoir[T]) Sample() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of items currently held.
func (r *Reservoir[T]) Len() int {
	return len(r.items)
}

// Seen returns the total number of arrivals observed.
func (r *Reservoir[T]) Seen() uint64 {
	return r.seen
}

// Cap returns the reservoir capacity.
func (r *Reservoir[T]) Cap() int {
	return r.capacity
}

// Clear resets the reservoir to its freshly constructed state. The random
// source is retained.
func (r *Reservoir[T]) Clear() {
	r.seen = 0
	r.items = r.items[:0]
	r.skip = 0
	r.weight = 0
}
