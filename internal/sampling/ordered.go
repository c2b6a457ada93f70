package sampling

import (
	"errors"
	"math/rand/v2"
	"slices"
)

// OrderedReservoir is a Reservoir whose sample can be read in sorted order.
// The sorted view is memoized behind a dirty flag: repeated reads with no
// intervening Add reuse the cached slice and perform no re-sort.
type OrderedReservoir[T any] struct {
	res    *Reservoir[T]
	cmp    func(a, b T) int
	cached []T
	dirty  bool
	sorts  uint64
}

// NewOrderedReservoir creates an ordered reservoir using cmp as the total
// order over items (negative when a sorts before b, as for slices.SortFunc).
func NewOrderedReservoir[T any](capacity int, rng *rand.Rand, cmp func(a, b T) int) (*OrderedReservoir[T], error) {
	if cmp == nil {
		return nil, errors.New("ordered reservoir requires an ordering function")
	}
	res, err := NewReservoir[T](capacity, rng)
	if err != nil {
		return nil, err
	}
	return &OrderedReservoir[T]{res: res, cmp: cmp, dirty: true}, nil
}

// Add folds one arrival into the sample and invalidates the cached view.
func (o *OrderedReservoir[T]) Add(item T) {
	o.res.Add(item)
	o.dirty = true
}

// Read returns the current sample sorted ascending. The result is cached and
// only recomputed after a mutation; callers must not modify the returned
// slice.
func (o *OrderedReservoir[T]) Read() []T {
	if o.dirty {
		o.cached = o.res.Sample()
		slices.SortFunc(o.cached, o.cmp)
		o.sorts++
		o.dirty = false
	}
	return o.cached
}

// Merge adds every item of items to this reservoir. The combined sample is
// distributed as if the two arrival streams had been observed back to back,
// not as an order-independent union of two reservoirs; callers that need the
// latter must resample from the raw streams instead.
func (o *OrderedReservoir[T]) Merge(items []T) {
	for _, item := range items {
		o.Add(item)
	}
}

// MergeReservoir merges the current sample of another ordered reservoir into
// this one, with the same sequential-arrival caveat as Merge.
func (o *OrderedReservoir[T]) MergeReservoir(other *OrderedReservoir[T]) {
	if other == nil || other == o {
		return
	}
	o.Merge(other.res.items)
}

// Len returns the number of items currently held.
func (o *OrderedReservoir[T]) Len() int {
	return o.res.Len()
}

// Seen returns the total number of arrivals observed.
func (o *OrderedReservoir[T]) Seen() uint64 {
	return o.res.Seen()
}

// Cap returns the reservoir capacity.
func (o *OrderedReservoir[T]) Cap() int {
	return o.res.Cap()
}

// Clear resets the reservoir and its cached view to the freshly constructed
// state.
func (o *OrderedReservoir[T]) Clear() {
	o.res.Clear()
	o.cached = nil
	o.dirty = true
}
