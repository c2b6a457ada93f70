package sampling

import (
	"cmp"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrdered(t *testing.T, capacity int, seed uint64) *OrderedReservoir[float64] {
	t.Helper()
	o, err := NewOrderedReservoir(capacity, newTestRNG(seed), cmp.Compare[float64])
	require.NoError(t, err)
	return o
}

func TestNewOrderedReservoirRejectsBadConfig(t *testing.T) {
	_, err := NewOrderedReservoir[int](8, newTestRNG(1), nil)
	require.Error(t, err)

	_, err = NewOrderedReservoir(0, newTestRNG(1), cmp.Compare[int])
	require.Error(t, err)
}

func TestOrderedReservoirReadSortsAscending(t *testing.T) {
	o := newTestOrdered(t, 10, 2)
	for _, v := range []float64{9, 1, 5, 3, 7} {
		o.Add(v)
	}

	got := o.Read()
	assert.Equal(t, []float64{1, 3, 5, 7, 9}, got)
	assert.True(t, slices.IsSorted(got))
}

func TestOrderedReservoirCachesSortedView(t *testing.T) {
	o := newTestOrdered(t, 10, 3)
	for _, v := range []float64{4, 2, 8} {
		o.Add(v)
	}

	first := o.Read()
	sortsAfterFirst := o.sorts

	// Repeated reads with no mutation re-use the cached view: no re-sort,
	// identical backing array.
	second := o.Read()
	assert.Equal(t, sortsAfterFirst, o.sorts)
	assert.Same(t, &first[0], &second[0])

	// A mutation invalidates the cache and forces exactly one more sort.
	o.Add(1)
	third := o.Read()
	assert.Equal(t, sortsAfterFirst+1, o.sorts)
	assert.Equal(t, []float64{1, 2, 4, 8}, third)

	o.Read()
	assert.Equal(t, sortsAfterFirst+1, o.sorts)
}

func TestOrderedReservoirMergeIsSequentialAdds(t *testing.T) {
	o := newTestOrdered(t, 100, 4)
	o.Add(3)

	o.Merge([]float64{6, 1, 9})

	assert.Equal(t, uint64(4), o.Seen())
	assert.Equal(t, []float64{1, 3, 6, 9}, o.Read())
}

func TestOrderedReservoirMergeReservoir(t *testing.T) {
	a := newTestOrdered(t, 50, 5)
	b := newTestOrdered(t, 50, 6)
	for i := 0; i < 10; i++ {
		a.Add(float64(i))
		b.Add(float64(100 + i))
	}

	a.MergeReservoir(b)
	assert.Equal(t, uint64(20), a.Seen())
	assert.Equal(t, 20, a.Len())
	assert.True(t, slices.IsSorted(a.Read()))

	// Self-merge and nil merge are no-ops.
	seen := a.Seen()
	a.MergeReservoir(a)
	a.MergeReservoir(nil)
	assert.Equal(t, seen, a.Seen())
}

func TestOrderedReservoirClearMatchesFresh(t *testing.T) {
	o := newTestOrdered(t, 8, 7)
	for i := 0; i < 100; i++ {
		o.Add(float64(i))
	}
	_ = o.Read()

	o.Clear()

	assert.Equal(t, 0, o.Len())
	assert.Equal(t, uint64(0), o.Seen())
	assert.Empty(t, o.Read())

	o.Add(2)
	o.Add(1)
	assert.Equal(t, []float64{1, 2}, o.Read())
}
