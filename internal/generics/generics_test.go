package generics

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSliceMap(t *testing.T) {
	assert.Equal(t, []string{"a", "bb", ""}, SliceMap([]int{1, 2, 0}, func(n int) string {
		return string(slices.Repeat([]byte{'a' + byte(n-1)}, n))
	}))
	assert.Empty(t, SliceMap([]int(nil), func(n int) int { return n }))
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"lr": 1, "batch_size": 5, "scale": 3}
	want := []string{"batch_size", "lr", "scale"}
	for range 100 {
		assert.Equal(t, want, slices.Collect(SortedKeys(m)))
	}
}

func TestSet(t *testing.T) {
	s := MakeSet[string](10)
	assert.Len(t, s, 0)
	s.Insert("101", "102")
	assert.Len(t, s, 2)
	assert.True(t, s.Has("101"))
	assert.False(t, s.Has("103"))

	teams := SetWith("alpha", "beta", "alpha")
	assert.Len(t, teams, 2)
	assert.True(t, teams.Has("beta"))
	assert.False(t, teams.Has("gamma"))
}

func TestSliceOrdering(t *testing.T) {
	s := []float32{7, -3, 2}
	assert.Equal(t, []int{1, 2, 0}, SliceOrdering(s, false))
	s2 := []int64{0, 1, 1}
	assert.Equal(t, []int{1, 2, 0}, SliceOrdering(s2, true))
}
