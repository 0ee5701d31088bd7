package random

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermutation_IsPermutation(t *testing.T) {
	r := NewSeeded(7)
	for _, n := range []int{0, 1, 2, 10, 100} {
		perm := Permutation(r, n)
		require.Len(t, perm, n)

		seen := make(map[int]bool, n)
		for _, v := range perm {
			assert.GreaterOrEqual(t, v, 0)
			assert.Less(t, v, n)
			assert.False(t, seen[v], "duplicate index %d", v)
			seen[v] = true
		}
	}
}

func TestPermutation_Uniform(t *testing.T) {
	// Every one of the 24 orderings of 4 items should appear equally often.
	// With 24000 samples and 23 degrees of freedom the 0.999 quantile of
	// chi-square is about 49.7.
	const (
		n       = 4
		samples = 24000
	)
	r := NewSeeded(42)
	counts := make(map[[n]int]int)
	for i := 0; i < samples; i++ {
		var key [n]int
		copy(key[:], Permutation(r, n))
		counts[key]++
	}
	require.Len(t, counts, 24)

	expected := float64(samples) / 24
	chi := 0.0
	for _, c := range counts {
		d := float64(c) - expected
		chi += d * d / expected
	}
	assert.Less(t, chi, 49.7)
}

func TestCryptoRandom_Intn(t *testing.T) {
	r := New()
	assert.Equal(t, 0, r.Intn(0))
	for i := 0; i < 100; i++ {
		v := r.Intn(5)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 5)
	}
}

func TestString(t *testing.T) {
	r := NewSeeded(1)
	s := r.String(16, "ab")
	assert.Len(t, s, 16)
	assert.Regexp(t, `^[ab]+$`, s)
	assert.Empty(t, r.String(0, "ab"))
	assert.Empty(t, r.String(4, ""))
}
