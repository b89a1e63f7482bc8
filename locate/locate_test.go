package locate

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recursiveLocate re-slices on every call. It is the plain recursive
// formulation the index-narrowing loop must agree with.
func recursiveLocate(space []float64, value float64, offset int) int {
	n := len(space)
	if n == 2 {
		return offset
	}

	split := (n - 1) / 2
	if n == 3 && value == space[split] {
		return offset
	}

	if value <= space[split] {
		return recursiveLocate(space[:split+1], value, offset)
	}

	return recursiveLocate(space[split:], value, offset+split)
}

func TestLocateConcrete(t *testing.T) {
	space := []float64{0.0, 1.0, 3.0, 7.0}

	got, err := Locate(space, 2.5, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestLocateTable(t *testing.T) {
	space := []float64{0, 10, 20, 30, 40}

	tests := []struct {
		value float64
		want  int
	}{
		{-1, 0},
		{0, 0},
		{5, 0},
		{10, 0},
		{15, 1},
		{20, 1},
		{25, 2},
		{30, 2},
		{35, 3},
		{40, 3},
		{45, 3},
	}

	for _, tt := range tests {
		got, err := Locate(space, tt.value, 0)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "value %v", tt.value)
	}
}

func TestLocateBaseCase(t *testing.T) {
	space := []float64{1.0, 2.0}

	for _, v := range []float64{-100, 0.5, 1.0, 1.5, 2.0, 100} {
		for _, offset := range []int{0, 3, 17} {
			got, err := Locate(space, v, offset)
			require.NoError(t, err)
			assert.Equal(t, offset, got, "value %v offset %d", v, offset)
		}
	}
}

func TestLocateMidpointTieBreak(t *testing.T) {
	tests := [][3]float64{
		{1, 2, 3},
		{1, 1, 3},
		{1, 3, 3},
		{2, 2, 2},
	}

	for _, s := range tests {
		got, err := Locate(s[:], s[1], 0)
		require.NoError(t, err)
		assert.Equal(t, 0, got, "space %v", s)
	}
}

func TestLocateOffset(t *testing.T) {
	space := []float64{0.0, 1.0, 3.0, 7.0}

	got, err := Locate(space, 2.5, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, got)
}

func TestLocateInvalidInput(t *testing.T) {
	for _, x := range []float64{-1, 0, 42.5} {
		_, err := Locate([]float64{x}, x, 0)
		require.ErrorIs(t, err, ErrInvalidInput)
	}

	_, err := Locate([]float64{}, 1, 0)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = LocateAll([]float64{1}, []float64{1})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = Depth([]int{1}, 1)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestLocateIntegers(t *testing.T) {
	got, err := Locate([]int{1, 2, 3, 4, 6, 8, 10}, 7, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, got)
}

func TestLocateMatchesRecursive(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for range 500 {
		n := 2 + rng.Intn(64)
		space := make([]float64, n)
		for i := range space {
			// Small integer range so ties appear.
			space[i] = float64(rng.Intn(20))
		}
		slices.Sort(space)

		value := float64(rng.Intn(24) - 2)
		offset := rng.Intn(5)

		got, err := Locate(space, value, offset)
		require.NoError(t, err)
		assert.Equal(t, recursiveLocate(space, value, offset), got,
			"space %v value %v", space, value)
	}
}

func TestLocateAll(t *testing.T) {
	space := []float64{0.0, 1.0, 3.0, 7.0}

	got, err := LocateAll(space, []float64{2.5, 0.5, 5, 100, -3})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2, 2, 0}, got)

	got, err = LocateAll(space, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDepthBound(t *testing.T) {
	const n = 1_000_000

	space := make([]float64, n)
	for i := range space {
		space[i] = float64(i)
	}

	rng := rand.New(rand.NewSource(1))
	for range 1000 {
		value := rng.Float64()*(n+10) - 5

		depth, err := Depth(space, value)
		require.NoError(t, err)
		assert.LessOrEqual(t, depth, 21, "value %v", value)
	}
}

func TestDepthBaseCases(t *testing.T) {
	depth, err := Depth([]float64{1, 2}, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	depth, err = Depth([]float64{1, 2, 3}, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	depth, err = Depth([]float64{1, 2, 3}, 2.5)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}
