package parallel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCoversRange(t *testing.T) {
	for _, tc := range []struct{ n, parts, want int }{
		{10, 3, 3}, {2, 8, 2}, {7, 1, 1}, {5, 0, 1},
	} {
		ranges := Split(tc.n, tc.parts)
		require.Len(t, ranges, tc.want)
		next := 0
		for _, r := range ranges {
			assert.Equal(t, next, r.Lo)
			assert.Positive(t, r.Len())
			next = r.Hi
		}
		assert.Equal(t, tc.n, next)
	}
	assert.Empty(t, Split(0, 4))
}

func TestMapRangesOrderAndError(t *testing.T) {
	sums, err := MapRanges(context.Background(), 100, 4, func(_ context.Context, r Range) (int, error) {
		s := 0
		for i := r.Lo; i < r.Hi; i++ {
			s += i
		}
		return s, nil
	})
	require.NoError(t, err)
	require.Len(t, sums, 4)
	assert.Equal(t, 4950, TreeReduce(sums, func(a, b int) int { return a + b }))

	boom := errors.New("boom")
	_, err = MapRanges(context.Background(), 10, 2, func(_ context.Context, r Range) (int, error) {
		if r.Lo > 0 {
			return 0, boom
		}
		return 1, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestTreeReducePreservesOrder(t *testing.T) {
	parts := []string{"a", "b", "c", "d", "e"}
	got := TreeReduce(parts, func(x, y string) string { return x + y })
	assert.Equal(t, "abcde", got)
	assert.Equal(t, "", TreeReduce[string](nil, func(x, y string) string { return x + y }))
}
