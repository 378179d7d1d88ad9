// Package parallel splits instance ranges across a bounded worker group and
// folds the partial results back together with a pairwise tree reduction.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Range is the half-open instance interval [Lo, Hi).
type Range struct {
	Lo, Hi int
}

func (r Range) Len() int { return r.Hi - r.Lo }

// Split cuts [0, n) into at most parts contiguous ranges of near-equal size.
func Split(n, parts int) []Range {
	if n <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > n {
		parts = n
	}
	out := make([]Range, 0, parts)
	size, rem := n/parts, n%parts
	lo := 0
	for i := 0; i < parts; i++ {
		hi := lo + size
		if i < rem {
			hi++
		}
		out = append(out, Range{Lo: lo, Hi: hi})
		lo = hi
	}
	return out
}

// MapRanges runs fn over Split(n, workers) with at most workers goroutines.
// Results come back in range order. The first error cancels the rest.
func MapRanges[T any](ctx context.Context, n, workers int, fn func(ctx context.Context, r Range) (T, error)) ([]T, error) {
	ranges := Split(n, workers)
	out := make([]T, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, r := range ranges {
		g.Go(func() error {
			v, err := fn(gctx, r)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// TreeReduce merges parts pairwise, level by level, until one value remains.
// merge must be associative. Pairs on the same level are merged concurrently,
// each writing only its own slot.
func TreeReduce[T any](parts []T, merge func(a, b T) T) T {
	var zero T
	if len(parts) == 0 {
		return zero
	}
	level := append([]T(nil), parts...)
	for len(level) > 1 {
		next := make([]T, (len(level)+1)/2)
		var g errgroup.Group
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next[i/2] = level[i]
				continue
			}
			g.Go(func() error {
				next[i/2] = merge(level[i], level[i+1])
				return nil
			})
		}
		_ = g.Wait()
		level = next
	}
	return level[0]
}
