package builder

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Below this many items a parallel stage runs as a single task.
const minItemsPerTask = 4096

// parallelFor splits [0, n) into contiguous ranges of at least
// minItemsPerTask items and runs fn on each range concurrently. It returns
// once every range has been processed.
func parallelFor(ctx context.Context, n, workers int, fn func(lo, hi int)) error {
	return runTasks(ctx, n, min(workers, (n+minItemsPerTask-1)/minItemsPerTask), fn)
}

// runTasks splits [0, n) into the given number of contiguous ranges and
// runs fn on each range concurrently.
func runTasks(ctx context.Context, n, tasks int, fn func(lo, hi int)) error {
	if err := ctx.Err(); err != nil || n == 0 {
		return err
	}
	if tasks <= 1 {
		fn(0, n)
		return nil
	}

	step := (n + tasks - 1) / tasks
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += step {
		lo, hi := lo, min(lo+step, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}

// exclusiveScan writes the exclusive prefix sum of in to out and returns the
// total. It uses the classic two-pass block scan: per-block sums, a serial
// scan over the block sums, then per-block local scans seeded with the block
// offset.
func exclusiveScan(ctx context.Context, in, out []uint32, workers int) (uint32, error) {
	n := len(in)
	if n == 0 {
		return 0, ctx.Err()
	}

	blocks := max(1, min(workers, (n+minItemsPerTask-1)/minItemsPerTask))
	step := (n + blocks - 1) / blocks
	blockSums := make([]uint32, blocks)

	err := runTasks(ctx, blocks, blocks, func(lo, hi int) {
		for b := lo; b < hi; b++ {
			var sum uint32
			for i := b * step; i < min((b+1)*step, n); i++ {
				sum += in[i]
			}
			blockSums[b] = sum
		}
	})
	if err != nil {
		return 0, err
	}

	var total uint32
	for b, sum := range blockSums {
		blockSums[b] = total
		total += sum
	}

	err = runTasks(ctx, blocks, blocks, func(lo, hi int) {
		for b := lo; b < hi; b++ {
			acc := blockSums[b]
			for i := b * step; i < min((b+1)*step, n); i++ {
				v := in[i]
				out[i] = acc
				acc += v
			}
		}
	})
	return total, err
}

// segmentStarts returns the indices at which a new run of equal values
// begins in a sorted key sequence. keyAt maps an index to its (possibly
// truncated) key.
func segmentStarts[K comparable](ctx context.Context, n, workers int, keyAt func(int) K) ([]uint32, error) {
	flags := make([]uint32, n)
	err := parallelFor(ctx, n, workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			if i == 0 || keyAt(i) != keyAt(i-1) {
				flags[i] = 1
			}
		}
	})
	if err != nil {
		return nil, err
	}

	slots := make([]uint32, n)
	count, err := exclusiveScan(ctx, flags, slots, workers)
	if err != nil {
		return nil, err
	}

	starts := make([]uint32, count)
	err = parallelFor(ctx, n, workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			if flags[i] == 1 {
				starts[slots[i]] = uint32(i)
			}
		}
	})
	return starts, err
}

// parallelSortStable sorts items in independently sorted chunks and then
// merges pairs of runs until a single run remains. Equal elements keep their
// input order.
func parallelSortStable[T any](ctx context.Context, items []T, workers int, cmp func(a, b T) int) error {
	n := len(items)
	chunks := max(1, min(workers, (n+minItemsPerTask-1)/minItemsPerTask))
	step := (n + chunks - 1) / chunks
	if chunks == 1 {
		slices.SortStableFunc(items, cmp)
		return ctx.Err()
	}

	runs := make([][2]int, 0, chunks)
	for lo := 0; lo < n; lo += step {
		runs = append(runs, [2]int{lo, min(lo+step, n)})
	}
	err := runTasks(ctx, len(runs), len(runs), func(lo, hi int) {
		for r := lo; r < hi; r++ {
			slices.SortStableFunc(items[runs[r][0]:runs[r][1]], cmp)
		}
	})
	if err != nil {
		return err
	}

	src, dst := items, make([]T, n)
	for len(runs) > 1 {
		merged := make([][2]int, 0, (len(runs)+1)/2)
		for r := 0; r < len(runs); r += 2 {
			if r+1 < len(runs) {
				merged = append(merged, [2]int{runs[r][0], runs[r+1][1]})
			} else {
				merged = append(merged, runs[r])
			}
		}

		curRuns := runs
		err = runTasks(ctx, len(merged), len(merged), func(lo, hi int) {
			for m := lo; m < hi; m++ {
				left := curRuns[2*m]
				if 2*m+1 >= len(curRuns) {
					copy(dst[left[0]:left[1]], src[left[0]:left[1]])
					continue
				}
				right := curRuns[2*m+1]
				mergeRuns(dst[left[0]:right[1]], src[left[0]:left[1]], src[right[0]:right[1]], cmp)
			}
		})
		if err != nil {
			return err
		}

		runs = merged
		src, dst = dst, src
	}

	if &src[0] != &items[0] {
		copy(items, src)
	}
	return nil
}

// mergeRuns merges two sorted runs into out, preferring the left run on ties.
func mergeRuns[T any](out, left, right []T, cmp func(a, b T) int) {
	i, j, k := 0, 0, 0
	for i < len(left) && j < len(right) {
		if cmp(right[j], left[i]) < 0 {
			out[k] = right[j]
			j++
		} else {
			out[k] = left[i]
			i++
		}
		k++
	}
	k += copy(out[k:], left[i:])
	copy(out[k:], right[j:])
}
