// Package batch partitions an ensemble of trajectory seeds into fixed-size
// batches and splits batch lists across parallel workers.
package batch

import (
	"errors"
	"fmt"
)

// Sentinel pads the tail of the batch grid. Seeds are non-negative, so the
// sentinel never collides with a real seed.
const Sentinel = -1

var (
	ErrBatchSize    = errors.New("batch: batch size must be positive")
	ErrNoSeeds      = errors.New("batch: no seeds to partition")
	ErrNegativeSeed = errors.New("batch: seeds must be non-negative")
	ErrWorkerCount  = errors.New("batch: worker count must be positive")
)

// Batch is one unit of work. Size always equals len(Seeds); the padded grid
// slot it came from may be larger.
type Batch struct {
	Index int
	Seeds []int
	Size  int
}

// Grid returns the seeds laid out in rows of batchSize, padded with Sentinel
// up to ceil(len(seeds)/batchSize)*batchSize entries.
func Grid(seeds []int, batchSize int) ([][]int, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBatchSize, batchSize)
	}
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	n := Count(len(seeds), batchSize)
	grid := make([][]int, n)
	for i := range grid {
		row := make([]int, batchSize)
		for j := range row {
			k := i*batchSize + j
			if k < len(seeds) {
				if seeds[k] < 0 {
					return nil, fmt.Errorf("%w: %d", ErrNegativeSeed, seeds[k])
				}
				row[j] = seeds[k]
			} else {
				row[j] = Sentinel
			}
		}
		grid[i] = row
	}
	return grid, nil
}

// Partition splits seeds into ceil(N/B) batches in seed-list order. Every
// batch but possibly the last holds batchSize seeds.
func Partition(seeds []int, batchSize int) ([]Batch, error) {
	grid, err := Grid(seeds, batchSize)
	if err != nil {
		return nil, err
	}
	out := make([]Batch, len(grid))
	for i, row := range grid {
		trimmed := make([]int, 0, len(row))
		for _, s := range row {
			if s != Sentinel {
				trimmed = append(trimmed, s)
			}
		}
		out[i] = Batch{Index: i, Seeds: trimmed, Size: len(trimmed)}
	}
	return out, nil
}

// Count is the number of batches needed for n seeds.
func Count(n, batchSize int) int {
	return (n + batchSize - 1) / batchSize
}

// Seeds generates offset, offset+1, ..., offset+n-1.
func Seeds(n, offset int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = offset + i
	}
	return out
}

// Span returns the half-open range of batch indices owned by rank when n
// batches are split over workers. Chunks are ceil(n/workers) long, so the
// trailing ranks may get a short or empty range but no batch is left out.
func Span(n, workers, rank int) (lo, hi int, err error) {
	if workers <= 0 {
		return 0, 0, fmt.Errorf("%w: got %d", ErrWorkerCount, workers)
	}
	if rank < 0 || rank >= workers {
		return 0, 0, fmt.Errorf("batch: rank %d outside world of %d", rank, workers)
	}
	chunk := (n + workers - 1) / workers
	lo = min(rank*chunk, n)
	hi = min(lo+chunk, n)
	return lo, hi, nil
}
