package compute

import (
	"context"

	"golang.org/x/sync/semaphore"

	"go.viam.com/panorama/utils"
)

// ParallelOptions configures a Parallel backend.
type ParallelOptions struct {
	// Workers is the number of groups a batch is split into. Zero uses utils.ParallelFactor.
	Workers int
	// MinBatch is the smallest batch worth splitting; smaller batches run on the caller.
	MinBatch int
	// MaxConcurrentSubmissions bounds how many batches may use the workers at once. Zero means 1.
	MaxConcurrentSubmissions int
}

// DefaultMinBatch is the MinBatch used when none is configured.
const DefaultMinBatch = 1024

// Parallel splits a batch into contiguous groups and processes the groups concurrently. Each
// group writes a disjoint range of the output buffer, so results land in input order without
// any merge step. Submissions are admitted through a weighted semaphore that stands in for the
// shared execution context of an accelerator.
type Parallel struct {
	workers  int
	minBatch int
	sem      *semaphore.Weighted
}

// NewParallel returns a Parallel backend.
func NewParallel(opts ParallelOptions) *Parallel {
	workers := opts.Workers
	if workers <= 0 {
		workers = utils.ParallelFactor
	}
	minBatch := opts.MinBatch
	if minBatch <= 0 {
		minBatch = DefaultMinBatch
	}
	submissions := opts.MaxConcurrentSubmissions
	if submissions <= 0 {
		submissions = 1
	}
	return &Parallel{
		workers:  workers,
		minBatch: minBatch,
		sem:      semaphore.NewWeighted(int64(submissions)),
	}
}

// Name returns "parallel".
func (p *Parallel) Name() string {
	return "parallel"
}

// Run applies fn to every point and blocks until all points are done.
func (p *Parallel) Run(in []float32, inStride int, out []float32, outStride int, fn PointFunc) error {
	n, err := CheckBuffers(in, inStride, out, outStride)
	if err != nil {
		return err
	}
	if n < p.minBatch || p.workers == 1 {
		runRange(in, inStride, out, outStride, fn, 0, n)
		return nil
	}

	ctx := context.Background()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	return utils.ParallelRangesN(ctx, p.workers, n, func(_ int, r utils.Range) {
		runRange(in, inStride, out, outStride, fn, r.From, r.To)
	})
}
