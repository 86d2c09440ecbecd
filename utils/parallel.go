package utils

import (
	"context"
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
	quarterProcs := float64(ParallelFactor) * .25
	if quarterProcs > 8 {
		ParallelFactor = int(quarterProcs)
	}
}

// Range is the half-open item range [From, To).
type Range struct {
	From, To int
}

// Len returns the number of items in the range.
func (r Range) Len() int {
	return r.To - r.From
}

// SplitRange cuts [0, total) into at most groups contiguous, ordered, non-empty ranges whose
// lengths differ by at most one.
func SplitRange(total, groups int) []Range {
	if groups <= 0 {
		groups = 1
	}
	if total < groups {
		groups = total
	}
	if groups <= 0 {
		return nil
	}
	size, extra := total/groups, total%groups
	ranges := make([]Range, groups)
	from := 0
	for i := range ranges {
		to := from + size
		if i < extra {
			to++
		}
		ranges[i] = Range{From: from, To: to}
		from = to
	}
	return ranges
}

// RangeFunc processes the items of one group.
type RangeFunc func(group int, r Range)

// ParallelRanges splits total items over ParallelFactor groups and runs them concurrently.
func ParallelRanges(ctx context.Context, total int, fn RangeFunc) error {
	return ParallelRangesN(ctx, ParallelFactor, total, fn)
}

// ParallelRangesN runs fn once per range of SplitRange(total, factor), each on its own
// goroutine, and waits for all of them. A canceled context runs nothing.
func ParallelRangesN(ctx context.Context, factor, total int, fn RangeFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ranges := SplitRange(total, factor)
	if len(ranges) == 1 {
		fn(0, ranges[0])
		return nil
	}

	var wait sync.WaitGroup
	wait.Add(len(ranges))
	for group, r := range ranges {
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			fn(group, r)
		})
	}
	wait.Wait()
	return nil
}
