package utils

import (
	"context"
	"sync"
	"testing"

	"go.viam.com/test"
)

func TestSplitRange(t *testing.T) {
	test.That(t, SplitRange(0, 4), test.ShouldBeEmpty)
	test.That(t, SplitRange(3, 8), test.ShouldResemble, []Range{{0, 1}, {1, 2}, {2, 3}})
	test.That(t, SplitRange(10, 3), test.ShouldResemble, []Range{{0, 4}, {4, 7}, {7, 10}})
	test.That(t, SplitRange(5, 0), test.ShouldResemble, []Range{{0, 5}})

	for _, total := range []int{1, 7, 64, 1001} {
		for _, groups := range []int{1, 2, 4, 9} {
			ranges := SplitRange(total, groups)
			test.That(t, len(ranges), test.ShouldEqual, min(total, groups))
			next := 0
			for _, r := range ranges {
				test.That(t, r.From, test.ShouldEqual, next)
				test.That(t, r.Len(), test.ShouldBeGreaterThan, 0)
				test.That(t, r.Len(), test.ShouldBeLessThanOrEqualTo, ranges[0].Len())
				test.That(t, r.Len(), test.ShouldBeGreaterThanOrEqualTo, ranges[0].Len()-1)
				next = r.To
			}
			test.That(t, next, test.ShouldEqual, total)
		}
	}
}

func TestParallelRangesCoversEveryItemOnce(t *testing.T) {
	for _, total := range []int{0, 1, 3, 7, 64, 1001} {
		for _, factor := range []int{1, 2, 4, 9} {
			hits := make([]int, total)
			var mu sync.Mutex
			groups := map[int]bool{}
			err := ParallelRangesN(context.Background(), factor, total, func(group int, r Range) {
				mu.Lock()
				defer mu.Unlock()
				groups[group] = true
				for i := r.From; i < r.To; i++ {
					hits[i]++
				}
			})
			test.That(t, err, test.ShouldBeNil)
			test.That(t, len(groups), test.ShouldEqual, min(total, factor))
			for i := range hits {
				test.That(t, hits[i], test.ShouldEqual, 1)
			}
		}
	}
}

func TestParallelRangesCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := ParallelRanges(ctx, 10, func(group int, r Range) {
		called = true
	})
	test.That(t, err, test.ShouldBeError, context.Canceled)
	test.That(t, called, test.ShouldBeFalse)
}
