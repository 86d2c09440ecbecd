// Package queue provides a bounded, mutex guarded FIFO used to buffer frames and jobs ahead of
// the transform engine.
package queue

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrQueueClosed indicates that a push was attempted on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrQueueFull indicates that a push was refused by a full RejectNew queue.
	ErrQueueFull = errors.New("queue is full")
	// ErrInvalidSize is returned by New when the maximum size is not positive.
	ErrInvalidSize = errors.New("queue size must be positive")
)

// FullPolicy decides what a push does when the queue is at its maximum size.
type FullPolicy int

const (
	// RejectNew refuses the new element and leaves the queue unchanged.
	RejectNew FullPolicy = iota
	// EvictOldest removes the front element, hands it to the release callback and then inserts.
	EvictOldest
)

func (p FullPolicy) String() string {
	switch p {
	case RejectNew:
		return "reject_new"
	case EvictOldest:
		return "evict_oldest"
	default:
		return "unknown"
	}
}

// ParseFullPolicy parses "reject_new" or "evict_oldest".
func ParseFullPolicy(s string) (FullPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject_new", "reject":
		return RejectNew, nil
	case "evict_oldest", "evict":
		return EvictOldest, nil
	default:
		return RejectNew, errors.Errorf("unknown full queue policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p FullPolicy) MarshalText() ([]byte, error) {
	if p != RejectNew && p != EvictOldest {
		return nil, errors.Errorf("unknown full queue policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *FullPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseFullPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Queue is a bounded FIFO. All methods are safe for concurrent use; every mutation happens under
// a single lock.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int
	size    int
	policy  FullPolicy
	release func(T)
	closed  bool
	evicted int
	ready   chan struct{}
}

// New returns an empty queue holding at most maxSize elements. release, which may be nil, is
// called with each element evicted under EvictOldest.
func New[T any](maxSize int, policy FullPolicy, release func(T)) (*Queue[T], error) {
	if maxSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "got %d", maxSize)
	}
	if policy != RejectNew && policy != EvictOldest {
		return nil, errors.Errorf("unknown full queue policy %d", int(policy))
	}
	return &Queue[T]{
		items:   make([]T, maxSize),
		policy:  policy,
		release: release,
		ready:   make(chan struct{}, 1),
	}, nil
}

// TryPushBack appends item. It returns false if the queue is closed, or if it is full under
// RejectNew. Under EvictOldest a full queue first releases its front element; the release
// callback runs synchronously, with the queue locked, before item is inserted.
func (q *Queue[T]) TryPushBack(item T) bool {
	return q.PushBack(item) == nil
}

// PushBack is TryPushBack with an error describing why item was not queued: ErrQueueClosed or
// ErrQueueFull, decided under the same lock as the push.
func (q *Queue[T]) PushBack(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.size == len(q.items) {
		if q.policy == RejectNew {
			return ErrQueueFull
		}
		oldest := q.popLocked()
		q.evicted++
		if q.release != nil {
			q.release(oldest)
		}
	}
	q.items[(q.head+q.size)%len(q.items)] = item
	q.size++

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// TryPopFront removes and returns the oldest element.
func (q *Queue[T]) TryPopFront() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

func (q *Queue[T]) popLocked() T {
	var zero T
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return item
}

// Front returns the oldest element without removing it.
func (q *Queue[T]) Front() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.items[q.head], true
}

// Back returns the newest element without removing it.
func (q *Queue[T]) Back() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.items[(q.head+q.size-1)%len(q.items)], true
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// MaxSize returns the capacity the queue was created with.
func (q *Queue[T]) MaxSize() int {
	return len(q.items)
}

// Evicted returns how many elements EvictOldest has released so far.
func (q *Queue[T]) Evicted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// Ready is signaled after a successful push. It holds at most one pending signal, so a consumer
// should drain the queue each time it receives.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Close stops the queue from accepting new elements. Queued elements can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// IsClosed returns whether or not q is closed.
func (q *Queue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
