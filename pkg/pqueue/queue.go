// Package pqueue provides a bounded, thread-safe multi-level priority queue.
//
// Items are drained strictly by priority level, FIFO within a level. The
// queue has a total capacity bound; when full, the lowest-priority pending
// item is dropped to make room for a higher-priority arrival, and arrivals
// that do not outrank anything pending are dropped themselves. The top
// level is therefore never evicted by lower levels.
//
// Statistics are always collected. Prometheus metrics are optional via
// WithMetrics().
package pqueue

import (
	"sync"

	"github.com/floorlink/floorlink/errors"
)

// PriorityOf extracts the priority level of an item. Levels run from 0
// (lowest) to levels-1 (highest); out-of-range values are clamped.
type PriorityOf[T any] func(item T) int

// DropCallback is called with each item dropped due to overflow.
type DropCallback[T any] func(item T)

// Queue is a bounded multi-level priority queue.
type Queue[T any] struct {
	mu         sync.Mutex
	lanes      [][]T // index = priority level, FIFO per lane
	size       int
	capacity   int
	priorityOf PriorityOf[T]
	stats      *Statistics
	metrics    *queueMetrics
	opts       *queueOptions[T]
	closed     bool

	// ready is a one-slot signal channel; a consumer blocks on Ready()
	// and drains with Pop until empty.
	ready chan struct{}
}

// New creates a queue with the given number of priority levels and total
// capacity. Returns an error if metrics registration fails when requested.
func New[T any](levels, capacity int, priorityOf PriorityOf[T], options ...Option[T]) (*Queue[T], error) {
	if levels <= 0 {
		levels = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	if priorityOf == nil {
		return nil, errors.WrapInternal(errors.ErrInvalidConfig, "pqueue", "New", "nil priority function")
	}

	opts := applyOptions(options...)

	var metrics *queueMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newQueueMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapInternal(err, "pqueue", "New", "metrics registration")
		}
	}

	q := &Queue[T]{
		lanes:      make([][]T, levels),
		capacity:   capacity,
		priorityOf: priorityOf,
		stats:      NewStatistics(),
		metrics:    metrics,
		opts:       opts,
		ready:      make(chan struct{}, 1),
	}
	return q, nil
}

// Push inserts an item at its priority level. When the queue is full, the
// oldest item of the lowest pending level is evicted if the arrival
// outranks it; otherwise the arrival itself is dropped. Dropping is not an
// error to the caller; it is recorded in statistics and reported through
// the drop callback.
func (q *Queue[T]) Push(item T) error {
	level := q.clampLevel(q.priorityOf(item))

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.WrapDelivery(errors.ErrQueueClosed, "Queue", "Push", "push to closed queue")
	}

	var dropped []T
	if q.size == q.capacity {
		lowest := q.lowestPendingLevel()
		if lowest < level {
			// Evict the oldest item of the lowest pending lane.
			victim := q.lanes[lowest][0]
			q.lanes[lowest] = q.lanes[lowest][1:]
			q.size--
			dropped = append(dropped, victim)
		} else {
			// Arrival does not outrank anything pending.
			q.stats.Drop()
			q.stats.Overflow()
			if q.metrics != nil {
				q.metrics.recordDrop()
			}
			q.mu.Unlock()
			if q.opts.dropCallback != nil {
				q.opts.dropCallback(item)
			}
			return nil
		}
		q.stats.Drop()
		q.stats.Overflow()
		if q.metrics != nil {
			q.metrics.recordDrop()
		}
	}

	q.lanes[level] = append(q.lanes[level], item)
	q.size++
	q.stats.Push(q.size)
	if q.metrics != nil {
		q.metrics.recordDepth(q.size)
	}
	q.mu.Unlock()

	if q.opts.dropCallback != nil {
		for _, d := range dropped {
			q.opts.dropCallback(d)
		}
	}
	q.signal()
	return nil
}

// Pop removes and returns the head of the highest-priority non-empty lane.
// Returns the zero value and false when the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero, false
	}

	for level := len(q.lanes) - 1; level >= 0; level-- {
		if len(q.lanes[level]) == 0 {
			continue
		}
		item := q.lanes[level][0]
		q.lanes[level] = q.lanes[level][1:]
		q.size--
		q.stats.Pop()
		if q.metrics != nil {
			q.metrics.recordDepth(q.size)
		}
		return item, true
	}
	return zero, false
}

// Len returns the current number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the total capacity bound
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Ready returns a signal channel that receives after pushes. Consumers
// block on it and drain with Pop until empty; the channel is one-slot so
// bursts coalesce into a single wakeup.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Stats returns queue statistics (always collected)
func (q *Queue[T]) Stats() *Statistics {
	return q.stats
}

// Close marks the queue closed. Pending items stay readable via Pop; the
// ready channel is signalled one final time so a blocked consumer wakes.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Closed reports whether the queue has been closed
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level >= len(q.lanes) {
		return len(q.lanes) - 1
	}
	return level
}

// lowestPendingLevel returns the lowest non-empty lane. Caller holds q.mu
// and guarantees size > 0.
func (q *Queue[T]) lowestPendingLevel() int {
	for level := 0; level < len(q.lanes); level++ {
		if len(q.lanes[level]) > 0 {
			return level
		}
	}
	return len(q.lanes) - 1
}
