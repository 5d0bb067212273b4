package pqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorlink/floorlink/errors"
)

type item struct {
	id    int
	level int
}

func newTestQueue(t *testing.T, levels, capacity int, options ...Option[item]) *Queue[item] {
	t.Helper()
	q, err := New[item](levels, capacity, func(i item) int { return i.level }, options...)
	require.NoError(t, err)
	return q
}

func TestQueueRequiresPriorityFunc(t *testing.T) {
	_, err := New[int](4, 8, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestQueuePopOrderByPriorityThenFIFO(t *testing.T) {
	q := newTestQueue(t, 4, 16)

	require.NoError(t, q.Push(item{id: 1, level: 0}))
	require.NoError(t, q.Push(item{id: 2, level: 3}))
	require.NoError(t, q.Push(item{id: 3, level: 1}))
	require.NoError(t, q.Push(item{id: 4, level: 3}))
	require.NoError(t, q.Push(item{id: 5, level: 1}))

	var got []int
	for {
		it, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, it.id)
	}

	// Highest level first, FIFO within a level.
	assert.Equal(t, []int{2, 4, 3, 5, 1}, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueueOverflowEvictsLowestPendingFirst(t *testing.T) {
	var dropped []item
	q := newTestQueue(t, 4, 3, WithDropCallback[item](func(i item) {
		dropped = append(dropped, i)
	}))

	require.NoError(t, q.Push(item{id: 1, level: 0}))
	require.NoError(t, q.Push(item{id: 2, level: 1}))
	require.NoError(t, q.Push(item{id: 3, level: 2}))

	// Queue is full; a higher-priority arrival evicts the oldest of the
	// lowest pending lane.
	require.NoError(t, q.Push(item{id: 4, level: 3}))

	require.Len(t, dropped, 1)
	assert.Equal(t, 1, dropped[0].id)
	assert.Equal(t, 3, q.Len())

	it, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 4, it.id)
}

func TestQueueOverflowDropsArrivalThatDoesNotOutrank(t *testing.T) {
	var dropped []item
	q := newTestQueue(t, 4, 2, WithDropCallback[item](func(i item) {
		dropped = append(dropped, i)
	}))

	require.NoError(t, q.Push(item{id: 1, level: 2}))
	require.NoError(t, q.Push(item{id: 2, level: 2}))

	// Same level as everything pending: the arrival is the victim.
	require.NoError(t, q.Push(item{id: 3, level: 2}))

	require.Len(t, dropped, 1)
	assert.Equal(t, 3, dropped[0].id)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, int64(1), q.Stats().Drops())
	assert.Equal(t, int64(1), q.Stats().Overflows())
}

func TestQueueTopLevelNeverEvictedByLower(t *testing.T) {
	var dropped []item
	q := newTestQueue(t, 4, 2, WithDropCallback[item](func(i item) {
		dropped = append(dropped, i)
	}))

	require.NoError(t, q.Push(item{id: 1, level: 3}))
	require.NoError(t, q.Push(item{id: 2, level: 3}))
	require.NoError(t, q.Push(item{id: 3, level: 0}))

	require.Len(t, dropped, 1)
	assert.Equal(t, 3, dropped[0].id)

	first, ok := q.Pop()
	require.True(t, ok)
	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, first.id)
	assert.Equal(t, 2, second.id)
}

func TestQueueFloodedWithLowStillAcceptsCritical(t *testing.T) {
	q := newTestQueue(t, 4, 4)

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Push(item{id: i, level: 0}))
	}
	require.NoError(t, q.Push(item{id: 100, level: 3}))

	it, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 100, it.id, "top-level arrival survives a flooded queue")
}

func TestQueueClampsOutOfRangeLevels(t *testing.T) {
	q := newTestQueue(t, 4, 8)

	require.NoError(t, q.Push(item{id: 1, level: -5}))
	require.NoError(t, q.Push(item{id: 2, level: 99}))

	it, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, it.id, "clamped-high item drains first")
}

func TestQueueReadySignalCoalesces(t *testing.T) {
	q := newTestQueue(t, 4, 16)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(item{id: i, level: 1}))
	}

	// Burst of pushes produces a single pending wakeup; the consumer
	// drains everything after one receive.
	<-q.Ready()
	count := 0
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
		count++
	}
	assert.Equal(t, 5, count)

	select {
	case <-q.Ready():
		t.Fatal("expected no second wakeup")
	default:
	}
}

func TestQueueCloseRejectsPushKeepsPop(t *testing.T) {
	q := newTestQueue(t, 4, 8)
	require.NoError(t, q.Push(item{id: 1, level: 1}))

	q.Close()
	assert.True(t, q.Closed())

	err := q.Push(item{id: 2, level: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrQueueClosed))

	// Close signals ready so a blocked consumer wakes to drain.
	<-q.Ready()
	it, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, it.id)

	q.Close() // idempotent
}

func TestQueueConcurrentPushPop(t *testing.T) {
	q := newTestQueue(t, 4, 1024)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(level int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = q.Push(item{id: i, level: level})
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 400, q.Len())
	assert.Equal(t, int64(400), q.Stats().Pushes())
	assert.Equal(t, int64(400), q.Stats().HighWater())

	for i := 0; i < 400; i++ {
		_, ok := q.Pop()
		require.True(t, ok)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestStatisticsHighWater(t *testing.T) {
	s := NewStatistics()
	s.Push(3)
	s.Push(1)
	s.Push(7)
	s.Push(5)
	assert.Equal(t, int64(7), s.HighWater())
	assert.Equal(t, int64(4), s.Pushes())
}
