package pqueue

import "sync/atomic"

// Statistics tracks queue activity counters. All fields are updated
// atomically and safe for concurrent reads.
type Statistics struct {
	pushes    atomic.Int64
	pops      atomic.Int64
	drops     atomic.Int64
	overflows atomic.Int64
	highWater atomic.Int64
}

// NewStatistics creates a zeroed statistics block
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Push records a successful push and updates the high-water mark
func (s *Statistics) Push(depth int) {
	s.pushes.Add(1)
	for {
		hw := s.highWater.Load()
		if int64(depth) <= hw || s.highWater.CompareAndSwap(hw, int64(depth)) {
			return
		}
	}
}

// Pop records a successful pop
func (s *Statistics) Pop() { s.pops.Add(1) }

// Drop records a dropped item
func (s *Statistics) Drop() { s.drops.Add(1) }

// Overflow records a capacity overflow occurrence
func (s *Statistics) Overflow() { s.overflows.Add(1) }

// Pushes returns the total number of accepted pushes
func (s *Statistics) Pushes() int64 { return s.pushes.Load() }

// Pops returns the total number of pops
func (s *Statistics) Pops() int64 { return s.pops.Load() }

// Drops returns the total number of dropped items
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// Overflows returns the number of times the queue hit capacity
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// HighWater returns the maximum observed queue depth
func (s *Statistics) HighWater() int64 { return s.highWater.Load() }
