package dispatch

import "sync/atomic"

// Clock is the logical clock that numbers committed dispatches.
//
// Every successful dispatch takes the next seq. Failed dispatches do not
// consume one, so journaled seqs are gap-free.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// although the dispatcher only advances it while holding the store lock.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
// Used to resume numbering from a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
