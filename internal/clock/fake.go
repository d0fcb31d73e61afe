package clock

import (
	"sync/atomic"
	"time"
)

// FakeClock only moves when a test calls Advance. It is safe to share with
// goroutines started by the code under test.
type FakeClock struct {
	nanos atomic.Int64
}

func NewFakeClock(start time.Time) *FakeClock {
	c := &FakeClock{}
	c.nanos.Store(start.UnixNano())
	return c
}

func (c *FakeClock) Now() time.Time {
	return time.Unix(0, c.nanos.Load()).UTC()
}

func (c *FakeClock) Advance(d time.Duration) {
	c.nanos.Add(int64(d))
}

var _ Clock = (*FakeClock)(nil)
