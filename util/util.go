package util

import "sync"

// Counter is a thread safe monotonic integer counter
type Counter struct {
	counter int
	mtx     *sync.Mutex
}

func NewCounter() *Counter {
	return NewCounterFrom(0)
}

// NewCounterFrom returns a counter whose first value is start
func NewCounterFrom(start int) *Counter {
	return &Counter{
		counter: start,
		mtx:     new(sync.Mutex),
	}
}

func (c *Counter) Next() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	cur := c.counter
	c.counter = c.counter + 1

	return cur
}

// AdvancePast makes sure the next value is strictly greater than v.
// The counter never moves backwards.
func (c *Counter) AdvancePast(v int) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if v >= c.counter {
		c.counter = v + 1
	}
}
