package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually advanced clock. Timers fire synchronously from
// Advance in deadline order.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	loc     *time.Location
	seq     int
	waiters []*fakeTimer
}

type fakeTimer struct {
	clock    *FakeClock
	id       int
	deadline time.Time
	fn       func()
	ch       chan time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t, loc: t.Location()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Location() *time.Location {
	return c.loc
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.schedule(d, nil, ch)
	return ch
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.schedule(d, f, nil)
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []*fakeTimer
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(now) {
			due = append(due, w)
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].id < due[j].id
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, w := range due {
		if w.fn != nil {
			w.fn()
		}
		if w.ch != nil {
			w.ch <- now
		}
	}
}

func (c *FakeClock) schedule(d time.Duration, fn func(), ch chan time.Time) *fakeTimer {
	c.mu.Lock()
	c.seq++
	w := &fakeTimer{clock: c, id: c.seq, deadline: c.now.Add(d), fn: fn, ch: ch}
	if d > 0 {
		c.waiters = append(c.waiters, w)
		c.mu.Unlock()
		return w
	}
	now := c.now
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	if ch != nil {
		ch <- now
	}
	return w
}

func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == t {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}
