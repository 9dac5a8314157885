package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time and timers.
type Clock interface {
	Now() time.Time
	Location() *time.Location
	After(d time.Duration) <-chan time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

// RealClock reports wall time in a fixed deployment location.
type RealClock struct {
	loc *time.Location
}

func New(loc *time.Location) *RealClock {
	if loc == nil {
		loc = time.UTC
	}
	return &RealClock{loc: loc}
}

func (c *RealClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *RealClock) Location() *time.Location {
	return c.loc
}

func (c *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

var Module = fx.Module("clock",
	fx.Provide(
		fx.Annotate(New, fx.As(new(Clock))),
	),
)
