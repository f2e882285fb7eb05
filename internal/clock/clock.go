// Package clock provides the time source used for every "today" and
// "already elapsed" decision. Handlers never call time.Now directly, so
// tests can pin the instant.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type realClock struct {
	loc *time.Location
}

// New returns a Clock reporting wall time in the given location. This is the
// clinic-wide default; per-doctor cutoffs shift the instant with InZone.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return realClock{loc: loc}
}

func (c realClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// InZone shifts an instant into the named IANA zone. An empty or unknown
// name leaves t in the clock's own location, so a doctor with no usable
// timezone falls back to the clinic default.
func InZone(t time.Time, name string) time.Time {
	if name == "" {
		return t
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return t
	}
	return t.In(loc)
}

// Fixed is a Clock pinned to one instant, for tests.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time { return f.At }
