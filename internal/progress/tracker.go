package progress

import (
	"math"
	"sync/atomic"
	"time"
)

// Tracker holds the job progress value. Writers may race (stage callback and heartbeat);
// the stored value never decreases until Reset.
type Tracker struct {
	v atomic.Int32
}

// Advance raises the value to p if p is higher and returns the current value.
func (t *Tracker) Advance(p int) int {
	if p > 100 {
		p = 100
	}
	for {
		cur := t.v.Load()
		if int32(p) <= cur {
			return int(cur)
		}
		if t.v.CompareAndSwap(cur, int32(p)) {
			return p
		}
	}
}

// Value returns the current progress.
func (t *Tracker) Value() int {
	return int(t.v.Load())
}

// Reset sets the value back to zero at job start.
func (t *Tracker) Reset() {
	t.v.Store(0)
}

// Signal records a stage's latest reported fraction and when the stage last showed any sign of life.
type Signal struct {
	fraction atomic.Uint64
	last     atomic.Int64
	now      func() time.Time
}

// NewSignal returns a Signal whose last activity is now.
func NewSignal() *Signal {
	s := &Signal{now: time.Now}
	s.Touch()
	return s
}

// Report stores a stage fraction. Lower values than already seen are ignored for the fraction
// but still count as activity.
func (s *Signal) Report(fraction float64) {
	fraction = clamp01(fraction)
	for {
		cur := s.fraction.Load()
		if fraction <= math.Float64frombits(cur) {
			break
		}
		if s.fraction.CompareAndSwap(cur, math.Float64bits(fraction)) {
			break
		}
	}
	s.Touch()
}

// Touch marks activity without a fraction, e.g. a successful remote poll.
func (s *Signal) Touch() {
	s.last.Store(s.now().UnixNano())
}

// Fraction returns the highest fraction reported so far.
func (s *Signal) Fraction() float64 {
	return math.Float64frombits(s.fraction.Load())
}

// Idle returns how long ago the last activity was recorded.
func (s *Signal) Idle() time.Duration {
	return s.now().Sub(time.Unix(0, s.last.Load()))
}
