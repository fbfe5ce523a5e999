package debounce

import (
	"sync"
	"time"
)

// Setter coalesces rapid value changes into one apply call made after the
// value has stopped changing for the configured delay.
type Setter struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending *int
	apply   func(int)
}

// New returns a Setter that calls apply with the last pushed percent once
// delay has passed without a new push.
func New(delay time.Duration, apply func(int)) *Setter {
	return &Setter{delay: delay, apply: apply}
}

// Push schedules a write of value, clamped to 0..100, restarting the timer.
func (s *Setter) Push(value int) {
	value = max(0, min(100, value))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = &value
	s.cancelLocked()
	s.timer = time.AfterFunc(s.delay, func() { s.fire() })
}

// FlushNow applies the pending value immediately, if there is one. It
// reports whether apply was called.
func (s *Setter) FlushNow() bool {
	s.mu.Lock()
	s.cancelLocked()
	s.mu.Unlock()
	return s.fire()
}

// Stop drops any pending value without applying it.
func (s *Setter) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.pending = nil
}

func (s *Setter) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *Setter) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Setter) fire() bool {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return false
	}
	v := *s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	s.apply(v)
	return true
}
