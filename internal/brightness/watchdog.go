package brightness

import "time"

func (s *Service) scheduleWatchdog() {
	s.watchdogTimer = s.r.After(s.tune.WatchdogTick, func() {
		if s.closed {
			return
		}
		s.watchdogTick()
		s.scheduleWatchdog()
	})
}

// watchdogTick releases writes that outlived StuckAfter even if no ceiling
// timer fired, unsticks a scheduler left busy without a ceiling, and resumes
// targets nothing else will kick.
func (s *Service) watchdogTick() {
	now := s.r.Now()

	s.buses.each(func(b *Bus) {
		if !b.Inflight {
			return
		}
		age := now.Sub(b.InflightSince)
		if age <= s.tune.StuckAfter {
			return
		}
		s.log.Warn("inflight write stuck, clearing and backing off", "bus", b.ID, "age", age)
		s.backOff(b, age, watchdogBackoff)
	})

	if age, unguarded := s.sched.busyAge(now); age > s.tune.BusyBound {
		if unguarded {
			s.log.Warn("busy with no ceiling; forcing unstick", "age", age)
			s.sched.ForceUnstick("watchdog")
		} else {
			s.log.Warn("busy waiting on current command", "age", age, "timeout_wrapper", s.tool.HasTimeout())
		}
	}

	s.resume(now)
}

func (s *Service) resume(now time.Time) {
	if s.sched.Busy() {
		return
	}
	s.buses.each(func(b *Bus) {
		if b.Target == nil || b.Inflight || b.inBackoff(now) {
			return
		}
		switch {
		case b.MaxRaw == 0:
			if now.Sub(b.LastReadAt) >= s.tune.ReadRetry {
				s.requestRead(b, false)
			}
		case b.Written != nil && *b.Written == *b.Target:
			if now.Sub(b.WrittenAt) >= 2*s.tune.ConfirmWindow {
				b.WrittenAt = now
				s.scheduleConfirm(b, 0)
			}
		default:
			s.scheduleKick(b)
		}
	})
}
