package brightness

func (s *Service) schedulePoll() {
	if s.tune.PollInterval <= 0 {
		return
	}
	s.pollTimer = s.r.After(s.tune.PollInterval, func() {
		if s.closed {
			return
		}
		s.poll()
		s.schedulePoll()
	})
}

// poll refreshes the primary bus unless any bus is mid-transition.
func (s *Service) poll() {
	now := s.r.Now()
	suspended, pending := false, false
	s.buses.each(func(b *Bus) {
		if now.Before(b.PollSuspendUntil) {
			suspended = true
		}
		if !b.settled() {
			pending = true
		}
	})

	switch {
	case suspended:
		s.log.Debug("poll suspended to avoid contention")
		return
	case pending:
		s.log.Debug("poll skipped; target pending")
		return
	}

	if b, ok := s.buses.primary(); ok {
		s.requestRead(b, false)
	}
}
