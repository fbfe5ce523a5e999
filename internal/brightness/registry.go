package brightness

import "github.com/hoppxi/ddclight/pkg/ddc"

func (s *Service) discover() {
	s.sched.Enqueue(&Command{
		Kind: ddc.KindDetect,
		Bus:  noBus,
		Argv: s.tool.Detect(),
		Done: s.onDetect,
	})
}

func (s *Service) onDetect(out string, err error) {
	found := ddc.ParseDetect(out)
	if len(found) == 0 {
		s.log.Info("no DDC buses found", "err", err)
		return
	}

	added := s.buses.union(found)
	if len(added) == 0 {
		return
	}
	s.storeKnown()
	s.log.Info("DDC buses", "buses", s.buses.ids(), "added", added)
	s.events.emit(Event{Type: EventDisplaysChanged})

	for _, id := range added {
		b, _ := s.buses.get(id)
		s.requestRead(b, false)
	}
}

// scheduleRedetect keeps re-running detection until a bus is known.
func (s *Service) scheduleRedetect() {
	s.redetectTimer = s.r.After(s.tune.RedetectInterval, func() {
		if s.closed || len(s.buses.order) > 0 {
			s.redetectTimer = nil
			return
		}
		s.log.Debug("no displays yet, re-running detect")
		s.discover()
		s.scheduleRedetect()
	})
}
