// Package brightness drives external displays to requested brightness
// percentages through ddcutil.
//
// Every ddcutil call is slow and may fail or hang, so the Service never
// blocks its callers: requests are recorded as per-bus targets and a
// single-threaded loop serializes writes and confirming reads until the
// observed value matches the target.
package brightness

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hoppxi/ddclight/pkg/ddc"
)

type Service struct {
	r    Reactor
	tool ddc.Tool
	tune Tuning
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sched *Scheduler
	buses *busStore

	redetectTimer Timer
	pollTimer     Timer
	watchdogTimer Timer
	closed        bool

	mu    sync.RWMutex
	snap  map[int]int
	known []int

	events eventHub
}

// Status is a diagnostic copy of the controller state.
type Status struct {
	Busy       bool        `json:"busy"`
	Queued     int         `json:"queued"`
	HasTimeout bool        `json:"has_timeout"`
	Buses      []BusStatus `json:"buses"`
}

func New(opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "brightness")

	runner := opts.Runner
	if runner == nil {
		runner = ddc.ExecRunner{}
	}
	r := opts.Reactor
	if r == nil {
		loop := NewEventLoop(log)
		go loop.Run(context.Background())
		r = loop
	}
	tune := opts.Tuning
	if tune == (Tuning{}) {
		tune = DefaultTuning()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		r:      r,
		tool:   opts.Tool,
		tune:   tune,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		buses:  newBusStore(),
		snap:   make(map[int]int),
	}
	s.sched = newScheduler(ctx, r, runner, tune, log, schedulerHooks{
		writeInFlight: s.buses.anyInflight,
		onStuck:       s.onStuck,
		onIdle:        s.kickAll,
	})

	if !opts.Tool.HasTimeout() {
		log.Warn("coreutils 'timeout' not found; relying on internal ceiling timers")
	}
	return s
}

// Start runs detection and arms the periodic redetect, poll and watchdog
// timers.
func (s *Service) Start() {
	s.r.Post(func() {
		s.discover()
		s.scheduleRedetect()
		s.schedulePoll()
		s.scheduleWatchdog()
	})
}

// Close stops the timers and kills any running ddcutil process.
func (s *Service) Close() {
	s.cancel()
	s.r.Post(func() {
		s.closed = true
		for _, t := range []Timer{s.redetectTimer, s.pollTimer, s.watchdogTimer} {
			if t != nil {
				t.Stop()
			}
		}
	})
}

// Snapshot maps every known bus to its last published percent, or -1 when
// the bus has not been read yet.
func (s *Service) Snapshot() map[int]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int]int, len(s.known))
	for _, id := range s.known {
		out[id] = s.snap[id]
	}
	return out
}

// Buses returns the known bus ids in ascending order.
func (s *Service) Buses() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.known...)
}

// Subscribe returns a channel of change and discovery events and a func
// that ends the subscription.
func (s *Service) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

func (s *Service) SetPercent(bus, percent int) {
	s.r.Post(func() { s.setPercent(bus, percent) })
}

// SetPercentMany applies percent to each of buses, or to every known bus
// when buses is empty.
func (s *Service) SetPercentMany(buses []int, percent int) {
	ids := append([]int(nil), buses...)
	s.r.Post(func() {
		if len(ids) == 0 {
			ids = s.buses.ids()
		}
		for _, id := range ids {
			s.setPercent(id, percent)
		}
	})
}

// Rediscover runs detection again; newly found buses are added.
func (s *Service) Rediscover() {
	s.r.Post(s.discover)
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	ch := make(chan Status, 1)
	s.r.Post(func() {
		st := Status{
			Busy:       s.sched.Busy(),
			Queued:     len(s.sched.Queued()),
			HasTimeout: s.tool.HasTimeout(),
		}
		s.buses.each(func(b *Bus) { st.Buses = append(st.Buses, b.status()) })
		ch <- st
	})

	select {
	case st := <-ch:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (s *Service) setPercent(id, percent int) {
	b, ok := s.buses.get(id)
	if !ok {
		s.log.Debug("set ignored; bus unavailable", "bus", id)
		return
	}

	p := clampPercent(percent)
	now := s.r.Now()
	b.Target = intPtr(p)
	b.PendingConfirm = &confirmWindow{target: p, expiry: now.Add(s.tune.ConfirmWindow)}
	b.PollSuspendUntil = now.Add(s.tune.ConfirmWindow)

	// optimistic: observers see the new value before the hardware confirms it
	s.publish(b, p)

	if b.MaxRaw == 0 {
		s.requestRead(b, false)
		return
	}
	s.scheduleKick(b)
}

// scheduleKick coalesces kicks for one bus into a single posted callback,
// so several targets set within one loop turn produce one write.
func (s *Service) scheduleKick(b *Bus) {
	if b.kickPending {
		return
	}
	b.kickPending = true
	s.r.Post(func() {
		b.kickPending = false
		s.kick(b)
	})
}

func (s *Service) kickAll() {
	s.buses.each(func(b *Bus) {
		if b.Target != nil && b.MaxRaw > 0 {
			s.scheduleKick(b)
		}
	})
}

func (s *Service) kick(b *Bus) {
	now := s.r.Now()
	switch {
	case s.sched.Busy():
		s.log.Debug("busy, deferring set", "bus", b.ID)
		return
	case b.inBackoff(now):
		s.log.Debug("delaying set during backoff", "bus", b.ID, "until", b.BackoffUntil)
		return
	case b.Target == nil || b.Inflight:
		return
	case b.MaxRaw == 0:
		s.log.Debug("max unknown; set waits for a read", "bus", b.ID)
		return
	case b.Written != nil && *b.Written == *b.Target:
		// already written, waiting for the confirming read
		return
	}

	if b.RetryBudget >= s.tune.MaxWritesWithoutRead {
		s.log.Debug("retry budget spent, waiting for confirm read", "bus", b.ID, "budget", b.RetryBudget)
		s.scheduleConfirm(b, s.tune.ForcedReadDelay)
		return
	}

	target := *b.Target
	raw := percentToRaw(target, b.MaxRaw)
	b.Inflight = true
	b.InflightSince = now
	b.RetryBudget++
	b.Written = nil

	s.log.Debug("kick set", "bus", b.ID, "target", target, "raw", raw, "max", b.MaxRaw)
	s.sched.Enqueue(&Command{
		Kind: ddc.KindSet,
		Bus:  b.ID,
		Argv: s.tool.SetVCP(b.ID, raw),
		Done: func(out string, err error) { s.onWrite(b, target, raw, out, err) },
	})
}

func (s *Service) onWrite(b *Bus, target, raw int, out string, err error) {
	out = ddc.StripANSI(out)
	now := s.r.Now()

	if derr := ddc.Classify(out, err); ddc.IsTransient(derr) {
		s.log.Warn("set failed", "bus", b.ID, "err", derr, "out", strings.TrimSpace(out))
		waited := time.Duration(0)
		if b.Inflight {
			waited = now.Sub(b.InflightSince)
		}
		s.backOff(b, waited, ceilingBackoff)
		return
	}
	if err != nil {
		s.log.Debug("setvcp exited with error", "bus", b.ID, "err", err, "out", strings.TrimSpace(out))
	}
	s.log.Info("set brightness", "bus", b.ID, "raw", raw, "max", b.MaxRaw)

	if b.Target != nil {
		b.PendingConfirm = &confirmWindow{target: *b.Target, expiry: now.Add(s.tune.PostWriteConfirm)}
	}
	b.Written = intPtr(target)
	b.WrittenAt = now
	b.clearInflight()

	s.r.After(s.tune.ConfirmReadDelay, func() { s.requestRead(b, false) })
	s.scheduleKick(b)
}

// requestRead enqueues a getvcp for b. Plain reads are skipped while b has
// a write in flight or is backing off.
func (s *Service) requestRead(b *Bus, forced bool) {
	now := s.r.Now()
	if !forced && (b.Inflight || b.inBackoff(now)) {
		s.log.Debug("read skipped; write inflight or backing off", "bus", b.ID)
		return
	}

	kind := ddc.KindGet
	if forced {
		kind = ddc.KindGetForce
	}
	b.LastReadAt = now
	s.sched.Enqueue(&Command{
		Kind: kind,
		Bus:  b.ID,
		Argv: s.tool.GetVCP(b.ID),
		Done: func(out string, err error) { s.onRead(b, kind, out, err) },
	})
}

// scheduleConfirm arranges a single forced read of b after delay.
func (s *Service) scheduleConfirm(b *Bus, delay time.Duration) {
	if b.confirmScheduled {
		return
	}
	b.confirmScheduled = true
	s.r.After(delay, func() {
		if b.Inflight {
			b.confirmScheduled = false
			return
		}
		s.requestRead(b, true)
	})
}

func (s *Service) onRead(b *Bus, kind ddc.Kind, out string, err error) {
	if kind == ddc.KindGetForce {
		b.confirmScheduled = false
	}
	out = ddc.StripANSI(out)

	if errors.Is(ddc.Classify(out, err), ddc.ErrLockContention) {
		s.log.Warn("getvcp lock contention", "bus", b.ID, "out", strings.TrimSpace(out))
		return
	}

	cur, maxRaw, perr := ddc.ParseGetVCP(out)
	if perr != nil {
		if derr := ddc.Classify(out, err); derr != nil {
			s.log.Warn("getvcp failed", "bus", b.ID, "err", derr, "out", strings.TrimSpace(out))
		} else {
			s.log.Warn("failed to parse getvcp", "bus", b.ID, "err", perr, "out", out)
		}
		return
	}

	now := s.r.Now()
	b.MaxRaw = maxRaw
	b.Written = nil
	if kind == ddc.KindGetForce {
		b.RetryBudget = 0
	}
	pct := rawToPercent(cur, maxRaw)

	if b.Target != nil && pct != *b.Target {
		s.log.Debug("read suppressed", "bus", b.ID, "have", pct, "want", *b.Target)
		s.scheduleKick(b)
		return
	}

	if w := b.PendingConfirm; w != nil {
		if now.Before(w.expiry) && pct != w.target {
			return
		}
		b.PendingConfirm = nil
	}

	if b.Target != nil && pct == *b.Target {
		b.Target = nil
		b.RetryBudget = 0
		b.BackoffUntil = time.Time{}
		b.PollSuspendUntil = time.Time{}
		s.log.Debug("settled", "bus", b.ID, "percent", pct)
	}

	s.publish(b, pct)
}

// backOff clears a write that will not complete normally, blocks new writes
// for a window scaled by how long it waited and schedules one confirming
// read inside that window.
func (s *Service) backOff(b *Bus, waited time.Duration, policy backoffPolicy) {
	now := s.r.Now()
	backoff := policy.window(waited)

	b.clearInflight()
	b.Written = nil
	b.BackoffUntil = now.Add(backoff)
	if b.Target != nil {
		b.PendingConfirm = &confirmWindow{target: *b.Target, expiry: now.Add(backoff + s.tune.ConfirmExtension)}
	}
	s.scheduleConfirm(b, policy.confirmAt(backoff))
}

func (s *Service) onStuck(cmd *Command, waited time.Duration) {
	b, ok := s.buses.get(cmd.Bus)
	if !ok {
		return
	}
	switch cmd.Kind {
	case ddc.KindSet:
		// the watchdog may already have released this write
		if b.Inflight {
			s.backOff(b, waited, ceilingBackoff)
		}
	case ddc.KindGetForce:
		b.confirmScheduled = false
	}
}

func (s *Service) publish(b *Bus, pct int) {
	prev := b.Current
	b.Current = intPtr(pct)

	s.mu.Lock()
	s.snap[b.ID] = pct
	s.mu.Unlock()

	if prev == nil || *prev != pct {
		s.log.Debug("emit", "bus", b.ID, "percent", pct)
		s.events.emit(Event{Type: EventChanged, Bus: b.ID, Percent: pct})
	}
}

func (s *Service) storeKnown() {
	ids := s.buses.ids()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.known = ids
	for _, id := range ids {
		if _, ok := s.snap[id]; !ok {
			s.snap[id] = -1
		}
	}
}
