package brightness

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoppxi/ddclight/pkg/ddc"
)

// manualReactor runs callbacks on the test goroutine against a virtual clock.
type manualReactor struct {
	now    time.Time
	ready  []func()
	timers []*manualTimer
	seq    int
}

type manualTimer struct {
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func newManualReactor() *manualReactor {
	return &manualReactor{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *manualReactor) Now() time.Time { return r.now }

func (r *manualReactor) Post(fn func()) { r.ready = append(r.ready, fn) }

func (r *manualReactor) After(d time.Duration, fn func()) Timer {
	r.seq++
	t := &manualTimer{at: r.now.Add(d), seq: r.seq, fn: fn}
	r.timers = append(r.timers, t)
	return t
}

func (r *manualReactor) drain() {
	for len(r.ready) > 0 {
		fn := r.ready[0]
		r.ready = r.ready[1:]
		fn()
	}
}

func (r *manualReactor) nextDue(until time.Time) *manualTimer {
	var next *manualTimer
	for _, t := range r.timers {
		if t.stopped || t.fired || t.at.After(until) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

// Advance moves the clock forward by d, running every callback that falls
// due on the way in deadline order.
func (r *manualReactor) Advance(d time.Duration) {
	until := r.now.Add(d)
	r.drain()
	for {
		t := r.nextDue(until)
		if t == nil {
			break
		}
		r.now = t.at
		t.fired = true
		t.fn()
		r.drain()
	}
	r.now = until
	r.timers = slices.DeleteFunc(r.timers, func(t *manualTimer) bool { return t.fired || t.stopped })
}

type fakeCall struct {
	argv      []string
	kind      ddc.Kind
	startedAt time.Time
	done      func(string, error)
	finished  bool
	cancelled bool
}

func (c *fakeCall) isSet() bool   { return slices.Contains(c.argv, "setvcp") }
func (c *fakeCall) isGet() bool   { return slices.Contains(c.argv, "getvcp") }
func (c *fakeCall) pending() bool { return !c.finished && !c.cancelled }

func (c *fakeCall) bus() int {
	i := slices.Index(c.argv, "--bus")
	if i < 0 {
		return noBus
	}
	b, _ := strconv.Atoi(c.argv[i+1])
	return b
}

func (c *fakeCall) raw() int {
	i := slices.Index(c.argv, "0x10")
	v, _ := strconv.Atoi(c.argv[i+1])
	return v
}

type fakeRunner struct {
	calls  []*fakeCall
	kindOf func() ddc.Kind
	now    func() time.Time
}

func (f *fakeRunner) Start(_ context.Context, argv []string, done func(string, error)) func() {
	c := &fakeCall{argv: argv, done: done}
	if f.kindOf != nil {
		c.kind = f.kindOf()
	}
	if f.now != nil {
		c.startedAt = f.now()
	}
	f.calls = append(f.calls, c)
	return func() { c.cancelled = true }
}

func (f *fakeRunner) active() *fakeCall {
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].pending() {
			return f.calls[i]
		}
	}
	return nil
}

func (f *fakeRunner) sets() []*fakeCall {
	var out []*fakeCall
	for _, c := range f.calls {
		if c.isSet() {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRunner) setRaws() []int {
	var out []int
	for _, c := range f.sets() {
		out = append(out, c.raw())
	}
	return out
}

func (f *fakeRunner) kinds() []ddc.Kind {
	var out []ddc.Kind
	for _, c := range f.calls {
		out = append(out, c.kind)
	}
	return out
}

type harness struct {
	t      *testing.T
	r      *manualReactor
	run    *fakeRunner
	svc    *Service
	events <-chan Event
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, tune Tuning) *harness {
	t.Helper()

	r := newManualReactor()
	run := &fakeRunner{now: r.Now}
	svc := New(Options{
		Reactor: r,
		Runner:  run,
		Tool:    ddc.Tool{Path: "ddcutil", SleepMultiplier: 1},
		Tuning:  tune,
		Logger:  quietLogger(),
	})
	run.kindOf = func() ddc.Kind { return svc.sched.Current().Kind }
	events, cancel := svc.Subscribe(64)
	t.Cleanup(cancel)

	return &harness{t: t, r: r, run: run, svc: svc, events: events}
}

// complete finishes the executing call with out and lets the settle delay
// pass so its callback runs.
func (h *harness) complete(out string) *fakeCall {
	h.t.Helper()
	h.r.drain()
	c := h.run.active()
	require.NotNil(h.t, c, "no call in flight")
	c.finished = true
	c.done(out, nil)
	h.r.Advance(h.svc.tune.Settle)
	return c
}

// discover runs detection without arming the periodic timers.
func (h *harness) discover(out string) {
	h.t.Helper()
	h.svc.Rediscover()
	h.r.drain()
	c := h.complete(out)
	require.Contains(h.t, c.argv, "detect")
}

// start is discover with the redetect, poll and watchdog timers armed.
func (h *harness) start(out string) {
	h.t.Helper()
	h.svc.Start()
	h.r.drain()
	c := h.complete(out)
	require.Contains(h.t, c.argv, "detect")
}

func (h *harness) drainEvents() []Event {
	var out []Event
	for {
		select {
		case ev := <-h.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (h *harness) bus(id int) *Bus {
	b, ok := h.svc.buses.get(id)
	require.True(h.t, ok)
	return b
}

func changed(bus, pct int) Event {
	return Event{Type: EventChanged, Bus: bus, Percent: pct}
}

const (
	detect67 = "Display 1\n   I2C bus:  /dev/i2c-6\nDisplay 2\n   I2C bus:  /dev/i2c-7\n"
	detect6  = "Display 1\n   I2C bus:  /dev/i2c-6\n"
)

func vcp(cur, maxRaw int) string {
	return "VCP 10 C " + strconv.Itoa(cur) + " " + strconv.Itoa(maxRaw) + "\n"
}
