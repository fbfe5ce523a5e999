package brightness

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hoppxi/ddclight/pkg/ddc"
)

// noBus marks commands that are not addressed to one bus.
const noBus = -1

// Command is one queued ddcutil invocation.
type Command struct {
	ID         uuid.UUID
	Kind       ddc.Kind
	Bus        int
	Argv       []string
	EnqueuedAt time.Time
	Done       func(out string, err error)
}

type schedulerHooks struct {
	// writeInFlight reports whether any bus has a set outstanding.
	writeInFlight func() bool
	// onStuck runs after a command was abandoned by its ceiling or the watchdog.
	onStuck func(cmd *Command, waited time.Duration)
	// onIdle runs once the queue has drained.
	onIdle func()
}

// Scheduler executes at most one Command at a time, in FIFO order, applying
// its drop rules when a command is enqueued.
type Scheduler struct {
	r      Reactor
	runner ddc.Runner
	ctx    context.Context
	log    *slog.Logger
	settle time.Duration
	margin time.Duration
	hooks  schedulerHooks

	queue     []*Command
	busy      bool
	current   *Command
	startedAt time.Time
	ceiling   Timer
	cancel    func()
	gen       uint64
}

func newScheduler(ctx context.Context, r Reactor, runner ddc.Runner, tune Tuning, log *slog.Logger, hooks schedulerHooks) *Scheduler {
	return &Scheduler{
		r:      r,
		runner: runner,
		ctx:    ctx,
		log:    log.With("component", "scheduler"),
		settle: tune.Settle,
		margin: tune.CeilingMargin,
		hooks:  hooks,
	}
}

func (s *Scheduler) Busy() bool { return s.busy }

// Queued returns the waiting commands, front first.
func (s *Scheduler) Queued() []*Command {
	return append([]*Command(nil), s.queue...)
}

// Current returns the executing command, if any.
func (s *Scheduler) Current() *Command { return s.current }

func (s *Scheduler) Enqueue(cmd *Command) {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	cmd.EnqueuedAt = s.r.Now()

	writing := s.hooks.writeInFlight != nil && s.hooks.writeInFlight()
	kept := make([]*Command, 0, len(s.queue)+1)
	dropped := 0
	for _, q := range s.queue {
		if supersedes(cmd, q, writing) {
			dropped++
			continue
		}
		kept = append(kept, q)
	}
	if dropped > 0 {
		s.log.Debug("dropped stale commands", "dropped", dropped, "kind", cmd.Kind, "bus", cmd.Bus)
	}

	s.queue = append(kept, cmd)
	if !s.busy {
		s.dequeue()
	}
}

// supersedes reports whether queued must be dropped when next is enqueued.
func supersedes(next, queued *Command, writing bool) bool {
	switch {
	case next.Kind == ddc.KindGetForce || queued.Kind == ddc.KindGetForce:
		return false
	case queued.Kind == next.Kind && queued.Bus == next.Bus:
		return true
	case next.Kind == ddc.KindSet && queued.Kind == ddc.KindGet && queued.Bus == next.Bus:
		return true
	case writing && queued.Kind == ddc.KindGet:
		return true
	}
	return false
}

func (s *Scheduler) dequeue() {
	s.stopCeiling()

	if len(s.queue) == 0 {
		s.busy = false
		s.current = nil
		s.startedAt = time.Time{}
		if s.hooks.onIdle != nil {
			s.r.Post(s.hooks.onIdle)
		}
		return
	}

	cmd := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]

	s.gen++
	gen := s.gen
	s.busy = true
	s.current = cmd
	s.startedAt = s.r.Now()

	ceiling := ddc.Ceiling(cmd.Kind) + s.margin
	s.ceiling = s.r.After(ceiling, func() { s.expire(gen) })

	s.log.Debug("exec", "id", cmd.ID.String()[:8], "kind", cmd.Kind, "bus", cmd.Bus,
		"queued_for", s.startedAt.Sub(cmd.EnqueuedAt), "ceiling", ceiling)

	s.cancel = s.runner.Start(s.ctx, cmd.Argv, func(out string, err error) {
		s.r.Post(func() { s.complete(gen, out, err) })
	})
}

func (s *Scheduler) complete(gen uint64, out string, err error) {
	if gen != s.gen || s.current == nil {
		s.log.Debug("ignoring completion of abandoned command")
		return
	}
	cmd := s.current
	s.stopCeiling()
	s.cancel = nil

	s.r.After(s.settle, func() {
		if gen != s.gen {
			return
		}
		s.finish(cmd, out, err)
	})
}

func (s *Scheduler) finish(cmd *Command, out string, err error) {
	defer func() {
		s.busy = false
		s.current = nil
		s.dequeue()
	}()
	if cmd.Done != nil {
		cmd.Done(out, err)
	}
}

func (s *Scheduler) expire(gen uint64) {
	if gen != s.gen || !s.busy {
		return
	}
	s.unstick("ceiling hit")
}

// ForceUnstick abandons the executing command and advances the queue.
func (s *Scheduler) ForceUnstick(reason string) {
	if !s.busy {
		return
	}
	s.unstick(reason)
}

func (s *Scheduler) unstick(reason string) {
	cmd := s.current
	waited := s.r.Now().Sub(s.startedAt)

	if cmd != nil {
		s.log.Error(reason+"; advancing queue", "id", cmd.ID.String()[:8], "kind", cmd.Kind, "bus", cmd.Bus, "waited", waited)
	}

	s.stopCeiling()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.current = nil
	s.startedAt = time.Time{}

	// busy stays set so commands enqueued by the hook wait for dequeue below.
	if cmd != nil && s.hooks.onStuck != nil {
		s.hooks.onStuck(cmd, waited)
	}
	s.busy = false
	s.dequeue()
}

// busyAge reports how long the current command has been running and whether
// it is running without an armed ceiling timer.
func (s *Scheduler) busyAge(now time.Time) (age time.Duration, unguarded bool) {
	if !s.busy || s.startedAt.IsZero() {
		return 0, false
	}
	return now.Sub(s.startedAt), s.ceiling == nil
}

func (s *Scheduler) stopCeiling() {
	if s.ceiling != nil {
		s.ceiling.Stop()
		s.ceiling = nil
	}
}
