package brightness

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Reactor runs callbacks one at a time. All bus and queue state is touched
// only from callbacks it runs, so none of it needs locking.
type Reactor interface {
	Now() time.Time
	// Post schedules fn to run as soon as the current callback returns.
	Post(fn func())
	// After schedules fn to run once d has elapsed.
	After(d time.Duration, fn func()) Timer
}

// Timer is a pending After callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// callback was still pending.
	Stop() bool
}

// EventLoop is the production Reactor: a single goroutine draining an
// unbounded task queue, fed by Post and by runtime timers.
type EventLoop struct {
	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}
	log   *slog.Logger
}

func NewEventLoop(log *slog.Logger) *EventLoop {
	if log == nil {
		log = slog.Default()
	}
	return &EventLoop{
		wake: make(chan struct{}, 1),
		log:  log,
	}
}

func (l *EventLoop) Now() time.Time { return time.Now() }

func (l *EventLoop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *EventLoop) After(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.Load() {
				return
			}
			t.fired.Store(true)
			fn()
		})
	})
	return t
}

// Run executes posted callbacks until ctx is done.
func (l *EventLoop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.tasks) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.tasks[0]
			l.tasks[0] = nil
			l.tasks = l.tasks[1:]
			l.mu.Unlock()

			l.run(fn)
		}
	}
}

func (l *EventLoop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("event loop callback panic", "panic", r)
		}
	}()
	fn()
}

type loopTimer struct {
	t       *time.Timer
	stopped atomic.Bool
	fired   atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.t.Stop()
	if t.fired.Load() {
		return false
	}
	return !t.stopped.Swap(true)
}
