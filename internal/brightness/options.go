package brightness

import (
	"log/slog"
	"time"

	"github.com/hoppxi/ddclight/pkg/ddc"
)

// Tuning holds the timing constants of the controller.
type Tuning struct {
	Settle        time.Duration // pause between a completion and its callback
	CeilingMargin time.Duration // added to ddc.Ceiling for the scheduler timer

	ConfirmWindow    time.Duration // reads contradicting a fresh target are held back this long
	PostWriteConfirm time.Duration // confirm window reopened after a completed write
	ConfirmExtension time.Duration // added to the window across an unstick backoff
	ConfirmReadDelay time.Duration // plain read after a completed write
	ForcedReadDelay  time.Duration // forced read once the retry budget is spent

	MaxWritesWithoutRead int

	PollInterval     time.Duration // <= 0 disables polling
	RedetectInterval time.Duration

	WatchdogTick time.Duration
	StuckAfter   time.Duration
	BusyBound    time.Duration
	ReadRetry    time.Duration
}

func DefaultTuning() Tuning {
	return Tuning{
		Settle:        40 * time.Millisecond,
		CeilingMargin: 800 * time.Millisecond,

		ConfirmWindow:    1200 * time.Millisecond,
		PostWriteConfirm: 1000 * time.Millisecond,
		ConfirmExtension: 1500 * time.Millisecond,
		ConfirmReadDelay: 360 * time.Millisecond,
		ForcedReadDelay:  120 * time.Millisecond,

		MaxWritesWithoutRead: 2,

		PollInterval:     10 * time.Second,
		RedetectInterval: 8 * time.Second,

		WatchdogTick: 500 * time.Millisecond,
		StuckAfter:   2500 * time.Millisecond,
		BusyBound:    5 * time.Second,
		ReadRetry:    2 * time.Second,
	}
}

// backoffPolicy sizes the pause imposed on a bus after a stuck write.
type backoffPolicy struct {
	floor, ceil, pad time.Duration
	// confirmAt returns when, within the backoff, the confirming read runs.
	confirmAt func(backoff time.Duration) time.Duration
}

var (
	ceilingBackoff = backoffPolicy{
		floor: 900 * time.Millisecond,
		ceil:  2200 * time.Millisecond,
		pad:   500 * time.Millisecond,
		confirmAt: func(b time.Duration) time.Duration {
			return max(500*time.Millisecond, b/2)
		},
	}
	watchdogBackoff = backoffPolicy{
		floor:     1400 * time.Millisecond,
		ceil:      3000 * time.Millisecond,
		pad:       400 * time.Millisecond,
		confirmAt: func(b time.Duration) time.Duration { return b },
	}
)

func (p backoffPolicy) window(waited time.Duration) time.Duration {
	return max(p.floor, min(p.ceil, waited+p.pad))
}

// Options configures a Service.
type Options struct {
	Reactor Reactor
	Runner  ddc.Runner
	Tool    ddc.Tool
	Tuning  Tuning
	Logger  *slog.Logger
}
