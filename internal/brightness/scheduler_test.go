package brightness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppxi/ddclight/pkg/ddc"
)

type schedFixture struct {
	r       *manualReactor
	run     *fakeRunner
	s       *Scheduler
	writing bool
	stuck   []*Command
	waited  []time.Duration
	idle    int
	done    []string
}

func newSchedFixture(t *testing.T) *schedFixture {
	t.Helper()
	f := &schedFixture{r: newManualReactor()}
	f.run = &fakeRunner{now: f.r.Now}
	f.s = newScheduler(context.Background(), f.r, f.run, DefaultTuning(), quietLogger(), schedulerHooks{
		writeInFlight: func() bool { return f.writing },
		onStuck: func(cmd *Command, waited time.Duration) {
			f.stuck = append(f.stuck, cmd)
			f.waited = append(f.waited, waited)
		},
		onIdle: func() { f.idle++ },
	})
	f.run.kindOf = func() ddc.Kind { return f.s.Current().Kind }
	return f
}

func (f *schedFixture) cmd(kind ddc.Kind, bus int, name string) *Command {
	return &Command{
		Kind: kind,
		Bus:  bus,
		Argv: []string{name},
		Done: func(string, error) { f.done = append(f.done, name) },
	}
}

func (f *schedFixture) finish(t *testing.T) {
	t.Helper()
	c := f.run.active()
	require.NotNil(t, c)
	c.finished = true
	c.done("", nil)
	f.r.Advance(DefaultTuning().Settle)
}

func queuedNames(s *Scheduler) []string {
	var out []string
	for _, c := range s.Queued() {
		out = append(out, c.Argv[0])
	}
	return out
}

func TestSchedulerRunsOneAtATimeInOrder(t *testing.T) {
	f := newSchedFixture(t)
	f.s.Enqueue(f.cmd(ddc.KindDetect, noBus, "detect"))
	f.s.Enqueue(f.cmd(ddc.KindGetForce, 6, "read6"))
	f.s.Enqueue(f.cmd(ddc.KindSet, 7, "set7"))

	assert.True(t, f.s.Busy())
	assert.Len(t, f.run.calls, 1)
	assert.Equal(t, []string{"read6", "set7"}, queuedNames(f.s))

	f.finish(t)
	f.finish(t)
	f.finish(t)

	assert.Equal(t, []string{"detect", "read6", "set7"}, f.done)
	assert.False(t, f.s.Busy())
	assert.Equal(t, 1, f.idle)
}

func TestSchedulerAssignsIDs(t *testing.T) {
	f := newSchedFixture(t)
	a := f.cmd(ddc.KindDetect, noBus, "a")
	b := f.cmd(ddc.KindDetect, noBus, "b")
	f.s.Enqueue(a)
	f.s.Enqueue(b)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, f.r.Now(), a.EnqueuedAt)
}

func TestSchedulerDropRules(t *testing.T) {
	tests := []struct {
		name    string
		writing bool
		queued  []*Command
		next    *Command
		want    []string
	}{
		{
			name:   "same kind and bus replaces",
			queued: []*Command{{Kind: ddc.KindSet, Bus: 6, Argv: []string{"set6a"}}, {Kind: ddc.KindSet, Bus: 7, Argv: []string{"set7"}}},
			next:   &Command{Kind: ddc.KindSet, Bus: 6, Argv: []string{"set6b"}},
			want:   []string{"set7", "set6b"},
		},
		{
			name:   "set drops plain get of its bus",
			queued: []*Command{{Kind: ddc.KindGet, Bus: 6, Argv: []string{"get6"}}, {Kind: ddc.KindGet, Bus: 7, Argv: []string{"get7"}}},
			next:   &Command{Kind: ddc.KindSet, Bus: 6, Argv: []string{"set6"}},
			want:   []string{"get7", "set6"},
		},
		{
			name:    "write in flight drops every plain get",
			writing: true,
			queued:  []*Command{{Kind: ddc.KindGet, Bus: 6, Argv: []string{"get6"}}, {Kind: ddc.KindGet, Bus: 7, Argv: []string{"get7"}}},
			next:    &Command{Kind: ddc.KindDetect, Bus: noBus, Argv: []string{"detect"}},
			want:    []string{"detect"},
		},
		{
			name:    "forced reads are never dropped",
			writing: true,
			queued:  []*Command{{Kind: ddc.KindGetForce, Bus: 6, Argv: []string{"force6"}}},
			next:    &Command{Kind: ddc.KindSet, Bus: 6, Argv: []string{"set6"}},
			want:    []string{"force6", "set6"},
		},
		{
			name:   "a new forced read drops nothing",
			queued: []*Command{{Kind: ddc.KindGet, Bus: 6, Argv: []string{"get6"}}, {Kind: ddc.KindGetForce, Bus: 6, Argv: []string{"force6a"}}},
			next:   &Command{Kind: ddc.KindGetForce, Bus: 6, Argv: []string{"force6b"}},
			want:   []string{"get6", "force6a", "force6b"},
		},
		{
			name:   "unrelated commands are kept",
			queued: []*Command{{Kind: ddc.KindGet, Bus: 6, Argv: []string{"get6"}}},
			next:   &Command{Kind: ddc.KindSet, Bus: 7, Argv: []string{"set7"}},
			want:   []string{"get6", "set7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSchedFixture(t)
			f.s.Enqueue(f.cmd(ddc.KindDetect, noBus, "running"))
			for _, q := range tt.queued {
				f.s.Enqueue(q)
			}
			f.writing = tt.writing
			f.s.Enqueue(tt.next)

			assert.Equal(t, tt.want, queuedNames(f.s))
		})
	}
}

func TestSchedulerSettleDelay(t *testing.T) {
	f := newSchedFixture(t)
	f.s.Enqueue(f.cmd(ddc.KindGet, 6, "get6"))

	c := f.run.active()
	c.finished = true
	c.done("", nil)
	f.r.Advance(DefaultTuning().Settle - time.Millisecond)
	assert.Empty(t, f.done)
	assert.True(t, f.s.Busy())

	f.r.Advance(time.Millisecond)
	assert.Equal(t, []string{"get6"}, f.done)
	assert.False(t, f.s.Busy())
}

func TestSchedulerCeilingAbandonsCommand(t *testing.T) {
	f := newSchedFixture(t)
	f.s.Enqueue(f.cmd(ddc.KindGet, 6, "get6"))
	f.s.Enqueue(f.cmd(ddc.KindSet, 7, "set7"))
	hung := f.run.active()

	ceiling := ddc.Ceiling(ddc.KindGet) + DefaultTuning().CeilingMargin
	f.r.Advance(ceiling - time.Millisecond)
	assert.Empty(t, f.stuck)

	f.r.Advance(time.Millisecond)
	require.Len(t, f.stuck, 1)
	assert.Equal(t, "get6", f.stuck[0].Argv[0])
	assert.Equal(t, ceiling, f.waited[0])
	assert.True(t, hung.cancelled)

	next := f.run.active()
	require.NotNil(t, next)
	assert.Equal(t, []string{"set7"}, next.argv)
	assert.Empty(t, f.done, "abandoned command gets no callback")
}

func TestSchedulerIgnoresLateCompletion(t *testing.T) {
	f := newSchedFixture(t)
	f.s.Enqueue(f.cmd(ddc.KindGet, 6, "get6"))
	f.s.Enqueue(f.cmd(ddc.KindSet, 7, "set7"))
	hung := f.run.active()

	f.s.ForceUnstick("test")
	require.Len(t, f.stuck, 1)

	hung.done("VCP 10 C 1 100", nil)
	f.r.Advance(time.Second)

	assert.Empty(t, f.done)
	assert.True(t, f.s.Busy())
	assert.Equal(t, "set7", f.s.Current().Argv[0])
}

func TestSchedulerHookEnqueueDuringUnstick(t *testing.T) {
	f := newSchedFixture(t)
	f.s.hooks.onStuck = func(cmd *Command, _ time.Duration) {
		f.s.Enqueue(f.cmd(ddc.KindGetForce, cmd.Bus, "recheck"))
	}
	f.s.Enqueue(f.cmd(ddc.KindSet, 6, "set6"))

	f.s.ForceUnstick("test")

	require.Len(t, f.run.calls, 2)
	assert.Equal(t, []string{"recheck"}, f.run.calls[1].argv)
	assert.Empty(t, f.s.Queued())
}

func TestSchedulerForceUnstickIdleIsNoop(t *testing.T) {
	f := newSchedFixture(t)
	f.s.ForceUnstick("test")
	assert.Empty(t, f.stuck)
	assert.False(t, f.s.Busy())
}
