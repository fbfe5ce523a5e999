package ddc

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Runner starts one external invocation without blocking. done is called
// exactly once, from any goroutine, with the combined stdout/stderr. The
// returned cancel abandons the invocation; killing it is best effort.
type Runner interface {
	Start(ctx context.Context, argv []string, done func(out string, err error)) (cancel func())
}

// ExecRunner runs invocations as child processes in their own process group.
type ExecRunner struct {
	// WaitDelay bounds how long Wait blocks on inherited pipes after a kill.
	WaitDelay time.Duration
}

func (r ExecRunner) Start(ctx context.Context, argv []string, done func(out string, err error)) func() {
	if len(argv) == 0 {
		go done("", errors.New("empty command"))
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = time.Second
	}

	go func() {
		out, err := cmd.CombinedOutput()
		cancel()
		done(string(out), err)
	}()

	return cancel
}
