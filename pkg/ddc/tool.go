package ddc

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Kind names one class of ddcutil invocation.
type Kind string

const (
	KindDetect   Kind = "detect"
	KindGet      Kind = "get"
	KindGetForce Kind = "get_force"
	KindSet      Kind = "set"
)

// brightnessFeature is the MCCS luminance control.
const brightnessFeature = "0x10"

// Soft ceilings, enforced by the scheduler even when `timeout` is unavailable.
var ceilings = map[Kind]time.Duration{
	KindDetect:   4000 * time.Millisecond,
	KindGet:      2000 * time.Millisecond,
	KindGetForce: 2000 * time.Millisecond,
	KindSet:      3200 * time.Millisecond,
}

// Ceiling returns the soft maximum duration for one command of kind k.
func Ceiling(k Kind) time.Duration {
	if d, ok := ceilings[k]; ok {
		return d
	}
	return 2 * time.Second
}

// Tool builds argument vectors for ddcutil.
type Tool struct {
	Path            string
	TimeoutPath     string // empty when coreutils timeout was not found
	SleepMultiplier float64
	ExtraArgs       []string
}

// Probe resolves ddcutil and the optional timeout wrapper on PATH.
func Probe(path string) (Tool, error) {
	if path == "" {
		path = "ddcutil"
	}

	t := Tool{SleepMultiplier: 1.0}

	resolved, err := exec.LookPath(path)
	if err != nil {
		return t, fmt.Errorf("%w: %s", ErrToolMissing, path)
	}
	t.Path = resolved

	if wrapper, err := exec.LookPath("timeout"); err == nil {
		t.TimeoutPath = wrapper
	}
	return t, nil
}

// HasTimeout reports whether invocations carry a process-level timeout.
func (t Tool) HasTimeout() bool {
	return t.TimeoutPath != ""
}

func (t Tool) Detect() []string {
	return t.wrap(KindDetect, t.base("--noverify", "--brief", "detect"))
}

func (t Tool) GetVCP(bus int) []string {
	return t.wrap(KindGet, t.base(t.locked("getvcp", brightnessFeature, "--bus", strconv.Itoa(bus), "--terse", "--noverify")...))
}

func (t Tool) SetVCP(bus, raw int) []string {
	return t.wrap(KindSet, t.base(t.locked("setvcp", brightnessFeature, strconv.Itoa(raw), "--bus", strconv.Itoa(bus), "--noverify")...))
}

func (t Tool) locked(args ...string) []string {
	m := t.SleepMultiplier
	if m <= 0 {
		m = 1.0
	}
	out := []string{
		"--enable-cross-instance-locks",
		"--sleep-multiplier=" + strconv.FormatFloat(m, 'f', 1, 64),
	}
	out = append(out, t.ExtraArgs...)
	return append(out, args...)
}

func (t Tool) base(args ...string) []string {
	path := t.Path
	if path == "" {
		path = "ddcutil"
	}
	return append([]string{"env", "LC_ALL=C", path}, args...)
}

func (t Tool) wrap(k Kind, argv []string) []string {
	if !t.HasTimeout() {
		return argv
	}
	return append([]string{t.TimeoutPath, "-k", "1s", timeoutArg(Ceiling(k))}, argv...)
}

// timeoutArg renders d with decisecond precision, e.g. 3.2s.
func timeoutArg(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%d.%ds", ms/1000, (ms%1000)/100)
}
