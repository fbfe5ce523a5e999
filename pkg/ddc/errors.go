package ddc

import (
	"errors"
	"os/exec"
	"strings"
)

var (
	ErrToolMissing    = errors.New("ddcutil not found")
	ErrUnparsable     = errors.New("unrecognized ddcutil output")
	ErrLockContention = errors.New("ddcutil bus lock contention")
	ErrTimedOut       = errors.New("ddcutil timed out")
)

var (
	lockMarkers    = []string{"flock()", "Flock diagnostics", "Max wait time"}
	timeoutMarkers = []string{"Timed out", "timeout"}
)

// Classify inspects the combined output and exit error of one invocation and
// returns ErrLockContention or ErrTimedOut when a known failure marker is
// present. A nil return does not imply the output parses.
func Classify(out string, runErr error) error {
	for _, m := range lockMarkers {
		if strings.Contains(out, m) {
			return ErrLockContention
		}
	}
	for _, m := range timeoutMarkers {
		if strings.Contains(out, m) {
			return ErrTimedOut
		}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		// 124: timeout expired, 137: SIGKILL after -k grace
		switch exitErr.ExitCode() {
		case 124, 137:
			return ErrTimedOut
		}
	}
	return nil
}

// IsTransient reports whether err is a failure worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrLockContention) || errors.Is(err, ErrTimedOut)
}
