package ddc

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	ansiRe    = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	detectRe  = regexp.MustCompile(`(?i)I2C\s+bus:\s*/dev/i2c-(\d+)`)
	terseRe   = regexp.MustCompile(`(?m)^\s*(?:VCP\s+)?(?:16|10|0x10)\s+(?:[A-Za-z]\s+)?(\d+)\s+(\d+)\s*$`)
	verboseRe = regexp.MustCompile(`(?is)current\s*value\s*=\s*(\d+).*max\s*value\s*=\s*(\d+)`)
)

func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// ParseDetect extracts bus numbers from `ddcutil detect` output in order of
// first appearance.
func ParseDetect(out string) []int {
	var buses []int
	for _, line := range strings.Split(StripANSI(out), "\n") {
		m := detectRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		b, err := strconv.Atoi(m[1])
		if err != nil || slices.Contains(buses, b) {
			continue
		}
		buses = append(buses, b)
	}
	return buses
}

// ParseGetVCP returns the current and maximum raw values from `ddcutil getvcp`
// output in either terse or verbose layout.
func ParseGetVCP(out string) (current, maxRaw int, err error) {
	out = strings.TrimSpace(StripANSI(out))

	m := terseRe.FindStringSubmatch(out)
	if m == nil {
		m = verboseRe.FindStringSubmatch(out)
	}
	if m == nil {
		return 0, 0, ErrUnparsable
	}

	current, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: current value: %v", ErrUnparsable, err)
	}
	maxRaw, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: max value: %v", ErrUnparsable, err)
	}
	if maxRaw <= 0 {
		return 0, 0, fmt.Errorf("%w: max value is zero", ErrUnparsable)
	}
	return current, maxRaw, nil
}
