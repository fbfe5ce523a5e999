package manager

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	verbStatus   = "STATUS"
	verbStop     = "STOP"
	verbSnapshot = "SNAPSHOT"
	verbBuses    = "BUSES"
	verbDetect   = "DETECT"
	verbSet      = "SET"
	verbPush     = "PUSH"
	verbFlush    = "FLUSH"
)

type request struct {
	verb    string
	all     bool
	bus     int
	percent int
}

// parseRequest reads one IPC line: a verb, and for SET and PUSH a target
// ("all" or a bus number) and a percent.
func parseRequest(line string) (request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return request{}, errors.New("empty request")
	}

	req := request{verb: strings.ToUpper(fields[0])}
	switch req.verb {
	case verbStatus, verbStop, verbSnapshot, verbBuses, verbDetect, verbFlush:
		if len(fields) != 1 {
			return request{}, fmt.Errorf("%s takes no arguments", req.verb)
		}

	case verbSet, verbPush:
		if len(fields) != 3 {
			return request{}, fmt.Errorf("usage: %s <bus|all> <percent>", req.verb)
		}
		if strings.EqualFold(fields[1], "all") {
			req.all = true
		} else {
			bus, err := strconv.Atoi(fields[1])
			if err != nil || bus < 0 {
				return request{}, fmt.Errorf("invalid bus %q", fields[1])
			}
			req.bus = bus
		}
		pct, err := strconv.Atoi(fields[2])
		if err != nil {
			return request{}, fmt.Errorf("invalid percent %q", fields[2])
		}
		req.percent = pct

	default:
		return request{}, fmt.Errorf("unknown command %q", fields[0])
	}
	return req, nil
}
