package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hoppxi/ddclight/internal/manager"
)

// request sends one IPC line to the daemon and returns the payload of an OK
// reply.
func request(line string) (string, error) {
	reply, err := manager.SendIPCCommand(line)
	if err != nil {
		return "", fmt.Errorf("%w (is the daemon running?)", err)
	}
	return parseReply(reply)
}

func parseReply(reply string) (string, error) {
	reply = strings.TrimSpace(reply)
	switch {
	case strings.HasPrefix(reply, "OK"):
		return strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(reply, "OK"), ":")), nil
	case strings.HasPrefix(reply, "ERR"):
		return "", errors.New(strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(reply, "ERR"), ":")))
	}
	return "", fmt.Errorf("unexpected reply %q", reply)
}

func fail(err error) {
	fmt.Println("Error:", err)
	os.Exit(1)
}
