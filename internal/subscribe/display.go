package subscribe

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// kernelGroup is the netlink multicast group carrying kernel uevents.
const kernelGroup = 1

// DisplayEvent is a drm uevent, typically a connector being plugged or
// unplugged.
type DisplayEvent struct {
	Action  string
	DevPath string
	Hotplug bool
}

// DisplayEvents streams drm change uevents until stop is closed. Bursts are
// coalesced: a reader that falls behind sees only the latest pending event.
func DisplayEvents(stop <-chan struct{}) (<-chan DisplayEvent, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("failed to open netlink socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: kernelGroup}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind netlink socket: %w", err)
	}
	// wake up periodically so stop is noticed
	tv := unix.NsecToTimeval(int64(1e9))
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set netlink timeout: %w", err)
	}

	events := make(chan DisplayEvent, 1)
	go func() {
		defer unix.Close(fd)
		defer close(events)

		buf := make([]byte, 8192)
		for {
			select {
			case <-stop:
				return
			default:
			}

			n, _, err := unix.Recvfrom(fd, buf, 0)
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
					continue
				}
				slog.Warn("netlink recv error", "err", err)
				return
			}

			ev, ok := parseDisplayEvent(buf[:n])
			if !ok {
				continue
			}
			select {
			case events <- ev:
			default:
				// replace the stale pending event
				select {
				case <-events:
				default:
				}
				events <- ev
			}
		}
	}()

	return events, nil
}

// parseDisplayEvent decodes a NUL-separated uevent and keeps it only if it
// belongs to the drm subsystem.
func parseDisplayEvent(msg []byte) (DisplayEvent, bool) {
	env := make(map[string]string)
	for _, field := range bytes.Split(msg, []byte{0}) {
		k, v, ok := bytes.Cut(field, []byte("="))
		if !ok {
			continue
		}
		env[string(k)] = string(v)
	}

	if env["SUBSYSTEM"] != "drm" {
		return DisplayEvent{}, false
	}
	switch env["ACTION"] {
	case "change", "add", "remove":
	default:
		return DisplayEvent{}, false
	}
	return DisplayEvent{
		Action:  env["ACTION"],
		DevPath: env["DEVPATH"],
		Hotplug: env["HOTPLUG"] == "1",
	}, true
}
