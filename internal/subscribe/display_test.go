package subscribe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func uevent(fields ...string) []byte {
	return []byte(strings.Join(fields, "\x00") + "\x00")
}

func TestParseDisplayEvent(t *testing.T) {
	ev, ok := parseDisplayEvent(uevent(
		"change@/devices/pci0000:00/0000:00:02.0/drm/card0",
		"ACTION=change",
		"DEVPATH=/devices/pci0000:00/0000:00:02.0/drm/card0",
		"SUBSYSTEM=drm",
		"HOTPLUG=1",
		"SEQNUM=4711",
	))
	assert.True(t, ok)
	assert.Equal(t, DisplayEvent{
		Action:  "change",
		DevPath: "/devices/pci0000:00/0000:00:02.0/drm/card0",
		Hotplug: true,
	}, ev)
}

func TestParseDisplayEventIgnoresOthers(t *testing.T) {
	_, ok := parseDisplayEvent(uevent("change@/class/backlight", "ACTION=change", "SUBSYSTEM=backlight"))
	assert.False(t, ok)

	_, ok = parseDisplayEvent(uevent("bind@/drm/card0", "ACTION=bind", "SUBSYSTEM=drm"))
	assert.False(t, ok)

	_, ok = parseDisplayEvent(nil)
	assert.False(t, ok)
}
