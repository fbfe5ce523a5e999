package watchers

import (
	"encoding/json"
	"log/slog"
	"os/exec"
	"slices"

	"github.com/hoppxi/ddclight/internal/brightness"
)

// Source is what the eww publisher needs from brightness.Service.
type Source interface {
	Subscribe(buffer int) (<-chan brightness.Event, func())
	Snapshot() map[int]int
}

// Display is one entry of the published eww variable.
type Display struct {
	Bus     int `json:"bus"`
	Percent int `json:"percent"`
}

type ewwPublisher struct {
	binary   string
	variable string
	run      func(name string, args ...string) error
}

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// StartEwwWatcher returns a watcher that mirrors every brightness change
// into the eww variable as a JSON list of displays.
func StartEwwWatcher(svc Source, binary, variable string) func(stop <-chan struct{}) {
	p := &ewwPublisher{binary: binary, variable: variable, run: runCommand}
	return func(stop <-chan struct{}) {
		p.watch(stop, svc)
	}
}

func (p *ewwPublisher) watch(stop <-chan struct{}, svc Source) {
	events, cancel := svc.Subscribe(16)
	defer cancel()

	p.update(svc.Snapshot())
	for {
		select {
		case <-stop:
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			p.update(svc.Snapshot())
		}
	}
}

func (p *ewwPublisher) update(snap map[int]int) {
	ids := make([]int, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	displays := make([]Display, 0, len(ids))
	for _, id := range ids {
		displays = append(displays, Display{Bus: id, Percent: snap[id]})
	}

	jsonData, _ := json.Marshal(displays)
	if err := p.run(p.binary, "update", p.variable+"="+string(jsonData)); err != nil {
		slog.Debug("eww update failed", "var", p.variable, "err", err)
	}
}
