// Package dbusapi publishes the brightness service on the session bus.
package dbusapi

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/hoppxi/ddclight/internal/brightness"
)

const (
	BusName   = "io.github.hoppxi.DDCLight"
	Path      = dbus.ObjectPath("/io/github/hoppxi/DDCLight")
	Interface = "io.github.hoppxi.DDCLight"
)

// Controller is the part of brightness.Service exported over D-Bus.
type Controller interface {
	SetPercent(bus, percent int)
	SetPercentMany(buses []int, percent int)
	Snapshot() map[int]int
	Buses() []int
	Rediscover()
	Subscribe(buffer int) (<-chan brightness.Event, func())
}

// object is the exported D-Bus object; every exported method is a D-Bus
// method.
type object struct {
	svc Controller
}

func (o *object) SetPercent(bus, percent int32) *dbus.Error {
	if !slices.Contains(o.svc.Buses(), int(bus)) {
		return dbus.MakeFailedError(fmt.Errorf("unknown bus %d", bus))
	}
	o.svc.SetPercent(int(bus), int(percent))
	return nil
}

// SetPercentMany sets every listed bus, or every known bus when buses is
// empty.
func (o *object) SetPercentMany(buses []int32, percent int32) *dbus.Error {
	ids := make([]int, 0, len(buses))
	for _, b := range buses {
		ids = append(ids, int(b))
	}
	o.svc.SetPercentMany(ids, int(percent))
	return nil
}

func (o *object) Snapshot() (map[int32]int32, *dbus.Error) {
	snap := o.svc.Snapshot()
	out := make(map[int32]int32, len(snap))
	for id, pct := range snap {
		out[int32(id)] = int32(pct)
	}
	return out, nil
}

func (o *object) Buses() ([]int32, *dbus.Error) {
	ids := o.svc.Buses()
	out := make([]int32, 0, len(ids))
	for _, id := range ids {
		out = append(out, int32(id))
	}
	return out, nil
}

func (o *object) Rediscover() *dbus.Error {
	o.svc.Rediscover()
	return nil
}

func introspectNode(o *object) *introspect.Node {
	return &introspect.Node{
		Name: string(Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    Interface,
				Methods: introspect.Methods(o),
				Signals: []introspect.Signal{
					{
						Name: "Changed",
						Args: []introspect.Arg{
							{Name: "bus", Type: "i"},
							{Name: "percent", Type: "i"},
						},
					},
					{Name: "DisplaysChanged"},
				},
			},
		},
	}
}

// signalFor maps a service event to the D-Bus signal announcing it.
func signalFor(ev brightness.Event) (string, []any) {
	switch ev.Type {
	case brightness.EventChanged:
		return Interface + ".Changed", []any{int32(ev.Bus), int32(ev.Percent)}
	case brightness.EventDisplaysChanged:
		return Interface + ".DisplaysChanged", nil
	}
	return "", nil
}

// StartDBusWatcher returns a watcher that owns BusName on the session bus
// until stop is closed, relaying service events as signals.
func StartDBusWatcher(svc Controller) func(stop <-chan struct{}) {
	return func(stop <-chan struct{}) {
		if err := serve(svc, stop); err != nil {
			slog.Warn("dbus interface unavailable", "err", err)
			<-stop
		}
	}
}

func serve(svc Controller, stop <-chan struct{}) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%s is already owned by another process", BusName)
	}
	defer conn.ReleaseName(BusName)

	obj := &object{svc: svc}
	if err := conn.Export(obj, Path, Interface); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := conn.Export(introspect.NewIntrospectable(introspectNode(obj)), Path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	slog.Info("dbus interface started", "name", BusName)

	events, cancel := svc.Subscribe(32)
	defer cancel()

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			name, args := signalFor(ev)
			if name == "" {
				continue
			}
			if err := conn.Emit(Path, name, args...); err != nil {
				slog.Warn("failed to emit signal", "signal", name, "err", err)
			}
		}
	}
}
