package watchers

import (
	"log/slog"
	"time"

	"github.com/hoppxi/ddclight/internal/subscribe"
)

// Rediscoverer re-runs display detection.
type Rediscoverer interface {
	Rediscover()
}

// hotplugSettle gives a freshly connected monitor time to answer DDC/CI.
const hotplugSettle = 1500 * time.Millisecond

// StartDisplayWatcher returns a watcher that re-runs detection after drm
// hotplug events. Events arriving within hotplugSettle of each other lead to
// a single rediscover.
func StartDisplayWatcher(svc Rediscoverer) func(stop <-chan struct{}) {
	return func(stop <-chan struct{}) {
		events, err := subscribe.DisplayEvents(stop)
		if err != nil {
			slog.Warn("display hotplug unavailable", "err", err)
			<-stop
			return
		}
		watchHotplug(stop, events, svc, hotplugSettle)
	}
}

func watchHotplug(stop <-chan struct{}, events <-chan subscribe.DisplayEvent, svc Rediscoverer, settle time.Duration) {
	var fire <-chan time.Time
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			slog.Debug("drm uevent", "action", ev.Action, "devpath", ev.DevPath, "hotplug", ev.Hotplug)
			fire = time.After(settle)
		case <-fire:
			fire = nil
			slog.Info("display hotplug, re-running detect")
			svc.Rediscover()
		}
	}
}
