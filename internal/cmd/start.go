package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hoppxi/ddclight/config"
	"github.com/hoppxi/ddclight/internal/brightness"
	"github.com/hoppxi/ddclight/internal/dbusapi"
	"github.com/hoppxi/ddclight/internal/logging"
	"github.com/hoppxi/ddclight/internal/manager"
	"github.com/hoppxi/ddclight/internal/watchers"
	"github.com/hoppxi/ddclight/pkg/ddc"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the brightness daemon in the foreground",
	Run: func(cmd *cobra.Command, args []string) {
		if conn, err := manager.ConnectIPC(); err == nil {
			conn.Close()
			fmt.Println("Daemon already running.")
			return
		}

		cfg, err := manager.Config.Load()
		if err != nil {
			fail(err)
		}
		if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
			fail(err)
		}

		tool, err := ddc.Probe(cfg.DDC.Path)
		if err != nil {
			slog.Error("ddcutil not available; brightness control disabled", "err", err)
			os.Exit(1)
		}
		if cfg.DDC.SleepMultiplier > 0 {
			tool.SleepMultiplier = cfg.DDC.SleepMultiplier
		}
		tool.ExtraArgs = cfg.DDC.ExtraArgs

		svc := brightness.New(brightness.Options{
			Tool:   tool,
			Tuning: tuning(cfg),
			Logger: slog.Default(),
		})
		svc.Start()

		m := manager.New(svc, cfg.Debounce, slog.Default())
		ipcErr := make(chan error, 1)
		go func() { ipcErr <- m.StartIPCServer() }()

		if cfg.Hotplug.Enabled {
			m.StartWatcher(watchers.StartDisplayWatcher(svc))
		}
		if cfg.Eww.Enabled {
			m.StartWatcher(watchers.StartEwwWatcher(svc, cfg.Eww.Binary, cfg.Eww.Variable))
		}
		if cfg.DBus.Enabled {
			m.StartWatcher(dbusapi.StartDBusWatcher(svc))
		}

		manager.Config.Watch(func(f config.File) {
			if err := logging.SetLevel(f.Log.Level); err != nil {
				slog.Warn("ignoring log level", "err", err)
			}
			m.SetPushDelay(f.Debounce)
		})

		slog.Info("daemon started", "ddcutil", tool.Path, "config", manager.Config.Path())

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case s := <-sigChan:
			slog.Info("received signal, shutting down", "signal", s.String())
		case <-m.Done():
		case err := <-ipcErr:
			if err != nil {
				slog.Error("IPC server failed", "err", err)
			}
		}

		m.StopAll()
		svc.Close()
	},
}

func tuning(cfg config.File) brightness.Tuning {
	tune := brightness.DefaultTuning()
	tune.PollInterval = cfg.PollInterval
	if cfg.RedetectInterval > 0 {
		tune.RedetectInterval = cfg.RedetectInterval
	}
	return tune
}
