package manager

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hoppxi/ddclight/internal/brightness"
	"github.com/hoppxi/ddclight/pkg/debounce"
)

var ErrUnknownBus = errors.New("unknown bus")

// Brightness is the part of brightness.Service the daemon drives.
type Brightness interface {
	Snapshot() map[int]int
	Buses() []int
	SetPercent(bus, percent int)
	SetPercentMany(buses []int, percent int)
	Rediscover()
	Status(ctx context.Context) (brightness.Status, error)
}

type AppManager struct {
	svc Brightness
	log *slog.Logger

	mu       sync.Mutex
	stops    []chan struct{}
	delay    time.Duration
	pushers  map[string]*debounce.Setter
	listener net.Listener

	done     chan struct{}
	stopOnce sync.Once
}

func New(svc Brightness, pushDelay time.Duration, log *slog.Logger) *AppManager {
	if log == nil {
		log = slog.Default()
	}
	return &AppManager{
		svc:     svc,
		log:     log.With("component", "manager"),
		delay:   pushDelay,
		pushers: make(map[string]*debounce.Setter),
		done:    make(chan struct{}),
	}
}

func getSocketPath() string {
	var baseDir string
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		baseDir = runtimeDir
	} else {
		baseDir = os.TempDir()
	}

	socketDir := filepath.Join(baseDir, "ddclight")
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return filepath.Join(os.TempDir(), "ddclight-socket.sock")
	}
	return filepath.Join(socketDir, "socket.sock")
}

// Done is closed once a STOP request has been received.
func (m *AppManager) Done() <-chan struct{} { return m.done }

// StartIPCServer serves requests until StopAll closes the listener.
func (m *AppManager) StartIPCServer() error {
	socketPath := getSocketPath()
	_ = os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("error listening on socket: %w", err)
	}
	m.mu.Lock()
	m.listener = listener
	m.mu.Unlock()
	defer listener.Close()

	m.log.Info("IPC server listening", "socket", socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			m.log.Debug("accept failed", "err", err)
			continue
		}
		go m.handleConnection(conn)
	}
}

func (m *AppManager) handleConnection(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	line, err := bufio.NewReader(io.LimitReader(conn, 1024)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return
	}

	reply := m.handle(strings.TrimSpace(line))
	_, _ = conn.Write([]byte(reply))
}

func (m *AppManager) handle(line string) string {
	req, err := parseRequest(line)
	if err != nil {
		return "ERR: " + err.Error()
	}

	switch req.verb {
	case verbStop:
		m.log.Info("received STOP via IPC, shutting down")
		m.stopOnce.Do(func() { close(m.done) })
		return "OK: shutting down"

	case verbStatus:
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		st, err := m.svc.Status(ctx)
		if err != nil {
			return "ERR: " + err.Error()
		}
		return okJSON(st)

	case verbSnapshot:
		return okJSON(m.svc.Snapshot())

	case verbBuses:
		ids := make([]string, 0)
		for _, id := range m.svc.Buses() {
			ids = append(ids, strconv.Itoa(id))
		}
		return strings.TrimSpace("OK: " + strings.Join(ids, " "))

	case verbDetect:
		m.svc.Rediscover()
		return "OK: detecting"

	case verbSet:
		if err := m.checkBus(req); err != nil {
			return "ERR: " + err.Error()
		}
		m.apply(req.all, req.bus, req.percent)
		return "OK"

	case verbPush:
		if err := m.checkBus(req); err != nil {
			return "ERR: " + err.Error()
		}
		m.pusher(req).Push(req.percent)
		return "OK"

	case verbFlush:
		m.mu.Lock()
		pushers := make([]*debounce.Setter, 0, len(m.pushers))
		for _, p := range m.pushers {
			pushers = append(pushers, p)
		}
		m.mu.Unlock()

		n := 0
		for _, p := range pushers {
			if p.FlushNow() {
				n++
			}
		}
		return fmt.Sprintf("OK: flushed %d", n)
	}
	return "ERR: unknown command"
}

func okJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "ERR: " + err.Error()
	}
	return "OK: " + string(data)
}

func (m *AppManager) checkBus(req request) error {
	if req.all || slices.Contains(m.svc.Buses(), req.bus) {
		return nil
	}
	return fmt.Errorf("%w %d", ErrUnknownBus, req.bus)
}

func (m *AppManager) apply(all bool, bus, percent int) {
	if all {
		m.svc.SetPercentMany(nil, percent)
		return
	}
	m.svc.SetPercent(bus, percent)
}

// pusher returns the debounced setter for the request's target, creating it
// on first use.
func (m *AppManager) pusher(req request) *debounce.Setter {
	key := "all"
	if !req.all {
		key = strconv.Itoa(req.bus)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pushers[key]; ok {
		return p
	}
	all, bus := req.all, req.bus
	p := debounce.New(m.delay, func(v int) { m.apply(all, bus, v) })
	m.pushers[key] = p
	return p
}

// SetPushDelay changes the debounce delay of current and future PUSH targets.
func (m *AppManager) SetPushDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.delay = d
	for _, p := range m.pushers {
		p.SetDelay(d)
	}
}

func (m *AppManager) StartWatcher(f func(stop <-chan struct{})) {
	stop := make(chan struct{})
	m.mu.Lock()
	m.stops = append(m.stops, stop)
	m.mu.Unlock()

	go func() {
		for {
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.log.Error("watcher panic", "panic", r)
					}
				}()
				f(stop)
			}()

			select {
			case <-stop:
				return
			case <-time.After(2 * time.Second):
				m.log.Info("restarting watcher")
			}
		}
	}()
}

// StopAll stops the watchers, drops pending pushes and closes the IPC
// listener.
func (m *AppManager) StopAll() {
	m.mu.Lock()
	stops := m.stops
	pushers := m.pushers
	listener := m.listener
	m.stops = nil
	m.pushers = make(map[string]*debounce.Setter)
	m.listener = nil
	m.mu.Unlock()

	for _, s := range stops {
		close(s)
	}
	for _, p := range pushers {
		p.Stop()
	}
	if listener != nil {
		_ = listener.Close()
		_ = os.Remove(getSocketPath())
	}
}

func ConnectIPC() (net.Conn, error) {
	return net.DialTimeout("unix", getSocketPath(), 500*time.Millisecond)
}

func SendIPCCommand(cmd string) (string, error) {
	conn, err := ConnectIPC()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(conn, 1<<20))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
