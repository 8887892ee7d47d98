// Package supervisor owns the daemon's process lifecycle: the
// {init,running,stopping,stopped} state machine that creates the
// backend, launches startup reconciliation, binds the control socket
// and tears everything down on stop. Signal wiring lives one layer up
// (in the cmd entrypoint), matching the shape of the teacher's own
// serve command, which wires signal.NotifyContext itself and only hands
// the resulting context down to the blocking daemon Start call.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/cochaviz/opsipxeconfd/internal/backend"
	"github.com/cochaviz/opsipxeconfd/internal/config"
	"github.com/cochaviz/opsipxeconfd/internal/control"
	"github.com/cochaviz/opsipxeconfd/internal/logging"
	"github.com/cochaviz/opsipxeconfd/internal/model"
	"github.com/cochaviz/opsipxeconfd/internal/reconcile"
	"github.com/cochaviz/opsipxeconfd/internal/registry"
	"github.com/cochaviz/opsipxeconfd/internal/updater"
)

// State is one of the supervisor's four lifecycle states.
type State int

const (
	StateInit State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// BackendFactory builds a backend.Port from the current configuration.
// Production wiring supplies an opsirpc.Client constructor; tests supply
// a fake.Backend constructor.
type BackendFactory func(cfg config.Config, logger *slog.Logger) (backend.Port, error)

// Supervisor runs one daemon instance end to end.
type Supervisor struct {
	ConfigPath string
	SocketPath string
	DepotID    string
	NewBackend BackendFactory
	Logger     *slog.Logger

	mu    sync.Mutex
	state State
	cfg   config.Config

	registry *registry.Registry
	backend  backend.Port
	updater  *updater.Updater
	server   *control.Server

	cancelReconcile context.CancelFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New returns a Supervisor ready to Start. When non-empty, socketPath
// overrides control.DefaultSocketPath and depotID overrides the local
// hostname.
func New(configPath, socketPath, depotID string, newBackend BackendFactory, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		ConfigPath: configPath,
		SocketPath: socketPath,
		DepotID:    depotID,
		NewBackend: newBackend,
		Logger:     logging.Ensure(logger).With("component", "supervisor"),
		state:      StateInit,
		stopCh:     make(chan struct{}),
	}
}

// State reports the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// RequestStop asks the supervisor to begin shutting down. Safe to call
// from a control connection handler or a signal handler; it never
// blocks on supervisor teardown itself.
func (s *Supervisor) RequestStop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Start wires the backend, runs startup reconciliation, binds the
// control socket and blocks until ctx is cancelled or RequestStop is
// called, then tears everything down and returns. A fatal failure
// before the accept loop starts returns a non-zero-exit-worthy error;
// once running, writer and updater failures never propagate here.
func (s *Supervisor) Start(ctx context.Context) error {
	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	depotID := s.DepotID
	if depotID == "" {
		depotID, err = localDepotID()
		if err != nil {
			return fmt.Errorf("resolve depot id: %w", err)
		}
	}

	be, err := s.NewBackend(cfg, s.Logger)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}
	if err := be.SetBackendOptions(ctx, model.BackendOptions{AddProductPropertyStateDefaults: true, AddConfigStateDefaults: true}); err != nil {
		return fmt.Errorf("set backend options: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.backend = be
	s.registry = registry.New()
	s.updater = updater.New(be, s.registry, depotID, cfg.PxeConfigDir, cfg.PxeConfigTemplate, s.Logger)
	s.mu.Unlock()

	reconcileCtx, cancelReconcile := context.WithCancel(ctx)
	s.cancelReconcile = cancelReconcile
	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		task := reconcile.New(be, s.updater, depotID, s.Logger)
		if err := task.Run(reconcileCtx); err != nil {
			s.Logger.Error("startup reconciliation failed", "error", err)
		}
	}()

	socketPath := s.SocketPath
	if socketPath == "" {
		socketPath = control.DefaultSocketPath
	}
	srv := control.New(socketPath, cfg.MaxControlConnections, s.registry, s.updater, s, s.Logger)
	if err := srv.Bind(); err != nil {
		cancelReconcile()
		return fmt.Errorf("bind control socket: %w", err)
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	serveCtx, cancelServe := context.WithCancel(ctx)
	serveDone := make(chan struct{})
	go func() {
		srv.Serve(serveCtx)
		close(serveDone)
	}()

	s.setState(StateRunning)
	s.Logger.Info("opsipxeconfd running", "socket", socketPath, "depotId", depotID)

	select {
	case <-ctx.Done():
	case <-s.stopCh:
	}

	s.setState(StateStopping)
	cancelReconcile()
	cancelServe()
	srv.Stop()
	<-serveDone

	s.mu.Lock()
	current := s.server
	s.mu.Unlock()
	if current != nil && current != srv {
		current.Stop()
	}
	<-reconcileDone

	s.registry.CancelAndAwaitAll(context.Background())

	s.setState(StateStopped)
	s.Logger.Info("opsipxeconfd stopped")
	return nil
}

// Reload re-reads the configuration, rebuilds the backend instance and
// rebinds the control socket, per §4.H. Active writers are untouched;
// in-flight control connections on the old socket are left to finish.
func (s *Supervisor) Reload(ctx context.Context) error {
	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		return fmt.Errorf("reload configuration: %w", err)
	}

	be, err := s.NewBackend(cfg, s.Logger)
	if err != nil {
		return fmt.Errorf("reload backend: %w", err)
	}
	if err := be.SetBackendOptions(ctx, model.BackendOptions{AddProductPropertyStateDefaults: true, AddConfigStateDefaults: true}); err != nil {
		return fmt.Errorf("reload backend options: %w", err)
	}

	s.updater.Reconfigure(be, cfg.PxeConfigDir, cfg.PxeConfigTemplate)

	s.mu.Lock()
	s.cfg = cfg
	s.backend = be
	oldServer := s.server
	socketPath := s.SocketPath
	if socketPath == "" {
		socketPath = control.DefaultSocketPath
	}
	s.mu.Unlock()

	// The old listener is closed before the new one binds: closing a unix
	// listener unlinks its path, which would otherwise remove the freshly
	// bound socket file.
	if oldServer != nil {
		oldServer.Stop()
	}

	newServer := control.New(socketPath, cfg.MaxControlConnections, s.registry, s.updater, s, s.Logger)
	if err := newServer.Bind(); err != nil {
		return fmt.Errorf("rebind control socket: %w", err)
	}
	go newServer.Serve(context.Background())

	s.mu.Lock()
	s.server = newServer
	s.mu.Unlock()

	s.Logger.Info("opsipxeconfd reloaded")
	return nil
}

func localDepotID() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(hostname)), nil
}
