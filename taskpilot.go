package taskpilot

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/taskpilot/internal/config"
	"github.com/loykin/taskpilot/internal/detector"
	"github.com/loykin/taskpilot/internal/manager"
	"github.com/loykin/taskpilot/internal/metrics"
	"github.com/loykin/taskpilot/internal/monitor"
	"github.com/loykin/taskpilot/internal/program"
	"github.com/loykin/taskpilot/internal/restart"
	iapi "github.com/loykin/taskpilot/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Program = program.Program

type ProgramList = program.List

type ProgramStatus = monitor.ProgramStatus

type Options = manager.Options

type Outcome = restart.Outcome

type ProcessInfo = detector.Info

type Config = cfg.Config

var (
	ErrUnknownProgram = manager.ErrUnknownProgram
	ErrNoStartCommand = manager.ErrNoStartCommand
	ErrCoolingDown    = manager.ErrCoolingDown
)

// NewProgram returns a monitored program; displayName defaults to processName.
func NewProgram(processName, displayName string) *Program {
	return program.New(processName, displayName)
}

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

func New(opts Options) *Manager { return &Manager{inner: manager.New(opts)} }

func (m *Manager) SetMonitoredPrograms(ps ProgramList)       { m.inner.SetMonitoredPrograms(ps) }
func (m *Manager) OnStatusChanged(fn func(ProgramStatus))    { m.inner.OnStatusChanged(fn) }
func (m *Manager) Run(ctx context.Context) error             { return m.inner.Run(ctx) }
func (m *Manager) Statuses() []ProgramStatus                 { return m.inner.Statuses() }
func (m *Manager) Status(name string) (ProgramStatus, error) { return m.inner.Status(name) }
func (m *Manager) SetAutoRestart(v bool)                     { m.inner.SetAutoRestart(v) }
func (m *Manager) AutoRestart() bool                         { return m.inner.AutoRestart() }
func (m *Manager) StartProgram(name string) (Outcome, error) { return m.inner.StartProgram(name) }
func (m *Manager) MinimizeAll(ctx context.Context) int       { return m.inner.MinimizeAll(ctx) }
func (m *Manager) RestoreAll(ctx context.Context) int        { return m.inner.RestoreAll(ctx) }

// Refresh polls once and returns how many programs changed state.
func (m *Manager) Refresh(ctx context.Context) (int, error) {
	res, err := m.inner.Refresh(ctx)
	return res.Changed, err
}
func (m *Manager) StopProgram(ctx context.Context, name string) (int, error) {
	return m.inner.StopProgram(ctx, name)
}
func (m *Manager) Minimize(ctx context.Context, name string) (int, error) {
	return m.inner.Minimize(ctx, name)
}
func (m *Manager) Restore(ctx context.Context, name string) (int, error) {
	return m.inner.Restore(ctx, name)
}
func (m *Manager) Running(ctx context.Context, pattern string) ([]ProcessInfo, error) {
	return m.inner.Running(ctx, pattern)
}

func LoadConfig(path string) (*Config, error) {
	return cfg.Load(path)
}

// NewHTTPServer returns an unstarted HTTP server exposing the control API for m.
func NewHTTPServer(addr, basePath string, m *Manager) *http.Server {
	return iapi.NewServer(addr, iapi.NewRouter(m.inner, basePath).Handler())
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
