package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/loykin/taskpilot/internal/detector"
	"github.com/loykin/taskpilot/internal/launcher"
	"github.com/loykin/taskpilot/internal/metrics"
	"github.com/loykin/taskpilot/internal/monitor"
	"github.com/loykin/taskpilot/internal/program"
	"github.com/loykin/taskpilot/internal/restart"
	"github.com/loykin/taskpilot/internal/window"
)

var (
	ErrUnknownProgram = errors.New("unknown program")
	ErrNoStartCommand = errors.New("program has no start command")
	ErrCoolingDown    = errors.New("program was started recently")
)

// DefaultInterval is the poll period used when Options.Interval is zero.
const DefaultInterval = 5 * time.Second

// Launcher starts and stops program processes.
type Launcher interface {
	Launch(p *program.Program) (launcher.Result, error)
	Terminate(ctx context.Context, p *program.Program) (int, error)
}

// Options wires a Manager. Zero values select the OS-backed implementations.
type Options struct {
	Provider    detector.Provider
	Launcher    Launcher
	Windows     window.System
	Logger      *slog.Logger
	Interval    time.Duration
	AutoRestart bool
	Usage       *metrics.UsageSampler

	// Clock and Scheduler replace time.Now and time.AfterFunc in tests.
	Clock     func() time.Time
	Scheduler func(time.Duration, func())
}

// Manager is the supervision engine driver. Every operation runs under one lock,
// so polls, reloads and user commands never interleave.
type Manager struct {
	mu sync.Mutex

	provider detector.Provider
	launcher Launcher
	tracker  *monitor.Tracker
	restarts *restart.Coordinator
	windows  *window.Controller
	usage    *metrics.UsageSampler
	logger   *slog.Logger
	interval time.Duration
}

func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	provider := opts.Provider
	if provider == nil {
		provider = detector.NewSystem()
	}
	l := opts.Launcher
	if l == nil {
		l = launcher.New(provider, logger.With("component", "launcher"))
	}
	ws := opts.Windows
	if ws == nil {
		ws = window.NewSystem()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	m := &Manager{
		provider: provider,
		launcher: l,
		tracker: monitor.NewTracker(provider,
			monitor.WithLogger(logger.With("component", "monitor")),
			monitor.WithClock(opts.Clock)),
		restarts: restart.New(l,
			restart.WithLogger(logger.With("component", "restart")),
			restart.WithScheduler(opts.Scheduler)),
		windows:  window.NewController(ws, logger.With("component", "window")),
		usage:    opts.Usage,
		logger:   logger,
		interval: interval,
	}
	m.restarts.SetEnabled(opts.AutoRestart)
	m.tracker.OnStatusChanged(m.onStatusChanged)
	return m
}

// onStatusChanged runs inside Poll, so the driver lock is already held.
func (m *Manager) onStatusChanged(st monitor.ProgramStatus) {
	// liveness series are labelled by program key so a case-only rename keeps the series
	metrics.RecordStatusChange(program.KeyOf(st.ProcessName), st.IsActive)
	if st.IsActive {
		return
	}
	if p := m.tracker.Programs().FindByProcessName(st.ProcessName); p != nil {
		m.restarts.TryRestart(p, st)
	}
}

// OnStatusChanged subscribes fn to liveness transitions. fn runs on the poll
// goroutine with the driver lock held and must not call back into the Manager.
func (m *Manager) OnStatusChanged(fn func(monitor.ProgramStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracker.OnStatusChanged(fn)
}

// SetMonitoredPrograms hands the monitored subset of programs to the engine.
// The status cache is rebuilt and every program starts out inactive.
func (m *Manager) SetMonitoredPrograms(programs program.List) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := programs.Monitored()
	keep := make(map[string]struct{}, len(next))
	names := make(map[string]struct{}, len(next))
	for _, p := range next {
		keep[p.Key()] = struct{}{}
		names[p.ProcessName] = struct{}{}
	}
	for _, p := range m.tracker.Programs() {
		if _, ok := keep[p.Key()]; !ok {
			metrics.ForgetProgram(p.Key())
		}
	}
	if m.usage != nil {
		m.usage.Retain(names)
	}
	m.tracker.SetMonitoredPrograms(next)
}

// Refresh polls once and then offers every inactive program to the restart coordinator.
// A failed snapshot skips the whole cycle.
func (m *Manager) Refresh(ctx context.Context) (monitor.PollResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) (monitor.PollResult, error) {
	start := time.Now()
	res, err := m.tracker.Poll(ctx)
	metrics.ObservePoll(time.Since(start), err)
	if err != nil {
		return res, err
	}
	for _, p := range m.tracker.Programs() {
		st, ok := m.tracker.Status(p.ProcessName)
		if ok && !st.IsActive {
			m.restarts.TryRestart(p, st)
		}
	}
	return res, nil
}

// Run polls immediately and then every interval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("supervision loop started", "interval", m.interval.String(), "auto_restart", m.restarts.Enabled())
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if _, err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
			m.logger.Debug("refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			m.logger.Info("supervision loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Manager) Interval() time.Duration { return m.interval }

// SetAutoRestart toggles automatic restarts for all programs. It is not persisted.
func (m *Manager) SetAutoRestart(v bool) { m.restarts.SetEnabled(v) }

func (m *Manager) AutoRestart() bool { return m.restarts.Enabled() }

// InCooldown reports whether name was launched within the last restart.Cooldown.
func (m *Manager) InCooldown(name string) bool { return m.restarts.InCooldown(name) }

// Statuses returns the status cache ordered by display name.
func (m *Manager) Statuses() []monitor.ProgramStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Collect(m.tracker.Statuses())
}

// Status returns one program's status.
func (m *Manager) Status(name string) (monitor.ProgramStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.tracker.Status(name)
	if !ok {
		return monitor.ProgramStatus{}, fmt.Errorf("%w: %s", ErrUnknownProgram, name)
	}
	return st, nil
}

// Programs returns copies of the monitored programs in configuration order.
func (m *Manager) Programs() program.List {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.tracker.Programs()
	out := make(program.List, 0, len(src))
	for _, p := range src {
		out = append(out, p.Clone())
	}
	return out
}

func (m *Manager) lookup(name string) (*program.Program, error) {
	p := m.tracker.Programs().FindByProcessName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, name)
	}
	return p, nil
}

// StartProgram launches a program on request, regardless of its auto-restart settings.
// It still honors the restart cooldown.
func (m *Manager) StartProgram(name string) (restart.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(name)
	if err != nil {
		return restart.Outcome{}, err
	}
	out := m.restarts.StartNow(p)
	switch out.Decision {
	case restart.NoCommand:
		return out, fmt.Errorf("%w: %s", ErrNoStartCommand, p.ProcessName)
	case restart.CoolingDown:
		return out, fmt.Errorf("%w: %s", ErrCoolingDown, p.ProcessName)
	case restart.Failed:
		return out, out.Err
	}
	return out, nil
}

// StopProgram kills the program's processes and returns how many were killed.
func (m *Manager) StopProgram(ctx context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(name)
	if err != nil {
		return 0, err
	}
	return m.launcher.Terminate(ctx, p)
}

// Minimize minimizes the program's windows and returns how many were affected.
func (m *Manager) Minimize(ctx context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(name)
	if err != nil {
		return 0, err
	}
	return m.applyWindows(ctx, p, "minimize", m.windows.Minimize), nil
}

// Restore restores the program's windows and brings them to the foreground.
func (m *Manager) Restore(ctx context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(name)
	if err != nil {
		return 0, err
	}
	return m.applyWindows(ctx, p, "restore", m.windows.RestoreAndFocus), nil
}

// MinimizeAll minimizes the windows of every active program and returns the total.
func (m *Manager) MinimizeAll(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyAll(ctx, "minimize", m.windows.Minimize)
}

// RestoreAll restores the windows of every active program and returns the total.
func (m *Manager) RestoreAll(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyAll(ctx, "restore", m.windows.RestoreAndFocus)
}

func (m *Manager) applyAll(ctx context.Context, op string, apply func(window.Target) bool) int {
	total := 0
	for st := range m.tracker.Statuses() {
		if !st.IsActive {
			continue
		}
		p := m.tracker.Programs().FindByProcessName(st.ProcessName)
		if p == nil {
			continue
		}
		total += m.applyWindows(ctx, p, op, apply)
	}
	m.logger.Info("window batch complete", "op", op, "windows", total)
	return total
}

// applyWindows tries the saved PID first, clearing it when it is gone or now names
// another image, and falls back to every process carrying the program's name.
func (m *Manager) applyWindows(ctx context.Context, p *program.Program, op string, apply func(window.Target) bool) int {
	count := 0
	if pid := p.LastStartedPID(); pid > 0 {
		proc, err := m.provider.Lookup(ctx, pid)
		switch {
		case err != nil:
			m.logger.Debug("saved pid gone", "process", p.ProcessName, "pid", pid, "error", err)
			p.ClearLastStartedPID()
		case detector.IsStale(proc, p.ProcessName):
			m.logger.Debug("saved pid is stale", "process", p.ProcessName, "pid", pid, "now", proc.Name)
			p.ClearLastStartedPID()
		default:
			if apply(window.Target{PID: pid, ProcessName: p.ProcessName}) {
				count++
			}
		}
	}
	if count == 0 {
		procs, err := m.provider.FindByName(ctx, p.ProcessName)
		if err != nil {
			m.logger.Warn("find processes failed", "process", p.ProcessName, "error", err)
		}
		for _, proc := range procs {
			if apply(window.Target{PID: proc.PID, ProcessName: p.ProcessName}) {
				count++
			}
		}
	}
	m.logger.Debug("window operation", "op", op, "process", p.ProcessName, "windows", count)
	return count
}

// Running lists processes currently running on the machine, filtered by a glob pattern.
func (m *Manager) Running(ctx context.Context, pattern string) ([]detector.Info, error) {
	infos, err := m.provider.Running(ctx)
	if err != nil {
		return nil, err
	}
	return detector.Filter(infos, pattern)
}

// Usage samples CPU and memory for every active program. It needs Options.Usage.
func (m *Manager) Usage(ctx context.Context) ([]metrics.Usage, error) {
	if m.usage == nil {
		return nil, nil
	}
	m.mu.Lock()
	var active []string
	for st := range m.tracker.Statuses() {
		if st.IsActive {
			active = append(active, st.ProcessName)
		}
	}
	m.mu.Unlock()

	out := make([]metrics.Usage, 0, len(active))
	for _, name := range active {
		procs, err := m.provider.FindByName(ctx, name)
		if err != nil {
			return nil, err
		}
		pids := make([]int, 0, len(procs))
		for _, p := range procs {
			pids = append(pids, p.PID)
		}
		u, err := m.usage.Sample(ctx, name, pids)
		if err != nil {
			m.logger.Debug("usage sample failed", "process", name, "error", err)
			continue
		}
		out = append(out, u)
	}
	return out, nil
}
