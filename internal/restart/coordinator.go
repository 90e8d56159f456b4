package restart

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/taskpilot/internal/launcher"
	"github.com/loykin/taskpilot/internal/metrics"
	"github.com/loykin/taskpilot/internal/monitor"
	"github.com/loykin/taskpilot/internal/program"
)

// Cooldown is how long a program stays ineligible after a launch was triggered.
// It must outlast a poll interval so a slow starter is not launched twice.
const Cooldown = 5 * time.Second

// Launcher starts a program's command.
type Launcher interface {
	Launch(p *program.Program) (launcher.Result, error)
}

// Decision explains what TryRestart or StartNow did.
type Decision int

const (
	Launched Decision = iota
	Failed
	Disabled
	NoAutoRestart
	NoCommand
	CoolingDown
	AlreadyActive
)

func (d Decision) String() string {
	switch d {
	case Launched:
		return "launched"
	case Failed:
		return "failed"
	case Disabled:
		return "disabled"
	case NoAutoRestart:
		return "no-auto-restart"
	case NoCommand:
		return "no-command"
	case CoolingDown:
		return "cooldown"
	case AlreadyActive:
		return "active"
	default:
		return "unknown"
	}
}

// Outcome is the result of one restart attempt. Err is set only for Failed.
type Outcome struct {
	Decision Decision
	Result   launcher.Result
	Err      error
}

// Triggered reports whether a launch was attempted.
func (o Outcome) Triggered() bool { return o.Decision == Launched || o.Decision == Failed }

// Coordinator decides whether an inactive program is relaunched and
// suppresses duplicate triggers with a per-program cooldown.
type Coordinator struct {
	launcher Launcher
	logger   *slog.Logger
	after    func(time.Duration, func())
	enabled  atomic.Bool

	mu      sync.Mutex
	cooling map[string]struct{}
}

type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithScheduler replaces time.AfterFunc for cooldown expiry. after must not call f synchronously.
func WithScheduler(after func(time.Duration, func())) Option {
	return func(c *Coordinator) {
		if after != nil {
			c.after = after
		}
	}
}

// New returns a Coordinator with auto-restart enabled.
func New(l Launcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		launcher: l,
		logger:   slog.Default(),
		after:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		cooling:  make(map[string]struct{}),
	}
	c.enabled.Store(true)
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetEnabled toggles automatic restarts globally. Manual starts are unaffected.
func (c *Coordinator) SetEnabled(v bool) {
	if c.enabled.Swap(v) != v {
		c.logger.Info("auto-restart toggled", "enabled", v)
	}
}

func (c *Coordinator) Enabled() bool { return c.enabled.Load() }

// InCooldown reports whether name had a launch triggered within the last Cooldown.
func (c *Coordinator) InCooldown(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.cooling[program.KeyOf(name)]
	return ok
}

// TryRestart relaunches p if it is inactive, auto-restart is on for it and globally,
// it has a start command, and it is not cooling down.
func (c *Coordinator) TryRestart(p *program.Program, st monitor.ProgramStatus) Outcome {
	switch {
	case st.IsActive:
		return c.skip(p, AlreadyActive)
	case !c.enabled.Load():
		return c.skip(p, Disabled)
	case !p.AutoRestart:
		return c.skip(p, NoAutoRestart)
	case !p.CanStart():
		return c.skip(p, NoCommand)
	}
	return c.trigger(p, "auto")
}

// StartNow launches p on request. It ignores the auto-restart flags but
// still needs a start command and honors the cooldown.
func (c *Coordinator) StartNow(p *program.Program) Outcome {
	if !p.CanStart() {
		return c.skip(p, NoCommand)
	}
	return c.trigger(p, "manual")
}

func (c *Coordinator) skip(p *program.Program, d Decision) Outcome {
	c.logger.Debug("restart skipped", "process", p.ProcessName, "reason", d.String())
	metrics.IncRestartDecision(p.ProcessName, d.String())
	return Outcome{Decision: d}
}

func (c *Coordinator) trigger(p *program.Program, source string) Outcome {
	key := p.Key()
	if !c.reserve(key) {
		return c.skip(p, CoolingDown)
	}

	res, err := c.launcher.Launch(p)
	if err != nil {
		// the cooldown entry stays until it expires
		c.logger.Error("restart failed", "process", p.ProcessName, "source", source, "error", err)
		metrics.IncRestartDecision(p.ProcessName, Failed.String())
		return Outcome{Decision: Failed, Err: err}
	}
	c.logger.Info("restart triggered", "process", p.ProcessName, "source", source, "pid", res.PID, "strategy", res.Plan.Strategy.String())
	metrics.IncRestartDecision(p.ProcessName, Launched.String())
	return Outcome{Decision: Launched, Result: res}
}

// reserve inserts key into the cooldown set and schedules its removal.
// It returns false when key is already cooling down.
func (c *Coordinator) reserve(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cooling[key]; ok {
		return false
	}
	c.cooling[key] = struct{}{}
	c.after(Cooldown, func() { c.release(key) })
	return true
}

func (c *Coordinator) release(key string) {
	c.mu.Lock()
	delete(c.cooling, key)
	c.mu.Unlock()
	c.logger.Debug("cooldown expired", "process", key)
}
