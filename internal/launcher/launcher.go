package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/taskpilot/internal/detector"
	"github.com/loykin/taskpilot/internal/metrics"
	"github.com/loykin/taskpilot/internal/program"
)

// ErrEmptyCommand is returned when a program has no start command to run.
var ErrEmptyCommand = errors.New("empty start command")

// Strategy selects how a free-text start command is handed to the OS.
type Strategy int

const (
	// StrategyShellStart runs the remainder after "start " through the shell's
	// start launcher in its own console.
	StrategyShellStart Strategy = iota + 1
	// StrategyShellArgs runs the whole command line through the shell without a console window.
	StrategyShellArgs
	// StrategyDirect launches the command as a single executable or document path.
	StrategyDirect
)

func (s Strategy) String() string {
	switch s {
	case StrategyShellStart:
		return "shell-start"
	case StrategyShellArgs:
		return "shell-args"
	case StrategyDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// Plan is the classified form of a start command.
type Plan struct {
	Strategy Strategy `json:"strategy"`
	Argument string   `json:"argument"`
}

const startPrefix = "start "

// Classify picks a launch strategy for command. The first matching rule wins:
// a leading "start " (any case), then any space, then direct launch.
func Classify(command string) Plan {
	cmd := strings.TrimSpace(command)
	if len(cmd) >= len(startPrefix) && strings.EqualFold(cmd[:len(startPrefix)], startPrefix) {
		return Plan{Strategy: StrategyShellStart, Argument: strings.TrimSpace(cmd[len(startPrefix):])}
	}
	if strings.Contains(cmd, " ") {
		return Plan{Strategy: StrategyShellArgs, Argument: cmd}
	}
	return Plan{Strategy: StrategyDirect, Argument: cmd}
}

// LaunchError reports a process that could not be created.
type LaunchError struct {
	Program  string
	Strategy Strategy
	Command  string
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s (%s %q): %v", e.Program, e.Strategy, e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Result describes an accepted launch. PID is 0 when the OS did not report one.
type Result struct {
	Plan    Plan      `json:"plan"`
	PID     int       `json:"pid"`
	Started time.Time `json:"started"`
}

// Launcher starts and stops the OS processes behind programs.
type Launcher struct {
	provider detector.Provider
	logger   *slog.Logger
}

func New(provider detector.Provider, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{provider: provider, logger: logger}
}

// Launch starts p's command and records the new PID on p.
// The child is not supervised: it is reaped in the background and never waited on by the caller.
func (l *Launcher) Launch(p *program.Program) (Result, error) {
	plan := Classify(p.StartCommand)
	if plan.Argument == "" {
		return Result{}, &LaunchError{Program: p.ProcessName, Strategy: plan.Strategy, Command: p.StartCommand, Err: ErrEmptyCommand}
	}

	l.logger.Info("launching program", "process", p.ProcessName, "strategy", plan.Strategy.String(), "command", plan.Argument)

	res := Result{Plan: plan, Started: time.Now()}
	cmd := buildCommand(plan, p.DisplayName)
	if err := cmd.Start(); err != nil {
		handled, ferr := fallbackStart(plan, err)
		if !handled {
			metrics.IncLaunchFailure(plan.Strategy.String())
			l.logger.Error("launch failed", "process", p.ProcessName, "strategy", plan.Strategy.String(), "error", err)
			return Result{}, &LaunchError{Program: p.ProcessName, Strategy: plan.Strategy, Command: plan.Argument, Err: err}
		}
		if ferr != nil {
			metrics.IncLaunchFailure(plan.Strategy.String())
			l.logger.Error("launch failed", "process", p.ProcessName, "strategy", plan.Strategy.String(), "error", ferr)
			return Result{}, &LaunchError{Program: p.ProcessName, Strategy: plan.Strategy, Command: plan.Argument, Err: ferr}
		}
		p.ClearLastStartedPID()
		l.logger.Info("launch accepted, pid unknown", "process", p.ProcessName)
		return res, nil
	}

	go reap(cmd)
	// The shell's start launcher hands the program to another process; its own PID is not the program's.
	if plan.Strategy == StrategyShellStart {
		p.ClearLastStartedPID()
		l.logger.Info("launch accepted, pid unknown", "process", p.ProcessName, "shell_pid", cmd.Process.Pid)
		return res, nil
	}
	res.PID = cmd.Process.Pid
	if res.PID > 0 {
		p.SetLastStartedPID(res.PID)
	}
	l.logger.Info("launch accepted", "process", p.ProcessName, "pid", res.PID)
	return res, nil
}

func reap(cmd *exec.Cmd) { _ = cmd.Wait() }

// Terminate kills p's processes and returns how many were killed.
// The saved PID is tried first when it still belongs to p, then every process carrying p's name.
func (l *Launcher) Terminate(ctx context.Context, p *program.Program) (int, error) {
	killed := make(map[int]struct{})

	if pid := p.LastStartedPID(); pid > 0 {
		proc, err := l.provider.Lookup(ctx, pid)
		switch {
		case err != nil:
			l.logger.Debug("saved pid gone", "process", p.ProcessName, "pid", pid)
		case detector.IsStale(proc, p.ProcessName):
			l.logger.Debug("saved pid is stale", "process", p.ProcessName, "pid", pid, "now", proc.Name)
		default:
			if err := l.provider.Kill(ctx, pid); err != nil && !errors.Is(err, detector.ErrNotFound) {
				l.logger.Warn("kill saved pid failed", "process", p.ProcessName, "pid", pid, "error", err)
			} else if err == nil {
				killed[pid] = struct{}{}
			}
		}
		p.ClearLastStartedPID()
	}

	procs, err := l.provider.FindByName(ctx, p.ProcessName)
	if err != nil {
		metrics.AddKilled(p.ProcessName, len(killed))
		return len(killed), fmt.Errorf("find %s: %w", p.ProcessName, err)
	}
	var errs []error
	for _, proc := range procs {
		if _, done := killed[proc.PID]; done {
			continue
		}
		if err := l.provider.Kill(ctx, proc.PID); err != nil {
			if errors.Is(err, detector.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("kill %d: %w", proc.PID, err))
			continue
		}
		killed[proc.PID] = struct{}{}
	}

	metrics.AddKilled(p.ProcessName, len(killed))
	l.logger.Info("program stopped", "process", p.ProcessName, "killed", len(killed))
	return len(killed), errors.Join(errs...)
}
