package detector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// System is the Provider backed by the live OS process table.
type System struct{}

// NewSystem returns a Provider reading the OS process table through gopsutil.
func NewSystem() *System { return &System{} }

func (System) Snapshot(ctx context.Context) (Snapshot, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list processes: %w", err)
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			// process exited or access denied
			continue
		}
		out = append(out, Process{PID: int(p.Pid), Name: NormalizeName(name)})
	}
	return NewSnapshot(out), nil
}

func (System) Lookup(ctx context.Context, pid int) (Process, error) {
	if pid <= 0 {
		return Process{}, ErrNotFound
	}
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, gopsproc.ErrorProcessNotRunning) {
			return Process{}, ErrNotFound
		}
		return Process{}, fmt.Errorf("open pid %d: %w", pid, err)
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return Process{}, fmt.Errorf("%w: pid %d: %v", ErrNotFound, pid, err)
	}
	return Process{PID: pid, Name: NormalizeName(name)}, nil
}

func (s System) FindByName(ctx context.Context, name string) ([]Process, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	pids := snap.PIDs(NormalizeName(name))
	out := make([]Process, 0, len(pids))
	for _, pid := range pids {
		out = append(out, Process{PID: pid, Name: NormalizeName(name)})
	}
	return out, nil
}

func (System) Kill(ctx context.Context, pid int) error {
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, gopsproc.ErrorProcessNotRunning) {
			return ErrNotFound
		}
		return err
	}
	return p.KillWithContext(ctx)
}

func (System) Running(ctx context.Context) ([]Info, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	infos := make([]Info, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		name = NormalizeName(name)
		infos = append(infos, Info{
			ProcessName: strings.ToLower(name),
			DisplayName: displayName(ctx, p, name),
		})
	}
	return dedupeInfos(infos), nil
}

// displayName prefers the executable's base name; system processes often deny access to it.
func displayName(ctx context.Context, p *gopsproc.Process, fallback string) string {
	exe, err := p.ExeWithContext(ctx)
	if err != nil || exe == "" {
		return fallback
	}
	base := filepath.Base(exe)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		return fallback
	}
	return base
}
