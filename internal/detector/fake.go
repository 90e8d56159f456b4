package detector

import (
	"context"
	"strings"
	"sync"
)

// Fake is an in-memory Provider for tests and headless runs.
type Fake struct {
	mu      sync.Mutex
	procs   []Process
	err     error
	killed  []int
	nextPID int
}

func NewFake(procs ...Process) *Fake {
	f := &Fake{nextPID: 1000}
	f.procs = append(f.procs, procs...)
	return f
}

// Set replaces the process table.
func (f *Fake) Set(procs ...Process) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.procs = append([]Process(nil), procs...)
}

// Start adds a process named name with a fresh PID and returns the PID.
func (f *Fake) Start(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	f.procs = append(f.procs, Process{PID: f.nextPID, Name: name})
	return f.nextPID
}

// FailWith makes Snapshot return err until cleared with nil.
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Killed returns the PIDs passed to Kill.
func (f *Fake) Killed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.killed...)
}

func (f *Fake) Snapshot(context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Snapshot{}, f.err
	}
	return NewSnapshot(f.procs), nil
}

func (f *Fake) Lookup(_ context.Context, pid int) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.procs {
		if p.PID == pid {
			return p, nil
		}
	}
	return Process{}, ErrNotFound
}

func (f *Fake) FindByName(_ context.Context, name string) ([]Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Process
	for _, p := range f.procs {
		if strings.EqualFold(NormalizeName(p.Name), NormalizeName(name)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *Fake) Kill(_ context.Context, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.procs {
		if p.PID == pid {
			f.procs = append(f.procs[:i], f.procs[i+1:]...)
			f.killed = append(f.killed, pid)
			return nil
		}
	}
	return ErrNotFound
}

func (f *Fake) Running(context.Context) ([]Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	infos := make([]Info, 0, len(f.procs))
	for _, p := range f.procs {
		n := NormalizeName(p.Name)
		infos = append(infos, Info{ProcessName: strings.ToLower(n), DisplayName: n})
	}
	return dedupeInfos(infos), nil
}
