package monitor

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"time"

	"github.com/loykin/taskpilot/internal/detector"
	"github.com/loykin/taskpilot/internal/program"
)

// Tracker keeps the status cache for the monitored programs and reports liveness transitions.
//
// A Tracker is driven by one goroutine at a time: SetMonitoredPrograms, Poll and
// Statuses must not run concurrently. Change handlers run synchronously inside Poll.
type Tracker struct {
	provider detector.Provider
	logger   *slog.Logger
	now      func() time.Time

	programs program.List
	cache    map[string]*ProgramStatus
	handlers []func(ProgramStatus)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for poll diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// PollResult summarizes one Poll.
type PollResult struct {
	Active   int
	Inactive int
	Changed  int
}

func NewTracker(provider detector.Provider, opts ...Option) *Tracker {
	t := &Tracker{
		provider: provider,
		logger:   slog.Default(),
		now:      time.Now,
		cache:    make(map[string]*ProgramStatus),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// OnStatusChanged registers fn to receive every liveness transition.
// Handlers must not call back into the Tracker.
func (t *Tracker) OnStatusChanged(fn func(ProgramStatus)) {
	if fn != nil {
		t.handlers = append(t.handlers, fn)
	}
}

// SetMonitoredPrograms replaces the program set and rebuilds the cache from scratch.
// Every program starts out inactive; the next Poll reports the ones already running.
func (t *Tracker) SetMonitoredPrograms(programs program.List) {
	now := t.now()
	list := make(program.List, len(programs))
	copy(list, programs)
	cache := make(map[string]*ProgramStatus, len(list))
	for _, p := range list {
		k := p.Key()
		if _, dup := cache[k]; dup {
			t.logger.Warn("duplicate process name in program list", "process", p.ProcessName)
			continue
		}
		cache[k] = &ProgramStatus{
			ProcessName: p.ProcessName,
			DisplayName: p.DisplayName,
			Description: p.Description,
			IsActive:    false,
			StatusSince: now,
		}
	}
	t.programs = list
	t.cache = cache
	t.logger.Info("monitored programs set", "count", len(list))
}

// Programs returns the current program list. The slice must not be modified.
func (t *Tracker) Programs() program.List { return t.programs }

// Poll samples the process table once and updates every program from that single snapshot.
// When the process table cannot be read the cycle is skipped and the cache is left untouched.
func (t *Tracker) Poll(ctx context.Context) (PollResult, error) {
	snap, err := t.provider.Snapshot(ctx)
	if err != nil {
		t.logger.Warn("process snapshot failed, skipping poll", "error", err)
		return PollResult{}, fmt.Errorf("poll: %w", err)
	}

	var res PollResult
	var changed []ProgramStatus
	for _, p := range t.programs {
		st, ok := t.cache[p.Key()]
		if !ok {
			continue
		}
		running := snap.Contains(p.Key())
		if running {
			res.Active++
		} else {
			res.Inactive++
		}
		if st.IsActive == running {
			continue
		}
		st.IsActive = running
		st.StatusSince = t.now()
		st.ProcessID = snap.AnyPID(p.Key())
		changed = append(changed, *st)
	}
	res.Changed = len(changed)

	t.logger.Debug("poll complete", "programs", len(t.programs), "active", res.Active, "inactive", res.Inactive, "changed", res.Changed)

	for _, st := range changed {
		t.logger.Info("status changed", "process", st.ProcessName, "status", st.StatusText(), "pid", st.ProcessID)
		for _, h := range t.handlers {
			h(st)
		}
	}
	return res, nil
}

// Status returns the cached status for a process name, ignoring case and a trailing ".exe".
func (t *Tracker) Status(name string) (ProgramStatus, bool) {
	st, ok := t.cache[program.KeyOf(name)]
	if !ok {
		return ProgramStatus{}, false
	}
	return *st, true
}

// Statuses yields copies of the cached statuses ordered by display name.
// Ordering and copying happen when iteration starts.
func (t *Tracker) Statuses() iter.Seq[ProgramStatus] {
	return func(yield func(ProgramStatus) bool) {
		entries := make([]*ProgramStatus, 0, len(t.cache))
		for _, st := range t.cache {
			entries = append(entries, st)
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].DisplayName != entries[j].DisplayName {
				return entries[i].DisplayName < entries[j].DisplayName
			}
			return entries[i].ProcessName < entries[j].ProcessName
		})
		for _, st := range entries {
			if !yield(*st) {
				return
			}
		}
	}
}
