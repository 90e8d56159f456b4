package detector

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNotFound is returned by Provider.Lookup when no process has the PID.
var ErrNotFound = errors.New("process not found")

// Process is one entry of the OS process table.
type Process struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// Info describes a running process for selection lists.
type Info struct {
	ProcessName string `json:"process_name"`
	DisplayName string `json:"display_name"`
}

// Provider queries the OS process table. Implementations must be safe for concurrent use.
type Provider interface {
	// Snapshot returns all running process names with their PIDs, taken in one query.
	Snapshot(ctx context.Context) (Snapshot, error)
	// Lookup returns the process currently holding pid, or ErrNotFound.
	Lookup(ctx context.Context, pid int) (Process, error)
	// FindByName returns every running process whose normalized name equals name, ignoring case.
	FindByName(ctx context.Context, name string) ([]Process, error)
	// Kill terminates the process with the given pid.
	Kill(ctx context.Context, pid int) error
	// Running lists distinct running processes ordered by display name.
	Running(ctx context.Context) ([]Info, error)
}

// Snapshot is an immutable view of the process table keyed by lower-cased name.
type Snapshot struct {
	byName map[string][]int
	taken  time.Time
}

// NewSnapshot indexes procs by normalized, lower-cased name. PIDs keep their input order.
func NewSnapshot(procs []Process) Snapshot {
	m := make(map[string][]int, len(procs))
	for _, p := range procs {
		k := key(p.Name)
		if k == "" {
			continue
		}
		m[k] = append(m[k], p.PID)
	}
	return Snapshot{byName: m, taken: time.Now()}
}

// Contains reports whether at least one process named name was running.
func (s Snapshot) Contains(name string) bool {
	return len(s.byName[key(name)]) > 0
}

// PIDs returns the PIDs observed for name.
func (s Snapshot) PIDs(name string) []int {
	return s.byName[key(name)]
}

// AnyPID returns one PID observed for name, or 0. Which one is unspecified.
func (s Snapshot) AnyPID(name string) int {
	pids := s.byName[key(name)]
	if len(pids) == 0 {
		return 0
	}
	return pids[0]
}

// Len returns the number of distinct process names.
func (s Snapshot) Len() int { return len(s.byName) }

// Taken returns when the snapshot was built.
func (s Snapshot) Taken() time.Time { return s.taken }

func key(name string) string { return strings.ToLower(NormalizeName(name)) }

// NormalizeName strips a trailing ".exe" so image names compare like process names.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		return name[:len(name)-4]
	}
	return name
}

// IsStale reports whether p no longer looks like the process named processName.
// A saved PID that now belongs to another image is treated as stale.
func IsStale(p Process, processName string) bool {
	return !strings.EqualFold(NormalizeName(p.Name), NormalizeName(processName))
}

// Filter keeps the entries whose process or display name matches the glob pattern, ignoring case.
// An empty pattern keeps everything. A pattern without wildcards matches as a substring.
func Filter(infos []Info, pattern string) ([]Info, error) {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return infos, nil
	}
	if !strings.ContainsAny(pattern, "*?[{") {
		pattern = "*" + pattern + "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}
	out := make([]Info, 0, len(infos))
	for _, in := range infos {
		okProc, _ := doublestar.Match(pattern, strings.ToLower(in.ProcessName))
		okDisp, _ := doublestar.Match(pattern, strings.ToLower(in.DisplayName))
		if okProc || okDisp {
			out = append(out, in)
		}
	}
	return out, nil
}

// dedupeInfos drops repeated process names and sorts by display name.
func dedupeInfos(in []Info) []Info {
	seen := make(map[string]struct{}, len(in))
	out := make([]Info, 0, len(in))
	for _, i := range in {
		if _, ok := seen[i.ProcessName]; ok {
			continue
		}
		seen[i.ProcessName] = struct{}{}
		out = append(out, i)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].DisplayName < out[b].DisplayName })
	return out
}
