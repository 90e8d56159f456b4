package program

import (
	"strings"
	"sync/atomic"

	"github.com/loykin/taskpilot/internal/detector"
)

// Program describes an OS process the supervisor watches.
// ProcessName is the identity key and is compared case-insensitively.
// Programs are shared by pointer for the lifetime of one configuration;
// LastStartedPID is the only field mutated after load.
type Program struct {
	ProcessName  string `json:"process_name"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description,omitempty"`
	StartCommand string `json:"start_command,omitempty"`
	AutoRestart  bool   `json:"auto_restart"`
	Monitored    bool   `json:"monitored"`

	lastPID atomic.Int64
}

// New returns a monitored program whose display name defaults to the process name.
func New(processName, displayName string) *Program {
	if displayName == "" {
		displayName = processName
	}
	return &Program{ProcessName: processName, DisplayName: displayName, Monitored: true}
}

// KeyOf returns the identity key for a process name: ".exe" dropped, lower-cased.
// "Notepad.EXE" and "notepad" name the same program.
func KeyOf(name string) string { return strings.ToLower(detector.NormalizeName(name)) }

// Key returns the identity key used for lookups and cooldown tracking.
func (p *Program) Key() string { return KeyOf(p.ProcessName) }

// CanStart reports whether the program carries a usable start command.
func (p *Program) CanStart() bool { return strings.TrimSpace(p.StartCommand) != "" }

// LastStartedPID returns the PID recorded by the most recent launch, 0 if unknown.
// It is advisory only: the OS may have reused the PID since.
func (p *Program) LastStartedPID() int { return int(p.lastPID.Load()) }

// SetLastStartedPID records the PID of a process launched for this program.
func (p *Program) SetLastStartedPID(pid int) { p.lastPID.Store(int64(pid)) }

// ClearLastStartedPID forgets the saved PID.
func (p *Program) ClearLastStartedPID() { p.lastPID.Store(0) }

// Clone returns a copy that shares no state with p.
func (p *Program) Clone() *Program {
	c := &Program{
		ProcessName:  p.ProcessName,
		DisplayName:  p.DisplayName,
		Description:  p.Description,
		StartCommand: p.StartCommand,
		AutoRestart:  p.AutoRestart,
		Monitored:    p.Monitored,
	}
	c.lastPID.Store(p.lastPID.Load())
	return c
}

// List is an ordered program list as produced by the configuration loader.
type List []*Program

// FindByProcessName returns the first program whose process name matches name,
// ignoring case and a trailing ".exe".
func (l List) FindByProcessName(name string) *Program {
	k := KeyOf(name)
	for _, p := range l {
		if p.Key() == k {
			return p
		}
	}
	return nil
}

// ExistsByProcessName reports whether a program with this process name is present.
func (l List) ExistsByProcessName(name string) bool {
	return l.FindByProcessName(name) != nil
}

// Monitored returns the programs flagged for monitoring, preserving order.
func (l List) Monitored() List {
	out := make(List, 0, len(l))
	for _, p := range l {
		if p.Monitored {
			out = append(out, p)
		}
	}
	return out
}

// Remove returns a new list without the program named name. The receiver is not modified.
func (l List) Remove(name string) (List, bool) {
	out := make(List, 0, len(l))
	removed := false
	k := KeyOf(name)
	for _, p := range l {
		if !removed && p.Key() == k {
			removed = true
			continue
		}
		out = append(out, p)
	}
	return out, removed
}
