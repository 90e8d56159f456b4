package monitor

import (
	"fmt"
	"time"
)

// ProgramStatus is the observed state of one monitored program.
type ProgramStatus struct {
	ProcessName string    `json:"process_name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	StatusSince time.Time `json:"status_since"`
	// ProcessID is one PID matching ProcessName, 0 if none. It is a hint only.
	ProcessID int `json:"process_id"`
}

// StatusText returns "active" or "inactive".
func (s ProgramStatus) StatusText() string {
	if s.IsActive {
		return "active"
	}
	return "inactive"
}

// Since renders how long the program has been in its current state.
func (s ProgramStatus) Since(now time.Time) string {
	d := now.Sub(s.StatusSince)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d h", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	}
}
