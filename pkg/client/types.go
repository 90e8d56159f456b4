package client

import (
	"fmt"
	"time"
)

// ProgramStatus is the API view of one monitored program.
type ProgramStatus struct {
	ProcessName  string    `json:"process_name"`
	DisplayName  string    `json:"display_name"`
	Description  string    `json:"description,omitempty"`
	Active       bool      `json:"active"`
	Status       string    `json:"status"`
	Since        time.Time `json:"since"`
	SinceText    string    `json:"since_text"`
	PID          int       `json:"pid"`
	StartCommand string    `json:"start_command,omitempty"`
	AutoRestart  bool      `json:"auto_restart"`
	CoolingDown  bool      `json:"cooling_down"`
}

// StartResult reports what a start request did.
type StartResult struct {
	OK       bool   `json:"ok"`
	Decision string `json:"decision"`
	PID      int    `json:"pid"`
}

// CountResult carries the number of processes or windows an operation affected.
type CountResult struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

// ProcessInfo is one entry of the running-process list.
type ProcessInfo struct {
	ProcessName string `json:"process_name"`
	DisplayName string `json:"display_name"`
}

// Usage is the aggregated resource usage of one program.
type Usage struct {
	Name       string    `json:"name"`
	PIDs       []int     `json:"pids"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

type autoStart struct {
	Enabled *bool `json:"enabled"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}
