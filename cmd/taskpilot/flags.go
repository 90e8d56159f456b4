package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

// ProcessesFlags holds flags for the processes command.
type ProcessesFlags struct {
	Filter string
	JSON   bool
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	Name string
	JSON bool
}

// ConfigAddFlags holds flags for config add.
type ConfigAddFlags struct {
	Name         string
	DisplayName  string
	Description  string
	StartCommand string
	AutoRestart  bool
	Unmonitored  bool
}
