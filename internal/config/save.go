package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/loykin/taskpilot/internal/program"
)

const defaultTemplate = `# taskpilot configuration
#
# poll_interval   how often the process table is sampled
# auto_start      relaunch stopped programs that have auto_restart = true
#
# Each [[programs]] table describes one process:
#   process_name   image name without .exe, matched case-insensitively (required)
#   display_name   label shown in listings (defaults to process_name)
#   description    free text
#   start_command  command used to relaunch the program (optional)
#                  "start <cmd>"   runs through the shell start launcher
#                  "<exe> <args>"  runs through the shell without a window
#                  "<path>"        launches the file directly
#   auto_restart   relaunch when found stopped (needs start_command)
#   monitored      false keeps the entry in the file but out of monitoring

poll_interval = "5s"
auto_start = true

[server]
enabled = true
listen = "127.0.0.1:8765"
base_path = "/api"

[metrics]
enabled = false

[log.slog]
level = "info"
format = "text"
timestamps = true

[log.file]
# path = "taskpilot.log"

[[programs]]
process_name = "Code"
display_name = "Visual Studio Code"
description = "Code editor"

[[programs]]
process_name = "chrome"
display_name = "Google Chrome"
description = "Web browser"

[[programs]]
process_name = "msedge"
display_name = "Microsoft Edge"
description = "Web browser"

[[programs]]
process_name = "notepad"
display_name = "Notepad"
description = "Windows Notepad"

[[programs]]
process_name = "CalculatorApp"
display_name = "Calculator"
description = "Windows Calculator"
`

// WriteDefault writes the sample configuration to path, creating parent directories.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return writeFileAtomic(path, []byte(defaultTemplate))
}

// SavePrograms replaces the [[programs]] tables of path with programs, in order.
// Other settings in the file are kept; comments are not.
func SavePrograms(path string, programs program.List) error {
	doc := make(map[string]any)
	b, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := toml.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}

	tables := make([]ProgramConfig, 0, len(programs))
	for _, p := range programs {
		tables = append(tables, FromProgram(p))
	}
	doc["programs"] = tables

	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFileAtomic(path, out)
}

// AddProgram appends p to the file's program list. It fails with ErrDuplicateProcess
// when a program with the same process name exists.
func AddProgram(path string, p *program.Program) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	list := c.ProgramList()
	if list.ExistsByProcessName(p.ProcessName) {
		return fmt.Errorf("%w: %s", ErrDuplicateProcess, p.ProcessName)
	}
	return SavePrograms(path, append(list, p))
}

// RemoveProgram deletes the program named name. It reports whether one was removed.
func RemoveProgram(path, name string) (bool, error) {
	c, err := Load(path)
	if err != nil {
		return false, err
	}
	list, removed := c.ProgramList().Remove(name)
	if !removed {
		return false, nil
	}
	return true, SavePrograms(path, list)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".taskpilot-*.toml")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
