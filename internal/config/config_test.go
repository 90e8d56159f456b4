package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/taskpilot/internal/program"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskpilot.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMinimalUsesDefaults(t *testing.T) {
	path := writeFile(t, `
[[programs]]
process_name = "notepad"
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, c.Path())
	assert.Equal(t, DefaultPollInterval, c.PollInterval)
	assert.True(t, c.AutoStart)
	assert.True(t, c.Server.Enabled)
	assert.Equal(t, DefaultListen, c.Server.Listen)
	assert.Equal(t, DefaultBasePath, c.Server.BasePath)
	assert.False(t, c.Metrics.Enabled)

	list := c.ProgramList()
	require.Len(t, list, 1)
	p := list[0]
	assert.Equal(t, "notepad", p.ProcessName)
	assert.Equal(t, "notepad", p.DisplayName)
	assert.True(t, p.Monitored, "monitored defaults to true")
	assert.False(t, p.AutoRestart)
}

func TestLoadFull(t *testing.T) {
	path := writeFile(t, `
poll_interval = "2s"
auto_start = false

[server]
listen = ":9999"

[metrics]
enabled = true

[log.slog]
level = "debug"

[[programs]]
process_name = "Code"
display_name = "VS Code"
description = "editor"
start_command = "  start code  "
auto_restart = true

[[programs]]
process_name = "chrome"
monitored = false
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.PollInterval)
	assert.False(t, c.AutoStart)
	assert.Equal(t, ":9999", c.Server.Listen)
	assert.True(t, c.Metrics.Enabled)
	assert.Equal(t, "debug", c.Log.Slog.Level)

	list := c.ProgramList()
	require.Len(t, list, 2)
	assert.Equal(t, "VS Code", list[0].DisplayName)
	assert.Equal(t, "start code", list[0].StartCommand)
	assert.True(t, list[0].AutoRestart)
	assert.False(t, list[1].Monitored)
	assert.Len(t, list.Monitored(), 1)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, `poll_interval = "10s"`)
	t.Setenv("TASKPILOT_POLL_INTERVAL", "1s")
	t.Setenv("TASKPILOT_SERVER_LISTEN", "127.0.0.1:1")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.PollInterval)
	assert.Equal(t, "127.0.0.1:1", c.Server.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := &Config{Programs: []ProgramConfig{
		{ProcessName: "code"},
		{ProcessName: " "},
		{ProcessName: "CODE"},
		{ProcessName: "chrome"},
	}}
	err := c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateProcess)
	assert.ErrorIs(t, err, ErrBlankProcess)

	ok := &Config{Programs: []ProgramConfig{{ProcessName: "a"}, {ProcessName: "b"}}}
	assert.NoError(t, ok.Validate())

	exe := &Config{Programs: []ProgramConfig{{ProcessName: "notepad"}, {ProcessName: "Notepad.exe"}}}
	assert.ErrorIs(t, exe.Validate(), ErrDuplicateProcess)
}

func TestProgramListDropsExeSuffix(t *testing.T) {
	c := &Config{Programs: []ProgramConfig{{ProcessName: " Notepad.EXE ", DisplayName: "Notepad"}}}
	list := c.ProgramList()
	require.Len(t, list, 1)
	assert.Equal(t, "Notepad", list[0].ProcessName)
	assert.Equal(t, "notepad", list[0].Key())
}

func TestWriteDefaultAndLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "taskpilot.toml")
	c, err := LoadOrCreate(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	list := c.ProgramList()
	require.Len(t, list, 5)
	assert.Equal(t, "Code", list[0].ProcessName)
	assert.Equal(t, "Visual Studio Code", list[0].DisplayName)
	assert.NotNil(t, list.FindByProcessName("calculatorapp"))

	// existing file is not overwritten
	require.NoError(t, os.WriteFile(path, []byte("[[programs]]\nprocess_name = \"x\"\n"), 0o600))
	c, err = LoadOrCreate(path)
	require.NoError(t, err)
	assert.Len(t, c.Programs, 1)
}

func TestSaveProgramsKeepsSettingsAndOrder(t *testing.T) {
	path := writeFile(t, `
poll_interval = "3s"
auto_start = false

[server]
listen = ":7000"

[[programs]]
process_name = "old"
`)
	b := program.New("beta", "Beta")
	b.StartCommand = "beta.exe --tray"
	b.AutoRestart = true
	a := program.New("alpha", "")
	a.Monitored = false

	require.NoError(t, SavePrograms(path, program.List{b, a}))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, c.PollInterval)
	assert.False(t, c.AutoStart)
	assert.Equal(t, ":7000", c.Server.Listen)

	list := c.ProgramList()
	require.Len(t, list, 2)
	assert.Equal(t, "beta", list[0].ProcessName)
	assert.Equal(t, "Beta", list[0].DisplayName)
	assert.Equal(t, "beta.exe --tray", list[0].StartCommand)
	assert.True(t, list[0].AutoRestart)
	assert.Equal(t, "alpha", list[1].ProcessName)
	assert.Equal(t, "alpha", list[1].DisplayName)
	assert.False(t, list[1].Monitored)
}

func TestAddAndRemoveProgram(t *testing.T) {
	path := writeFile(t, "[[programs]]\nprocess_name = \"code\"\n")

	require.NoError(t, AddProgram(path, program.New("chrome", "Chrome")))
	err := AddProgram(path, program.New("CODE", ""))
	assert.ErrorIs(t, err, ErrDuplicateProcess)

	removed, err := RemoveProgram(path, "Code")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = RemoveProgram(path, "code")
	require.NoError(t, err)
	assert.False(t, removed)

	c, err := Load(path)
	require.NoError(t, err)
	require.Len(t, c.Programs, 1)
	assert.Equal(t, "chrome", c.Programs[0].ProcessName)
}

func TestDefaultConfig(t *testing.T) {
	c := Default()
	assert.Equal(t, DefaultPollInterval, c.PollInterval)
	assert.True(t, c.AutoStart)
	assert.Empty(t, c.Programs)
}
