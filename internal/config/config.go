package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/taskpilot/internal/detector"
	"github.com/loykin/taskpilot/internal/logger"
	"github.com/loykin/taskpilot/internal/program"
)

var (
	ErrDuplicateProcess = errors.New("duplicate process name")
	ErrBlankProcess     = errors.New("program without process name")
)

const (
	DefaultFileName     = "taskpilot.toml"
	DefaultPollInterval = 5 * time.Second
	DefaultListen       = "127.0.0.1:8765"
	DefaultBasePath     = "/api"
	EnvPrefix           = "TASKPILOT"
)

// Config is the top-level TOML structure.
type Config struct {
	PollInterval time.Duration   `mapstructure:"poll_interval" toml:"poll_interval"`
	AutoStart    bool            `mapstructure:"auto_start" toml:"auto_start"`
	LockFile     string          `mapstructure:"lock_file" toml:"lock_file"`
	Server       ServerConfig    `mapstructure:"server" toml:"server"`
	Metrics      MetricsConfig   `mapstructure:"metrics" toml:"metrics"`
	Log          logger.Config   `mapstructure:"log" toml:"log"`
	Programs     []ProgramConfig `mapstructure:"programs" toml:"programs"`

	path string
}

type ServerConfig struct {
	Enabled  bool   `mapstructure:"enabled" toml:"enabled"`
	Listen   string `mapstructure:"listen" toml:"listen"`
	BasePath string `mapstructure:"base_path" toml:"base_path"`
}

// MetricsConfig enables Prometheus metrics. An empty Listen serves /metrics on the API server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Listen  string `mapstructure:"listen" toml:"listen"`
}

// ProgramConfig is one [[programs]] table.
type ProgramConfig struct {
	ProcessName  string `mapstructure:"process_name" toml:"process_name"`
	DisplayName  string `mapstructure:"display_name" toml:"display_name,omitempty"`
	Description  string `mapstructure:"description" toml:"description,omitempty"`
	StartCommand string `mapstructure:"start_command" toml:"start_command,omitempty"`
	AutoRestart  bool   `mapstructure:"auto_restart" toml:"auto_restart"`
	// Monitored defaults to true when absent.
	Monitored *bool `mapstructure:"monitored" toml:"monitored,omitempty"`
}

// DefaultPath returns taskpilot.toml under the user's config directory,
// or in the working directory when that is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(dir, "taskpilot", DefaultFileName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("auto_start", true)
	v.SetDefault("lock_file", "")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.base_path", DefaultBasePath)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("log.slog.level", logger.LevelInfo)
	v.SetDefault("log.slog.format", logger.FormatText)
	v.SetDefault("log.slog.color", false)
	v.SetDefault("log.slog.timestamps", true)
	v.SetDefault("log.slog.source", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.level", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in settings with no programs.
func Default() *Config {
	var c Config
	// defaults and env only; cannot fail on a fresh viper
	_ = newViper().Unmarshal(&c)
	return &c
}

// Load reads path. TASKPILOT_* environment variables override file values,
// e.g. TASKPILOT_POLL_INTERVAL=2s or TASKPILOT_SERVER_LISTEN=:9000.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	c.path = path
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return &c, nil
}

// LoadOrCreate loads path, writing the sample configuration first when it does not exist.
func LoadOrCreate(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return nil, err
		}
	}
	return Load(path)
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string { return c.path }

// Validate reports blank and duplicate process names.
func (c *Config) Validate() error {
	seen := make(map[string]int, len(c.Programs))
	var errs []error
	for i, p := range c.Programs {
		name := strings.TrimSpace(p.ProcessName)
		if name == "" {
			errs = append(errs, fmt.Errorf("programs[%d]: %w", i, ErrBlankProcess))
			continue
		}
		k := program.KeyOf(name)
		if j, dup := seen[k]; dup {
			errs = append(errs, fmt.Errorf("programs[%d] %q (first at programs[%d]): %w", i, name, j, ErrDuplicateProcess))
			continue
		}
		seen[k] = i
	}
	return errors.Join(errs...)
}

// ProgramList converts the program tables in file order.
func (c *Config) ProgramList() program.List {
	out := make(program.List, 0, len(c.Programs))
	for _, pc := range c.Programs {
		out = append(out, pc.toProgram())
	}
	return out
}

func (pc ProgramConfig) toProgram() *program.Program {
	p := program.New(detector.NormalizeName(pc.ProcessName), strings.TrimSpace(pc.DisplayName))
	p.Description = pc.Description
	p.StartCommand = strings.TrimSpace(pc.StartCommand)
	p.AutoRestart = pc.AutoRestart
	if pc.Monitored != nil {
		p.Monitored = *pc.Monitored
	}
	return p
}

// FromProgram is the inverse of the program conversion used by ProgramList.
func FromProgram(p *program.Program) ProgramConfig {
	monitored := p.Monitored
	pc := ProgramConfig{
		ProcessName:  p.ProcessName,
		Description:  p.Description,
		StartCommand: p.StartCommand,
		AutoRestart:  p.AutoRestart,
		Monitored:    &monitored,
	}
	if p.DisplayName != p.ProcessName {
		pc.DisplayName = p.DisplayName
	}
	return pc
}
