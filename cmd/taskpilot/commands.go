package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/loykin/taskpilot/internal/config"
	"github.com/loykin/taskpilot/internal/detector"
	"github.com/loykin/taskpilot/internal/program"
	"github.com/loykin/taskpilot/pkg/client"
)

// command carries what every subcommand needs: flags, output and the local process table.
type command struct {
	global   *GlobalFlags
	out      io.Writer
	provider detector.Provider
}

func (c command) configPath() string {
	if c.global.ConfigPath != "" {
		return c.global.ConfigPath
	}
	return config.DefaultPath()
}

// apiURL prefers --api-url, then the server section of the config file, then the default.
func (c command) apiURL() string {
	if c.global.APIUrl != "" {
		return c.global.APIUrl
	}
	cfg, err := config.Load(c.configPath())
	if err != nil {
		return client.DefaultBaseURL
	}
	return daemonURL(cfg.Server)
}

// daemonURL turns a listen address into a URL a local client can dial.
func daemonURL(s config.ServerConfig) string {
	host, port, err := net.SplitHostPort(s.Listen)
	if err != nil {
		return client.DefaultBaseURL
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	base := strings.TrimRight(s.BasePath, "/")
	if base != "" && !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return "http://" + net.JoinHostPort(host, port) + base
}

func (c command) client() *client.Client {
	return client.New(client.Config{BaseURL: c.apiURL(), Timeout: c.global.APITimeout})
}

// daemonErr adds a hint when the daemon is not running.
func daemonErr(err error) error {
	if err != nil && client.StatusCode(err) == 0 {
		return fmt.Errorf("%w (is `taskpilot run` running?)", err)
	}
	return err
}

func (c command) Status(ctx context.Context, f StatusFlags) error {
	cl := c.client()
	var sts []client.ProgramStatus
	if f.Name != "" {
		st, err := cl.Status(ctx, f.Name)
		if err != nil {
			return daemonErr(err)
		}
		sts = []client.ProgramStatus{st}
	} else {
		all, err := cl.Statuses(ctx)
		if err != nil {
			return daemonErr(err)
		}
		sts = all
	}
	if f.JSON {
		return c.printJSON(sts)
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tPROCESS\tSTATUS\tSINCE\tPID\tAUTO-RESTART")
	for _, st := range sts {
		pid := "-"
		if st.PID > 0 {
			pid = strconv.Itoa(st.PID)
		}
		auto := "no"
		if st.AutoRestart {
			auto = "yes"
			if st.CoolingDown {
				auto = "cooldown"
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", st.DisplayName, st.ProcessName, st.Status, st.SinceText, pid, auto)
	}
	return w.Flush()
}

func (c command) Start(ctx context.Context, name string) error {
	res, err := c.client().Start(ctx, name)
	if err != nil {
		return daemonErr(err)
	}
	if res.PID > 0 {
		_, _ = fmt.Fprintf(c.out, "started %s (pid %d)\n", name, res.PID)
	} else {
		_, _ = fmt.Fprintf(c.out, "started %s\n", name)
	}
	return nil
}

func (c command) Stop(ctx context.Context, name string) error {
	n, err := c.client().Stop(ctx, name)
	if err != nil {
		return daemonErr(err)
	}
	_, _ = fmt.Fprintf(c.out, "stopped %s: %d process(es) killed\n", name, n)
	return nil
}

func (c command) Minimize(ctx context.Context, name string) error {
	n, err := c.client().Minimize(ctx, name)
	return c.reportWindows(name, n, err)
}

func (c command) Restore(ctx context.Context, name string) error {
	n, err := c.client().Restore(ctx, name)
	return c.reportWindows(name, n, err)
}

func (c command) reportWindows(name string, n int, err error) error {
	if err != nil {
		return daemonErr(err)
	}
	if n == 0 {
		_, _ = fmt.Fprintf(c.out, "no window found for %s\n", name)
		return nil
	}
	_, _ = fmt.Fprintf(c.out, "%s: %d window(s)\n", name, n)
	return nil
}

func (c command) MinimizeAll(ctx context.Context) error {
	n, err := c.client().MinimizeAll(ctx)
	if err != nil {
		return daemonErr(err)
	}
	_, _ = fmt.Fprintf(c.out, "minimized %d window(s)\n", n)
	return nil
}

func (c command) RestoreAll(ctx context.Context) error {
	n, err := c.client().RestoreAll(ctx)
	if err != nil {
		return daemonErr(err)
	}
	_, _ = fmt.Fprintf(c.out, "restored %d window(s)\n", n)
	return nil
}

// AutoStart prints the flag when arg is empty, otherwise sets it.
func (c command) AutoStart(ctx context.Context, arg string) error {
	cl := c.client()
	var (
		on  bool
		err error
	)
	if arg == "" {
		on, err = cl.AutoStart(ctx)
	} else {
		var want bool
		want, err = parseSwitch(arg)
		if err != nil {
			return err
		}
		on, err = cl.SetAutoStart(ctx, want)
	}
	if err != nil {
		return daemonErr(err)
	}
	state := "off"
	if on {
		state = "on"
	}
	_, _ = fmt.Fprintf(c.out, "auto-start %s\n", state)
	return nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "no", "0", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("invalid value %q: want on or off", s)
}

func (c command) Reload(ctx context.Context) error {
	if err := c.client().Reload(ctx); err != nil {
		return daemonErr(err)
	}
	_, _ = fmt.Fprintln(c.out, "configuration reloaded")
	return nil
}

// Processes lists processes running on this machine. It does not need the daemon.
func (c command) Processes(ctx context.Context, f ProcessesFlags) error {
	infos, err := c.provider.Running(ctx)
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}
	infos, err = detector.Filter(infos, f.Filter)
	if err != nil {
		return fmt.Errorf("invalid filter %q: %w", f.Filter, err)
	}
	if f.JSON {
		return c.printJSON(infos)
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROCESS\tNAME")
	for _, in := range infos {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", in.ProcessName, in.DisplayName)
	}
	return w.Flush()
}

// ConfigInit writes the sample configuration. An existing file is kept unless force is set.
func (c command) ConfigInit(force bool) error {
	path := c.configPath()
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "wrote %s\n", path)
	return nil
}

func (c command) ConfigList() error {
	cfg, err := config.Load(c.configPath())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROCESS\tNAME\tMONITORED\tAUTO-RESTART\tCOMMAND")
	for _, p := range cfg.ProgramList() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ProcessName, p.DisplayName, yesNo(p.Monitored), yesNo(p.AutoRestart), p.StartCommand)
	}
	return w.Flush()
}

func (c command) ConfigAdd(f ConfigAddFlags) error {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return config.ErrBlankProcess
	}
	p := program.New(detector.NormalizeName(name), strings.TrimSpace(f.DisplayName))
	p.Description = f.Description
	p.StartCommand = strings.TrimSpace(f.StartCommand)
	p.AutoRestart = f.AutoRestart
	p.Monitored = !f.Unmonitored
	if err := config.AddProgram(c.configPath(), p); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "added %s (run `taskpilot reload` to apply)\n", p.ProcessName)
	return nil
}

func (c command) ConfigRemove(name string) error {
	removed, err := config.RemoveProgram(c.configPath(), name)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no program named %q in %s", name, c.configPath())
	}
	_, _ = fmt.Fprintf(c.out, "removed %s (run `taskpilot reload` to apply)\n", name)
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (c command) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
