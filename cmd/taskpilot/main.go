package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/taskpilot/internal/detector"
)

func main() {
	root := buildRoot(command{global: &GlobalFlags{}, out: os.Stdout, provider: detector.NewSystem()})
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands around c.
func buildRoot(c command) *cobra.Command {
	root := createRootCommand(c.global)
	root.AddCommand(
		createRunCommand(c),
		createStatusCommand(c),
		createStartCommand(c),
		createStopCommand(c),
		createMinimizeCommand(c),
		createRestoreCommand(c),
		createMinimizeAllCommand(c),
		createRestoreAllCommand(c),
		createAutoStartCommand(c),
		createReloadCommand(c),
		createProcessesCommand(c),
		createConfigCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskpilot",
		Short: "Keep desktop programs running",
		Long: `taskpilot watches a list of programs by process name, reports whether each
one is running, relaunches stopped ones that allow it, and can minimize or
restore their windows.

Examples:
  taskpilot run                      # start the monitor (creates a sample config)
  taskpilot status
  taskpilot start notepad
  taskpilot autostart off
  taskpilot processes --filter "chr*"`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to taskpilot.toml (default: user config dir)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon API URL (default: from config)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return root
}

func createRunCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitor in the foreground",
		Long: `Run the monitor until interrupted. The configuration file is created with
sample programs when missing. Only one instance may run per configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, c.configPath(), cmd.ErrOrStderr(), daemonDeps{})
		},
	}
}

func createStatusCommand(c command) *cobra.Command {
	flags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status [NAME]",
		Short: "Show program status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.Name = args[0]
			}
			return c.Status(cmd.Context(), *flags)
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print JSON")
	return cmd
}

// nameCommand builds a command taking exactly one program name.
func nameCommand(use, short string, run func(context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}
}

func createStartCommand(c command) *cobra.Command {
	return nameCommand("start", "Launch a program now (ignores auto-start, honors cooldown)", c.Start)
}

func createStopCommand(c command) *cobra.Command {
	return nameCommand("stop", "Kill every process of a program", c.Stop)
}

func createMinimizeCommand(c command) *cobra.Command {
	return nameCommand("minimize", "Minimize a program's windows", c.Minimize)
}

func createRestoreCommand(c command) *cobra.Command {
	return nameCommand("restore", "Restore a program's windows and bring them to the front", c.Restore)
}

func createMinimizeAllCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "minimize-all",
		Short: "Minimize the windows of every running program",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return c.MinimizeAll(cmd.Context()) },
	}
}

func createRestoreAllCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "restore-all",
		Short: "Restore the windows of every running program",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return c.RestoreAll(cmd.Context()) },
	}
}

func createAutoStartCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:       "autostart [on|off]",
		Short:     "Show or switch automatic restarts (not persisted)",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			return c.AutoStart(cmd.Context(), arg)
		},
	}
}

func createReloadCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make the running monitor re-read its configuration",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return c.Reload(cmd.Context()) },
	}
}

func createProcessesCommand(c command) *cobra.Command {
	flags := &ProcessesFlags{}
	cmd := &cobra.Command{
		Use:   "processes",
		Short: "List processes running on this machine",
		Long: `List running processes with their display names, one line per process name.
--filter takes a glob (chr*, *edge*); a plain word matches as a substring.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Processes(cmd.Context(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Filter, "filter", "", "glob on process or display name")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print JSON")
	return cmd
}

func createConfigCommand(c command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Edit the program list in the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return c.ConfigInit(force) },
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured programs",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return c.ConfigList() },
	}

	addFlags := &ConfigAddFlags{}
	addCmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a program",
		Long: `Add a program by process name (".exe" is dropped).

Examples:
  taskpilot config add notepad --display-name Notepad --command "notepad.exe" --auto-restart
  taskpilot config add Code --command "start code"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := *addFlags
			f.Name = args[0]
			return c.ConfigAdd(f)
		},
	}
	addCmd.Flags().StringVar(&addFlags.DisplayName, "display-name", "", "label shown in listings")
	addCmd.Flags().StringVar(&addFlags.Description, "description", "", "free text")
	addCmd.Flags().StringVar(&addFlags.StartCommand, "command", "", "command used to relaunch the program")
	addCmd.Flags().BoolVar(&addFlags.AutoRestart, "auto-restart", false, "relaunch when found stopped")
	addCmd.Flags().BoolVar(&addFlags.Unmonitored, "unmonitored", false, "keep in the file but do not monitor")

	removeCmd := &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Remove a program",
		Args:    cobra.ExactArgs(1),
		RunE:    func(cmd *cobra.Command, args []string) error { return c.ConfigRemove(args[0]) },
	}

	cmd.AddCommand(initCmd, listCmd, addCmd, removeCmd)
	return cmd
}
