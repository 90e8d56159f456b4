//go:build windows

package launcher

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

// buildCommand maps a plan onto cmd.exe. CmdLine is set verbatim because
// cmd.exe does not follow the argv quoting rules exec would apply.
func buildCommand(plan Plan, title string) *exec.Cmd {
	title = consoleTitle(title)
	switch plan.Strategy {
	case StrategyShellStart:
		// #nosec G204
		cmd := exec.Command("cmd.exe")
		cmd.SysProcAttr = &syscall.SysProcAttr{
			CmdLine:       fmt.Sprintf(`cmd.exe /c start "%s" %s`, title, plan.Argument),
			CreationFlags: windows.CREATE_NEW_CONSOLE,
		}
		return cmd
	case StrategyShellArgs:
		// #nosec G204
		cmd := exec.Command("cmd.exe")
		cmd.SysProcAttr = &syscall.SysProcAttr{
			CmdLine:       fmt.Sprintf(`cmd.exe /c title %s & %s`, title, plan.Argument),
			CreationFlags: windows.CREATE_NO_WINDOW,
			HideWindow:    true,
		}
		return cmd
	default:
		// #nosec G204
		cmd := exec.Command(plan.Argument)
		cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
		return cmd
	}
}

// fallbackStart opens direct targets that are not executables (documents, URLs,
// shortcuts) through their file association. ShellExecute reports no PID.
func fallbackStart(plan Plan, startErr error) (bool, error) {
	if plan.Strategy != StrategyDirect {
		return false, nil
	}
	verb, err := windows.UTF16PtrFromString("open")
	if err != nil {
		return true, err
	}
	file, err := windows.UTF16PtrFromString(plan.Argument)
	if err != nil {
		return true, err
	}
	if err := windows.ShellExecute(0, verb, file, nil, nil, windows.SW_SHOWNORMAL); err != nil {
		return true, fmt.Errorf("%v; shell execute: %w", startErr, err)
	}
	return true, nil
}

// consoleTitle strips characters cmd.exe would treat as operators.
func consoleTitle(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '&', '|', '<', '>', '^', '"', '%':
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "" {
		return "taskpilot"
	}
	return s
}
