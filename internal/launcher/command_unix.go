//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// buildCommand maps a plan onto /bin/sh. Window titles have no meaning here.
// Children get their own session so they outlive the supervisor.
func buildCommand(plan Plan, _ string) *exec.Cmd {
	var cmd *exec.Cmd
	switch plan.Strategy {
	case StrategyShellStart, StrategyShellArgs:
		// #nosec G204
		cmd = exec.Command("/bin/sh", "-c", plan.Argument)
	default:
		// #nosec G204
		cmd = exec.Command(plan.Argument)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

// fallbackStart has no alternative launch path outside Windows.
func fallbackStart(Plan, error) (bool, error) { return false, nil }
