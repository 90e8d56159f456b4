package window

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/loykin/taskpilot/internal/metrics"
)

// ErrUnsupported is returned by System implementations on platforms without window control.
var ErrUnsupported = errors.New("window control not supported on this platform")

// Handle is an opaque OS window handle. Zero means none.
type Handle uintptr

// Window is one top-level window.
type Window struct {
	Handle  Handle `json:"handle"`
	Title   string `json:"title"`
	PID     int    `json:"pid"`
	Visible bool   `json:"visible"`
}

// System is the OS window API used by Controller.
type System interface {
	// MainWindow returns the main window owned by pid, if the OS reports one.
	MainWindow(pid int) (Handle, bool)
	// TopLevelWindows lists top-level windows in z-order.
	TopLevelWindows() ([]Window, error)
	Minimize(h Handle) error
	Restore(h Handle) error
	Foreground(h Handle) error
}

// Target identifies the process whose window is wanted.
type Target struct {
	PID         int
	ProcessName string
}

// Controller resolves process windows and minimizes or restores them.
// Every operation is best-effort and reports only whether it had an effect.
type Controller struct {
	sys    System
	logger *slog.Logger
}

func NewController(sys System, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{sys: sys, logger: logger}
}

// Resolve finds t's window: the main window reported for t.PID first, then the first
// top-level window whose title contains t.ProcessName (case-sensitive).
func (c *Controller) Resolve(t Target) (Handle, bool) {
	if t.PID > 0 {
		if h, ok := c.sys.MainWindow(t.PID); ok && h != 0 {
			c.logger.Debug("window resolved by pid", "process", t.ProcessName, "pid", t.PID, "handle", uintptr(h))
			return h, true
		}
	}
	if t.ProcessName == "" {
		return 0, false
	}
	wins, err := c.sys.TopLevelWindows()
	if err != nil {
		c.logger.Debug("enumerate windows failed", "error", err)
		return 0, false
	}
	for _, w := range wins {
		if w.Title != "" && strings.Contains(w.Title, t.ProcessName) {
			c.logger.Debug("window resolved by title", "process", t.ProcessName, "title", w.Title, "handle", uintptr(w.Handle))
			return w.Handle, true
		}
	}
	if c.logger.Enabled(context.Background(), slog.LevelDebug) {
		c.logger.Debug("no window found", "process", t.ProcessName, "pid", t.PID, "windows", len(wins), "sample", sampleTitles(wins, 10))
	}
	return 0, false
}

// Minimize minimizes t's window.
func (c *Controller) Minimize(t Target) bool {
	h, ok := c.Resolve(t)
	if !ok {
		metrics.IncWindowOp("minimize", false)
		return false
	}
	if err := c.sys.Minimize(h); err != nil {
		c.logger.Debug("minimize failed", "process", t.ProcessName, "error", err)
		metrics.IncWindowOp("minimize", false)
		return false
	}
	metrics.IncWindowOp("minimize", true)
	return true
}

// RestoreAndFocus restores t's window and brings it to the foreground.
// A refused foreground request does not undo a successful restore.
func (c *Controller) RestoreAndFocus(t Target) bool {
	h, ok := c.Resolve(t)
	if !ok {
		metrics.IncWindowOp("restore", false)
		return false
	}
	if err := c.sys.Restore(h); err != nil {
		c.logger.Debug("restore failed", "process", t.ProcessName, "error", err)
		metrics.IncWindowOp("restore", false)
		return false
	}
	if err := c.sys.Foreground(h); err != nil {
		c.logger.Debug("set foreground refused", "process", t.ProcessName, "error", err)
	}
	metrics.IncWindowOp("restore", true)
	return true
}

func sampleTitles(wins []Window, n int) []string {
	out := make([]string, 0, n)
	for _, w := range wins {
		if len(out) == n {
			break
		}
		if strings.TrimSpace(w.Title) != "" {
			out = append(out, w.Title)
		}
	}
	return out
}
