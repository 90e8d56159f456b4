//go:build !windows

package window

type headless struct{}

// NewSystem returns a System that never finds a window.
func NewSystem() System { return headless{} }

func (headless) MainWindow(int) (Handle, bool)      { return 0, false }
func (headless) TopLevelWindows() ([]Window, error) { return nil, nil }
func (headless) Minimize(Handle) error              { return ErrUnsupported }
func (headless) Restore(Handle) error               { return ErrUnsupported }
func (headless) Foreground(Handle) error            { return ErrUnsupported }
