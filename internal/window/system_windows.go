//go:build windows

package window

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	swMinimize = 6
	swRestore  = 9
	gwOwner    = 4
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procEnumWindows              = user32.NewProc("EnumWindows")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW     = user32.NewProc("GetWindowTextLengthW")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procIsWindow                 = user32.NewProc("IsWindow")
	procGetWindow                = user32.NewProc("GetWindow")
	procShowWindow               = user32.NewProc("ShowWindow")
	procSetForegroundWindow      = user32.NewProc("SetForegroundWindow")
)

// EnumWindows callbacks are a scarce resource, so one callback is shared
// and the collected handles are guarded by enumMu.
var (
	enumMu       sync.Mutex
	enumHandles  []uintptr
	enumCallback = windows.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		enumHandles = append(enumHandles, hwnd)
		return 1
	})
)

type user32System struct{}

// NewSystem returns the user32-backed window System.
func NewSystem() System { return user32System{} }

func enumTopLevel() ([]uintptr, error) {
	enumMu.Lock()
	defer enumMu.Unlock()
	enumHandles = enumHandles[:0]
	r, _, err := procEnumWindows.Call(enumCallback, 0)
	if r == 0 {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	return append([]uintptr(nil), enumHandles...), nil
}

func windowPID(h uintptr) int {
	var pid uint32
	_, _, _ = procGetWindowThreadProcessID.Call(h, uintptr(unsafe.Pointer(&pid)))
	return int(pid)
}

func windowTitle(h uintptr) string {
	n, _, _ := procGetWindowTextLengthW.Call(h)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	r, _, _ := procGetWindowTextW.Call(h, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:r])
}

func isVisible(h uintptr) bool {
	r, _, _ := procIsWindowVisible.Call(h)
	return r != 0
}

func isWindow(h uintptr) bool {
	r, _, _ := procIsWindow.Call(h)
	return r != 0
}

func hasOwner(h uintptr) bool {
	r, _, _ := procGetWindow.Call(h, gwOwner)
	return r != 0
}

// MainWindow picks the first visible, unowned top-level window of pid.
func (user32System) MainWindow(pid int) (Handle, bool) {
	hs, err := enumTopLevel()
	if err != nil {
		return 0, false
	}
	for _, h := range hs {
		if windowPID(h) == pid && isVisible(h) && !hasOwner(h) {
			return Handle(h), true
		}
	}
	return 0, false
}

func (user32System) TopLevelWindows() ([]Window, error) {
	hs, err := enumTopLevel()
	if err != nil {
		return nil, err
	}
	out := make([]Window, 0, len(hs))
	for _, h := range hs {
		out = append(out, Window{
			Handle:  Handle(h),
			Title:   windowTitle(h),
			PID:     windowPID(h),
			Visible: isVisible(h),
		})
	}
	return out, nil
}

func show(h Handle, cmd uintptr) error {
	if !isWindow(uintptr(h)) {
		return fmt.Errorf("handle %#x is not a window", uintptr(h))
	}
	// ShowWindow returns the previous visibility, not success.
	_, _, _ = procShowWindow.Call(uintptr(h), cmd)
	return nil
}

func (user32System) Minimize(h Handle) error { return show(h, swMinimize) }

func (user32System) Restore(h Handle) error { return show(h, swRestore) }

func (user32System) Foreground(h Handle) error {
	r, _, err := procSetForegroundWindow.Call(uintptr(h))
	if r == 0 {
		return fmt.Errorf("SetForegroundWindow: %w", err)
	}
	return nil
}
