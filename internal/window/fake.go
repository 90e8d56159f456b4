package window

import (
	"errors"
	"sync"
)

// Fake is an in-memory System for tests.
type Fake struct {
	mu         sync.Mutex
	main       map[int]Handle
	windows    []Window
	minimized  map[Handle]bool
	foreground Handle
	failOps    bool
	denyFocus  bool
}

func NewFake() *Fake {
	return &Fake{main: make(map[int]Handle), minimized: make(map[Handle]bool)}
}

// AddWindow registers a top-level window; main makes it pid's main window.
func (f *Fake) AddWindow(w Window, main bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, w)
	if main {
		f.main[w.PID] = w.Handle
	}
}

// FailOperations makes Minimize and Restore return errors.
func (f *Fake) FailOperations(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps = v
}

// DenyFocus makes Foreground return an error.
func (f *Fake) DenyFocus(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denyFocus = v
}

func (f *Fake) IsMinimized(h Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.minimized[h]
}

func (f *Fake) ForegroundWindow() Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.foreground
}

func (f *Fake) MainWindow(pid int) (Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.main[pid]
	return h, ok
}

func (f *Fake) TopLevelWindows() ([]Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Window(nil), f.windows...), nil
}

func (f *Fake) Minimize(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps {
		return errors.New("minimize refused")
	}
	f.minimized[h] = true
	return nil
}

func (f *Fake) Restore(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps {
		return errors.New("restore refused")
	}
	f.minimized[h] = false
	return nil
}

func (f *Fake) Foreground(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyFocus {
		return errors.New("foreground lock")
	}
	f.foreground = h
	return nil
}
