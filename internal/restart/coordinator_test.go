package restart

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/taskpilot/internal/launcher"
	"github.com/loykin/taskpilot/internal/monitor"
	"github.com/loykin/taskpilot/internal/program"
)

type fakeLauncher struct {
	mu    sync.Mutex
	calls []string
	err   error
	pid   int
}

func (f *fakeLauncher) Launch(p *program.Program) (launcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p.ProcessName)
	if f.err != nil {
		return launcher.Result{}, f.err
	}
	f.pid++
	p.SetLastStartedPID(f.pid)
	return launcher.Result{PID: f.pid, Plan: launcher.Classify(p.StartCommand)}, nil
}

func (f *fakeLauncher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// manualTimers queues cooldown expiries until fire is called.
type manualTimers struct {
	mu      sync.Mutex
	pending []func()
	delays  []time.Duration
}

func (m *manualTimers) after(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, f)
	m.delays = append(m.delays, d)
}

func (m *manualTimers) fire() {
	m.mu.Lock()
	fs := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, f := range fs {
		f()
	}
}

func restartable(name string) *program.Program {
	p := program.New(name, "")
	p.StartCommand = name + ".exe"
	p.AutoRestart = true
	return p
}

var stopped = monitor.ProgramStatus{IsActive: false}

func TestTryRestartOncePerCooldown(t *testing.T) {
	fl := &fakeLauncher{}
	timers := &manualTimers{}
	c := New(fl, WithScheduler(timers.after))
	p := restartable("notepad")

	out := c.TryRestart(p, stopped)
	require.Equal(t, Launched, out.Decision)
	assert.True(t, out.Triggered())
	assert.Equal(t, 1, out.Result.PID)
	assert.Equal(t, 1, p.LastStartedPID())
	assert.True(t, c.InCooldown("NOTEPAD"))
	assert.Equal(t, []time.Duration{Cooldown}, timers.delays)

	// event handler and post-poll scan both fire within the window
	for i := 0; i < 3; i++ {
		out = c.TryRestart(p, stopped)
		assert.Equal(t, CoolingDown, out.Decision)
	}
	assert.Equal(t, 1, fl.count())

	timers.fire()
	assert.False(t, c.InCooldown("notepad"))
	out = c.TryRestart(p, stopped)
	assert.Equal(t, Launched, out.Decision)
	assert.Equal(t, 2, fl.count())
}

func TestTryRestartConcurrentTriggersLaunchOnce(t *testing.T) {
	fl := &fakeLauncher{}
	timers := &manualTimers{}
	c := New(fl, WithScheduler(timers.after))
	p := restartable("code")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.TryRestart(p, stopped)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fl.count())
}

func TestTryRestartIneligible(t *testing.T) {
	fl := &fakeLauncher{}
	c := New(fl, WithScheduler((&manualTimers{}).after))

	noAuto := restartable("a")
	noAuto.AutoRestart = false
	assert.Equal(t, NoAutoRestart, c.TryRestart(noAuto, stopped).Decision)

	noCmd := restartable("b")
	noCmd.StartCommand = "   "
	assert.Equal(t, NoCommand, c.TryRestart(noCmd, stopped).Decision)

	running := restartable("c")
	assert.Equal(t, AlreadyActive, c.TryRestart(running, monitor.ProgramStatus{IsActive: true}).Decision)

	c.SetEnabled(false)
	assert.False(t, c.Enabled())
	assert.Equal(t, Disabled, c.TryRestart(restartable("d"), stopped).Decision)

	assert.Zero(t, fl.count())
	assert.False(t, c.InCooldown("a"))
	assert.False(t, c.InCooldown("b"))
}

func TestFailedLaunchKeepsCooldown(t *testing.T) {
	boom := errors.New("file not found")
	fl := &fakeLauncher{err: boom}
	timers := &manualTimers{}
	c := New(fl, WithScheduler(timers.after))
	p := restartable("broken")

	out := c.TryRestart(p, stopped)
	assert.Equal(t, Failed, out.Decision)
	assert.True(t, out.Triggered())
	assert.ErrorIs(t, out.Err, boom)
	assert.True(t, c.InCooldown("broken"))

	// no early retry
	assert.Equal(t, CoolingDown, c.TryRestart(p, stopped).Decision)
	assert.Equal(t, 1, fl.count())

	timers.fire()
	assert.Equal(t, Failed, c.TryRestart(p, stopped).Decision)
	assert.Equal(t, 2, fl.count())
}

func TestStartNowIgnoresAutoRestartFlags(t *testing.T) {
	fl := &fakeLauncher{}
	timers := &manualTimers{}
	c := New(fl, WithScheduler(timers.after))
	c.SetEnabled(false)

	p := restartable("editor")
	p.AutoRestart = false
	assert.Equal(t, Launched, c.StartNow(p).Decision)
	assert.Equal(t, CoolingDown, c.StartNow(p).Decision)
	assert.True(t, c.InCooldown("editor"))
	assert.Equal(t, 1, fl.count())

	noCmd := program.New("bare", "")
	assert.Equal(t, NoCommand, c.StartNow(noCmd).Decision)
}

func TestCooldownExpiresWithRealTimer(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the real cooldown")
	}
	fl := &fakeLauncher{}
	c := New(fl)
	p := restartable("slow")

	require.Equal(t, Launched, c.TryRestart(p, stopped).Decision)
	assert.True(t, c.InCooldown("slow"))
	require.Eventually(t, func() bool { return !c.InCooldown("slow") }, Cooldown+2*time.Second, 50*time.Millisecond)
	assert.Equal(t, Launched, c.TryRestart(p, stopped).Decision)
}
