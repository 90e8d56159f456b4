package launcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/taskpilot/internal/detector"
	"github.com/loykin/taskpilot/internal/program"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		in   string
		want Plan
	}{
		{"start notepad.exe", Plan{StrategyShellStart, "notepad.exe"}},
		{"  START   chrome --new-window  ", Plan{StrategyShellStart, "chrome --new-window"}},
		{"python script.py", Plan{StrategyShellArgs, "python script.py"}},
		{"startup.exe", Plan{StrategyDirect, "startup.exe"}},
		{"notepad", Plan{StrategyDirect, "notepad"}},
		{`C:\Tools\app.exe`, Plan{StrategyDirect, `C:\Tools\app.exe`}},
		{"   ", Plan{StrategyDirect, ""}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.in), c.in)
	}
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "shell-start", StrategyShellStart.String())
	assert.Equal(t, "shell-args", StrategyShellArgs.String())
	assert.Equal(t, "direct", StrategyDirect.String())
	assert.Equal(t, "unknown", Strategy(0).String())
}

func TestLaunchEmptyCommand(t *testing.T) {
	l := New(detector.NewFake(), nil)
	p := program.New("ghost", "")
	p.StartCommand = "  "

	_, err := l.Launch(p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyCommand)
	var le *LaunchError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "ghost", le.Program)
	assert.Zero(t, p.LastStartedPID())
}

func TestTerminateSavedPIDThenByName(t *testing.T) {
	fake := detector.NewFake(
		detector.Process{PID: 10, Name: "notepad.exe"},
		detector.Process{PID: 11, Name: "notepad"},
		detector.Process{PID: 12, Name: "code"},
	)
	l := New(fake, nil)
	p := program.New("notepad", "")
	p.SetLastStartedPID(11)

	n, err := l.Terminate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{11, 10}, fake.Killed())
	assert.Zero(t, p.LastStartedPID())
}

func TestTerminateStalePIDIsNotKilled(t *testing.T) {
	fake := detector.NewFake(
		detector.Process{PID: 10, Name: "svchost"},
		detector.Process{PID: 20, Name: "notepad"},
	)
	l := New(fake, nil)
	p := program.New("notepad", "")
	p.SetLastStartedPID(10)

	n, err := l.Terminate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{20}, fake.Killed())
	assert.Zero(t, p.LastStartedPID(), "stale pid must be cleared")
}

func TestTerminateNothingRunning(t *testing.T) {
	l := New(detector.NewFake(), nil)
	n, err := l.Terminate(context.Background(), program.New("notepad", ""))
	require.NoError(t, err)
	assert.Zero(t, n)
}
