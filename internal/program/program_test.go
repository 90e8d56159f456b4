package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByProcessNameIgnoresCase(t *testing.T) {
	l := List{New("Code", "Visual Studio Code"), New("notepad", "")}

	p := l.FindByProcessName("code")
	require.NotNil(t, p)
	assert.Equal(t, "Visual Studio Code", p.DisplayName)
	assert.True(t, l.ExistsByProcessName("NOTEPAD"))
	assert.False(t, l.ExistsByProcessName("chrome"))
	assert.Nil(t, l.FindByProcessName("chrome"))
}

func TestKeyIgnoresExeSuffix(t *testing.T) {
	assert.Equal(t, "notepad", KeyOf("Notepad.EXE"))
	assert.Equal(t, "notepad", New("notepad.exe", "").Key())
	assert.Equal(t, ".exe", KeyOf(".exe"))

	l := List{New("notepad.exe", "Notepad")}
	assert.NotNil(t, l.FindByProcessName("NOTEPAD"))
	rest, removed := l.Remove("notepad")
	assert.True(t, removed)
	assert.Empty(t, rest)
}

func TestNewDefaultsDisplayName(t *testing.T) {
	p := New("notepad", "")
	assert.Equal(t, "notepad", p.DisplayName)
	assert.True(t, p.Monitored)
	assert.Equal(t, "notepad", p.Key())
}

func TestCanStart(t *testing.T) {
	p := New("x", "")
	assert.False(t, p.CanStart())
	p.StartCommand = "   "
	assert.False(t, p.CanStart())
	p.StartCommand = "x.exe"
	assert.True(t, p.CanStart())
}

func TestLastStartedPID(t *testing.T) {
	p := New("x", "")
	assert.Equal(t, 0, p.LastStartedPID())
	p.SetLastStartedPID(4242)
	assert.Equal(t, 4242, p.LastStartedPID())

	c := p.Clone()
	p.ClearLastStartedPID()
	assert.Equal(t, 0, p.LastStartedPID())
	assert.Equal(t, 4242, c.LastStartedPID(), "clone keeps its own copy")
}

func TestMonitoredAndRemove(t *testing.T) {
	a, b, c := New("a", ""), New("b", ""), New("c", "")
	b.Monitored = false
	l := List{a, b, c}

	m := l.Monitored()
	require.Len(t, m, 2)
	assert.Equal(t, "a", m[0].ProcessName)
	assert.Equal(t, "c", m[1].ProcessName)

	out, ok := l.Remove("B")
	assert.True(t, ok)
	assert.Len(t, out, 2)
	assert.Len(t, l, 3, "receiver untouched")

	_, ok = l.Remove("zzz")
	assert.False(t, ok)
}
