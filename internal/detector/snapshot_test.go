package detector

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCaseInsensitive(t *testing.T) {
	s := NewSnapshot([]Process{
		{PID: 10, Name: "Notepad.exe"},
		{PID: 11, Name: "notepad"},
		{PID: 20, Name: "Code"},
		{PID: 30, Name: ""},
	})

	assert.True(t, s.Contains("NOTEPAD"))
	assert.True(t, s.Contains("code"))
	assert.False(t, s.Contains("chrome"))
	assert.Equal(t, []int{10, 11}, s.PIDs("notepad"))
	assert.Equal(t, 10, s.AnyPID("Notepad"))
	assert.Equal(t, 0, s.AnyPID("chrome"))
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Taken().IsZero())
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"notepad.exe":  "notepad",
		"Code.EXE":     "Code",
		"python3.11":   "python3.11",
		".exe":         ".exe",
		"  chrome.exe ": "chrome",
		"bash":         "bash",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

func TestIsStale(t *testing.T) {
	assert.False(t, IsStale(Process{PID: 1, Name: "notepad.exe"}, "Notepad"))
	assert.True(t, IsStale(Process{PID: 1, Name: "svchost"}, "notepad"))
}

func TestFilter(t *testing.T) {
	infos := []Info{
		{ProcessName: "chrome", DisplayName: "chrome"},
		{ProcessName: "code", DisplayName: "Code"},
		{ProcessName: "msedge", DisplayName: "msedge"},
	}

	all, err := Filter(infos, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	sub, err := Filter(infos, "ED")
	require.NoError(t, err)
	require.Len(t, sub, 1)
	assert.Equal(t, "msedge", sub[0].ProcessName)

	glob, err := Filter(infos, "c*")
	require.NoError(t, err)
	assert.Len(t, glob, 2)

	_, err = Filter(infos, "[")
	assert.Error(t, err)
}

func TestDedupeInfosSortsByDisplayName(t *testing.T) {
	out := dedupeInfos([]Info{
		{ProcessName: "b", DisplayName: "Bravo"},
		{ProcessName: "a", DisplayName: "Alpha"},
		{ProcessName: "b", DisplayName: "Bravo2"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "Alpha", out[0].DisplayName)
	assert.Equal(t, "Bravo", out[1].DisplayName)
}

func TestSystemSeesCurrentProcess(t *testing.T) {
	sys := NewSystem()
	ctx := context.Background()

	self, err := sys.Lookup(ctx, os.Getpid())
	require.NoError(t, err)
	require.NotEmpty(t, self.Name)

	snap, err := sys.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Contains(self.Name), "snapshot should include %q", self.Name)

	found, err := sys.FindByName(ctx, self.Name)
	require.NoError(t, err)
	pids := make([]int, 0, len(found))
	for _, p := range found {
		pids = append(pids, p.PID)
	}
	assert.Contains(t, pids, os.Getpid())
}

func TestSystemLookupInvalidPID(t *testing.T) {
	_, err := NewSystem().Lookup(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotLookupAcceptsExeSuffix(t *testing.T) {
	s := NewSnapshot([]Process{{PID: 7, Name: "Notepad.exe"}})
	assert.True(t, s.Contains("notepad.exe"))
	assert.True(t, s.Contains("NOTEPAD"))
	assert.Equal(t, 7, s.AnyPID("notepad.EXE"))
	assert.Equal(t, []int{7}, s.PIDs("notepad"))
}
