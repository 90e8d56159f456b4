package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/taskpilot/internal/detector"
	"github.com/loykin/taskpilot/internal/launcher"
	mng "github.com/loykin/taskpilot/internal/manager"
	"github.com/loykin/taskpilot/internal/program"
	"github.com/loykin/taskpilot/internal/window"
)

type stubLauncher struct {
	procs *detector.Fake
	fail  error
}

func (s *stubLauncher) Launch(p *program.Program) (launcher.Result, error) {
	if s.fail != nil {
		return launcher.Result{}, &launcher.LaunchError{Program: p.ProcessName, Command: p.StartCommand, Err: s.fail}
	}
	pid := s.procs.Start(p.ProcessName)
	p.SetLastStartedPID(pid)
	return launcher.Result{PID: pid}, nil
}

func (s *stubLauncher) Terminate(ctx context.Context, p *program.Program) (int, error) {
	return launcher.New(s.procs, nil).Terminate(ctx, p)
}

type env struct {
	h      http.Handler
	mgr    *mng.Manager
	procs  *detector.Fake
	launch *stubLauncher
	wins   *window.Fake
}

func setup(t *testing.T, base string, opts ...Option) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	procs := detector.NewFake(detector.Process{PID: 10, Name: "code.exe"})
	sl := &stubLauncher{procs: procs}
	wins := window.NewFake()
	mgr := mng.New(mng.Options{
		Provider:  procs,
		Launcher:  sl,
		Windows:   wins,
		Scheduler: func(time.Duration, func()) {},
	})

	editor := program.New("code", "VS Code")
	editor.StartCommand = "code.exe"
	editor.AutoRestart = true
	notes := program.New("notepad", "Notepad")
	notes.StartCommand = "notepad.exe"
	bare := program.New("calc", "Calculator")
	mgr.SetMonitoredPrograms(program.List{editor, notes, bare})
	_, err := mgr.Refresh(context.Background())
	require.NoError(t, err)

	return &env{h: NewRouter(mgr, base, opts...).Handler(), mgr: mgr, procs: procs, launch: sl, wins: wins}
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatusesSortedByDisplayName(t *testing.T) {
	e := setup(t, "/api")
	rec := doReq(t, e.h, http.MethodGet, "/api/statuses", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sts := decode[[]statusView](t, rec)
	require.Len(t, sts, 3)
	assert.Equal(t, []string{"Calculator", "Notepad", "VS Code"},
		[]string{sts[0].DisplayName, sts[1].DisplayName, sts[2].DisplayName})
	assert.True(t, sts[2].Active)
	assert.Equal(t, "active", sts[2].Status)
	assert.Equal(t, 10, sts[2].PID)
	assert.True(t, sts[2].AutoRestart)
	assert.Equal(t, "just now", sts[2].SinceText)
	assert.False(t, sts[1].Active)
}

func TestStatusByName(t *testing.T) {
	e := setup(t, "")
	rec := doReq(t, e.h, http.MethodGet, "/status?name=CODE", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "code", decode[statusView](t, rec).ProcessName)

	assert.Equal(t, http.StatusBadRequest, doReq(t, e.h, http.MethodGet, "/status", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doReq(t, e.h, http.MethodGet, "/status?name=../x", nil).Code)
	assert.Equal(t, http.StatusNotFound, doReq(t, e.h, http.MethodGet, "/status?name=unknown", nil).Code)
}

func TestStartHonorsCooldown(t *testing.T) {
	e := setup(t, "/api")
	rec := doReq(t, e.h, http.MethodPost, "/api/start?name=notepad", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[startResp](t, rec)
	assert.Equal(t, "launched", resp.Decision)
	assert.Positive(t, resp.PID)
	assert.True(t, e.mgr.InCooldown("notepad"))

	rec = doReq(t, e.h, http.MethodPost, "/api/start?name=notepad", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartErrors(t *testing.T) {
	e := setup(t, "")
	assert.Equal(t, http.StatusUnprocessableEntity, doReq(t, e.h, http.MethodPost, "/start?name=calc", nil).Code)
	assert.Equal(t, http.StatusNotFound, doReq(t, e.h, http.MethodPost, "/start?name=nope", nil).Code)

	e.launch.fail = errors.New("access denied")
	rec := doReq(t, e.h, http.MethodPost, "/start?name=notepad", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[errorResp](t, rec).Error, "access denied")
}

func TestStopKillsByName(t *testing.T) {
	e := setup(t, "")
	rec := doReq(t, e.h, http.MethodPost, "/stop?name=code", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[countResp](t, rec).Count)
	assert.Equal(t, []int{10}, e.procs.Killed())
}

func TestMinimizeAndRestore(t *testing.T) {
	e := setup(t, "")
	e.wins.AddWindow(window.Window{Handle: 7, Title: "main.go - Visual Studio Code", PID: 10, Visible: true}, true)

	rec := doReq(t, e.h, http.MethodPost, "/minimize?name=code", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, countResp{OK: true, Count: 1}, decode[countResp](t, rec))
	assert.True(t, e.wins.IsMinimized(7))

	rec = doReq(t, e.h, http.MethodPost, "/restore?name=code", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, e.wins.IsMinimized(7))
	assert.Equal(t, window.Handle(7), e.wins.ForegroundWindow())

	rec = doReq(t, e.h, http.MethodPost, "/minimize?name=notepad", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, countResp{OK: false, Count: 0}, decode[countResp](t, rec))
}

func TestMinimizeAllAndRestoreAll(t *testing.T) {
	e := setup(t, "/api")
	e.wins.AddWindow(window.Window{Handle: 7, Title: "Visual Studio Code", PID: 10, Visible: true}, true)

	rec := doReq(t, e.h, http.MethodPost, "/api/minimize-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[countResp](t, rec).Count)

	rec = doReq(t, e.h, http.MethodPost, "/api/restore-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[countResp](t, rec).Count)
}

func TestAutoStartToggle(t *testing.T) {
	e := setup(t, "")
	rec := doReq(t, e.h, http.MethodGet, "/autostart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[autoStartResp](t, rec).Enabled)

	rec = doReq(t, e.h, http.MethodPut, "/autostart", map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[autoStartResp](t, rec).Enabled)
	assert.True(t, e.mgr.AutoRestart())

	assert.Equal(t, http.StatusBadRequest, doReq(t, e.h, http.MethodPut, "/autostart", map[string]string{}).Code)
}

func TestReload(t *testing.T) {
	e := setup(t, "")
	assert.Equal(t, http.StatusNotImplemented, doReq(t, e.h, http.MethodPost, "/reload", nil).Code)

	calls := 0
	e = setup(t, "", WithReload(func(context.Context) error {
		calls++
		if calls > 1 {
			return errors.New("bad config")
		}
		return nil
	}))
	assert.Equal(t, http.StatusOK, doReq(t, e.h, http.MethodPost, "/reload", nil).Code)
	rec := doReq(t, e.h, http.MethodPost, "/reload", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad config", decode[errorResp](t, rec).Error)
}

func TestProcessesFilter(t *testing.T) {
	e := setup(t, "")
	e.procs.Set(
		detector.Process{PID: 10, Name: "code.exe"},
		detector.Process{PID: 11, Name: "chrome.exe"},
	)
	rec := doReq(t, e.h, http.MethodGet, "/processes?filter=chr*", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	infos := decode[[]detector.Info](t, rec)
	require.Len(t, infos, 1)
	assert.Equal(t, "chrome", infos[0].ProcessName)

	assert.Equal(t, http.StatusBadRequest, doReq(t, e.h, http.MethodGet, "/processes?filter=%5Bx", nil).Code)
}

func TestUsageWithoutSamplerIsEmpty(t *testing.T) {
	e := setup(t, "")
	rec := doReq(t, e.h, http.MethodGet, "/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestMetricsMountedOutsideBase(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	e := setup(t, "/api", WithMetrics(h))
	rec := doReq(t, e.h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
