package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gin-gonic/gin"

	"github.com/loykin/taskpilot/internal/launcher"
	mng "github.com/loykin/taskpilot/internal/manager"
	"github.com/loykin/taskpilot/internal/metrics"
	"github.com/loykin/taskpilot/internal/monitor"
	"github.com/loykin/taskpilot/internal/program"
)

// Router provides embeddable HTTP handlers for controlling monitored programs.
// Endpoints:
//   GET  {basePath}/statuses                 every monitored program, sorted by display name
//   GET  {basePath}/status?name=...          one program
//   POST {basePath}/start?name=...           launch now, honoring the restart cooldown
//   POST {basePath}/stop?name=...            kill every process of the program
//   POST {basePath}/minimize?name=...        minimize the program's windows
//   POST {basePath}/restore?name=...         restore and focus the program's windows
//   POST {basePath}/minimize-all             minimize windows of every active program
//   POST {basePath}/restore-all              restore windows of every active program
//   GET  {basePath}/autostart                global auto-restart flag
//   PUT  {basePath}/autostart                body: {"enabled": bool}
//   POST {basePath}/reload                   re-read the configuration file
//   GET  {basePath}/processes?filter=glob    processes running on the machine
//   GET  {basePath}/usage                    CPU and memory of active programs
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *mng.Manager
	basePath string
	reload   func(context.Context) error
	metrics  http.Handler
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Router)

// WithReload sets the function run by POST /reload.
func WithReload(fn func(context.Context) error) Option {
	return func(r *Router) { r.reload = fn }
}

// WithMetrics mounts h at GET /metrics, outside the base path.
func WithMetrics(h http.Handler) Option {
	return func(r *Router) { r.metrics = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(mgr *mng.Manager, basePath string, opts ...Option) *Router {
	r := &Router{mgr: mgr, basePath: sanitizeBase(basePath), logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	group := g.Group(r.basePath)
	group.GET("/statuses", r.handleStatuses)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/minimize", r.handleMinimize)
	group.POST("/restore", r.handleRestore)
	group.POST("/minimize-all", r.handleMinimizeAll)
	group.POST("/restore-all", r.handleRestoreAll)
	group.GET("/autostart", r.handleGetAutoStart)
	group.PUT("/autostart", r.handleSetAutoStart)
	group.POST("/reload", r.handleReload)
	group.GET("/processes", r.handleProcesses)
	group.GET("/usage", r.handleUsage)
	return g
}

// NewServer returns an http.Server for h on addr. The caller runs ListenAndServe.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Responses ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type countResp struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

type startResp struct {
	OK       bool   `json:"ok"`
	Decision string `json:"decision"`
	PID      int    `json:"pid"`
}

type autoStartBody struct {
	Enabled *bool `json:"enabled"`
}

type autoStartResp struct {
	Enabled bool `json:"enabled"`
}

type statusView struct {
	ProcessName  string    `json:"process_name"`
	DisplayName  string    `json:"display_name"`
	Description  string    `json:"description,omitempty"`
	Active       bool      `json:"active"`
	Status       string    `json:"status"`
	Since        time.Time `json:"since"`
	SinceText    string    `json:"since_text"`
	PID          int       `json:"pid"`
	StartCommand string    `json:"start_command,omitempty"`
	AutoRestart  bool      `json:"auto_restart"`
	CoolingDown  bool      `json:"cooling_down"`
}

func (r *Router) view(st monitor.ProgramStatus, programs program.List) statusView {
	v := statusView{
		ProcessName: st.ProcessName,
		DisplayName: st.DisplayName,
		Description: st.Description,
		Active:      st.IsActive,
		Status:      st.StatusText(),
		Since:       st.StatusSince,
		SinceText:   st.Since(r.now()),
		PID:         st.ProcessID,
		CoolingDown: r.mgr.InCooldown(st.ProcessName),
	}
	if p := programs.FindByProcessName(st.ProcessName); p != nil {
		v.StartCommand = p.StartCommand
		v.AutoRestart = p.AutoRestart
	}
	return v
}

// errorStatus maps manager errors to HTTP status codes.
func errorStatus(err error) int {
	var le *launcher.LaunchError
	switch {
	case errors.Is(err, mng.ErrUnknownProgram):
		return http.StatusNotFound
	case errors.Is(err, mng.ErrNoStartCommand):
		return http.StatusUnprocessableEntity
	case errors.Is(err, mng.ErrCoolingDown):
		return http.StatusConflict
	case errors.As(err, &le):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) fail(c *gin.Context, err error) {
	code := errorStatus(err)
	if code >= http.StatusInternalServerError {
		r.logger.Warn("request failed", "path", c.FullPath(), "error", err)
	}
	writeJSON(c, code, errorResp{Error: err.Error()})
}

// nameParam reads and validates the name query parameter.
func nameParam(c *gin.Context) (string, bool) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return "", false
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: no path separators, wildcards or '..'"})
		return "", false
	}
	return name, true
}

// --- Handlers ---

func (r *Router) handleStatuses(c *gin.Context) {
	sts := r.mgr.Statuses()
	programs := r.mgr.Programs()
	out := make([]statusView, 0, len(sts))
	for _, st := range sts {
		out = append(out, r.view(st, programs))
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleStatus(c *gin.Context) {
	name, ok := nameParam(c)
	if !ok {
		return
	}
	st, err := r.mgr.Status(name)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r.view(st, r.mgr.Programs()))
}

func (r *Router) handleStart(c *gin.Context) {
	name, ok := nameParam(c)
	if !ok {
		return
	}
	out, err := r.mgr.StartProgram(name)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, startResp{OK: true, Decision: out.Decision.String(), PID: out.Result.PID})
}

func (r *Router) handleStop(c *gin.Context) {
	name, ok := nameParam(c)
	if !ok {
		return
	}
	n, err := r.mgr.StopProgram(c.Request.Context(), name)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, countResp{OK: true, Count: n})
}

func (r *Router) handleMinimize(c *gin.Context) {
	r.windowOp(c, r.mgr.Minimize)
}

func (r *Router) handleRestore(c *gin.Context) {
	r.windowOp(c, r.mgr.Restore)
}

func (r *Router) windowOp(c *gin.Context, op func(context.Context, string) (int, error)) {
	name, ok := nameParam(c)
	if !ok {
		return
	}
	n, err := op(c.Request.Context(), name)
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, countResp{OK: n > 0, Count: n})
}

func (r *Router) handleMinimizeAll(c *gin.Context) {
	n := r.mgr.MinimizeAll(c.Request.Context())
	writeJSON(c, http.StatusOK, countResp{OK: true, Count: n})
}

func (r *Router) handleRestoreAll(c *gin.Context) {
	n := r.mgr.RestoreAll(c.Request.Context())
	writeJSON(c, http.StatusOK, countResp{OK: true, Count: n})
}

func (r *Router) handleGetAutoStart(c *gin.Context) {
	writeJSON(c, http.StatusOK, autoStartResp{Enabled: r.mgr.AutoRestart()})
}

func (r *Router) handleSetAutoStart(c *gin.Context) {
	var body autoStartBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if body.Enabled == nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "enabled required"})
		return
	}
	r.mgr.SetAutoRestart(*body.Enabled)
	r.logger.Info("auto-start changed", "enabled", *body.Enabled)
	writeJSON(c, http.StatusOK, autoStartResp{Enabled: r.mgr.AutoRestart()})
}

func (r *Router) handleReload(c *gin.Context) {
	if r.reload == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "reload not configured"})
		return
	}
	if err := r.reload(c.Request.Context()); err != nil {
		r.logger.Warn("reload failed", "error", err)
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleProcesses(c *gin.Context) {
	infos, err := r.mgr.Running(c.Request.Context(), c.Query("filter"))
	if err != nil {
		if errors.Is(err, doublestar.ErrBadPattern) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid filter: " + err.Error()})
			return
		}
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, infos)
}

func (r *Router) handleUsage(c *gin.Context) {
	us, err := r.mgr.Usage(c.Request.Context())
	if err != nil {
		r.fail(c, err)
		return
	}
	if us == nil {
		us = []metrics.Usage{}
	}
	writeJSON(c, http.StatusOK, us)
}
