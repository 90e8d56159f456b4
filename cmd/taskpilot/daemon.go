package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/taskpilot/internal/config"
	"github.com/loykin/taskpilot/internal/manager"
	"github.com/loykin/taskpilot/internal/metrics"
	"github.com/loykin/taskpilot/internal/server"
)

// ErrAlreadyRunning is returned when another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("taskpilot is already running (lock held by another process)")

// daemonDeps lets tests swap the OS-backed manager parts.
type daemonDeps struct {
	managerOptions manager.Options
	registerer     prometheus.Registerer
	gatherer       prometheus.Gatherer
	// ready, when set, receives the API listener address once it accepts connections.
	ready func(apiAddr string)
}

func lockPath(cfg *config.Config) string {
	if cfg.LockFile != "" {
		return cfg.LockFile
	}
	return filepath.Join(filepath.Dir(cfg.Path()), "taskpilot.lock")
}

// acquireLock takes the single-instance lock without blocking.
func acquireLock(path string) (*flock.Flock, error) {
	l := flock.New(path)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}
	return l, nil
}

// runDaemon loads configPath and supervises its programs until ctx is cancelled.
func runDaemon(ctx context.Context, configPath string, console io.Writer, deps daemonDeps) error {
	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	logger, closer := cfg.Log.Build(console)
	defer func() { _ = closer.Close() }()
	slog.SetDefault(logger)

	lock, err := acquireLock(lockPath(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	opts := deps.managerOptions
	opts.Logger = logger.With("component", "manager")
	opts.Interval = cfg.PollInterval
	opts.AutoRestart = cfg.AutoStart
	if opts.Usage == nil {
		opts.Usage = metrics.NewUsageSampler()
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg, gat := deps.registerer, deps.gatherer
		if reg == nil {
			reg, gat = prometheus.DefaultRegisterer, prometheus.DefaultGatherer
		}
		if err := metrics.Register(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		if err := opts.Usage.Register(reg); err != nil {
			return fmt.Errorf("register usage metrics: %w", err)
		}
		metricsHandler = metrics.HandlerFor(gat)
	}

	mgr := manager.New(opts)
	mgr.SetMonitoredPrograms(cfg.ProgramList())

	reload := func(context.Context) error {
		next, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		mgr.SetMonitoredPrograms(next.ProgramList())
		logger.Info("configuration reloaded", "path", configPath, "programs", len(next.Programs))
		return nil
	}

	errCh := make(chan error, 3)
	var servers []*http.Server

	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		ms := server.NewServer(cfg.Metrics.Listen, mux)
		ln, err := net.Listen("tcp", ms.Addr)
		if err != nil {
			return fmt.Errorf("metrics listen %s: %w", ms.Addr, err)
		}
		servers = append(servers, ms)
		go serve(ms, ln, "metrics", logger, errCh)
		metricsHandler = nil
	}

	apiAddr := ""
	if cfg.Server.Enabled {
		ropts := []server.Option{server.WithReload(reload), server.WithLogger(logger.With("component", "server"))}
		if metricsHandler != nil {
			ropts = append(ropts, server.WithMetrics(metricsHandler))
		}
		router := server.NewRouter(mgr, cfg.Server.BasePath, ropts...)
		srv := server.NewServer(cfg.Server.Listen, router.Handler())
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, s := range servers {
				_ = s.Close()
			}
			return fmt.Errorf("api listen %s: %w", srv.Addr, err)
		}
		servers = append(servers, srv)
		apiAddr = ln.Addr().String()
		go serve(srv, ln, "api", logger, errCh)
	}

	logger.Info("taskpilot started",
		"config", configPath,
		"programs", len(mgr.Programs()),
		"interval", cfg.PollInterval,
		"auto_start", cfg.AutoStart,
		"api", apiAddr)
	if deps.ready != nil {
		deps.ready(apiAddr)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { errCh <- mgr.Run(runCtx) }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	for _, s := range servers {
		_ = s.Shutdown(shutdownCtx)
	}
	logger.Info("taskpilot stopped")
	return runErr
}

func serve(s *http.Server, ln net.Listener, name string, logger *slog.Logger, errCh chan<- error) {
	logger.Info("listening", "server", name, "addr", ln.Addr().String())
	if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s server: %w", name, err)
	}
}
