package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8765/api"
	DefaultTimeout = 10 * time.Second
)

// Client talks to a running taskpilot daemon.
type Client struct {
	r      *resty.Client
	logger *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	r := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "taskpilot-cli")
	return &Client{r: r, logger: config.Logger}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	resp, err := c.r.R().SetContext(ctx).Get("/autostart")
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	ok := resp.StatusCode() != http.StatusNotFound
	c.logger.Debug("Daemon reachability check", "reachable", ok, "status", resp.StatusCode())
	return ok
}

// Statuses returns every monitored program ordered by display name.
func (c *Client) Statuses(ctx context.Context) ([]ProgramStatus, error) {
	var out []ProgramStatus
	err := c.do(c.r.R().SetContext(ctx).SetResult(&out), http.MethodGet, "/statuses")
	return out, err
}

func (c *Client) Status(ctx context.Context, name string) (ProgramStatus, error) {
	var out ProgramStatus
	err := c.do(c.named(ctx, name).SetResult(&out), http.MethodGet, "/status")
	return out, err
}

// Start launches a program now. Starting inside the restart cooldown fails with 409.
func (c *Client) Start(ctx context.Context, name string) (StartResult, error) {
	var out StartResult
	err := c.do(c.named(ctx, name).SetResult(&out), http.MethodPost, "/start")
	return out, err
}

// Stop kills every process of the program and returns how many were killed.
func (c *Client) Stop(ctx context.Context, name string) (int, error) {
	return c.count(c.named(ctx, name), "/stop")
}

func (c *Client) Minimize(ctx context.Context, name string) (int, error) {
	return c.count(c.named(ctx, name), "/minimize")
}

func (c *Client) Restore(ctx context.Context, name string) (int, error) {
	return c.count(c.named(ctx, name), "/restore")
}

func (c *Client) MinimizeAll(ctx context.Context) (int, error) {
	return c.count(c.r.R().SetContext(ctx), "/minimize-all")
}

func (c *Client) RestoreAll(ctx context.Context) (int, error) {
	return c.count(c.r.R().SetContext(ctx), "/restore-all")
}

func (c *Client) AutoStart(ctx context.Context) (bool, error) {
	var out autoStart
	if err := c.do(c.r.R().SetContext(ctx).SetResult(&out), http.MethodGet, "/autostart"); err != nil {
		return false, err
	}
	return out.Enabled != nil && *out.Enabled, nil
}

// SetAutoStart switches automatic restarts on or off and returns the new value.
func (c *Client) SetAutoStart(ctx context.Context, enabled bool) (bool, error) {
	var out autoStart
	req := c.r.R().SetContext(ctx).SetBody(autoStart{Enabled: &enabled}).SetResult(&out)
	if err := c.do(req, http.MethodPut, "/autostart"); err != nil {
		return false, err
	}
	return out.Enabled != nil && *out.Enabled, nil
}

// Reload asks the daemon to re-read its configuration file.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(c.r.R().SetContext(ctx), http.MethodPost, "/reload")
}

// Processes lists processes running on the daemon's machine, filtered by a glob.
func (c *Client) Processes(ctx context.Context, filter string) ([]ProcessInfo, error) {
	var out []ProcessInfo
	req := c.r.R().SetContext(ctx).SetResult(&out)
	if filter != "" {
		req.SetQueryParam("filter", filter)
	}
	err := c.do(req, http.MethodGet, "/processes")
	return out, err
}

func (c *Client) Usage(ctx context.Context) ([]Usage, error) {
	var out []Usage
	err := c.do(c.r.R().SetContext(ctx).SetResult(&out), http.MethodGet, "/usage")
	return out, err
}

func (c *Client) named(ctx context.Context, name string) *resty.Request {
	return c.r.R().SetContext(ctx).SetQueryParam("name", name)
}

func (c *Client) count(req *resty.Request, path string) (int, error) {
	var out CountResult
	if err := c.do(req.SetResult(&out), http.MethodPost, path); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// do executes req and converts non-2xx responses into *APIError.
func (c *Client) do(req *resty.Request, method, path string) error {
	req.SetError(&ErrorResponse{})
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if e, ok := resp.Error().(*ErrorResponse); ok && e != nil {
		apiErr.Message = e.Error
	}
	c.logger.Debug("API request failed", "error", apiErr.Message, "status", apiErr.StatusCode, "path", path)
	return apiErr
}

// StatusCode returns the HTTP status of an *APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
