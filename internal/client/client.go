// Package client provides an HTTP client for the gridpower API.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/xtxerr/gridpower/internal/storage"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrRejected    = errors.New("ingest rejected")
	ErrUnavailable = errors.New("server unavailable")
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

// =============================================================================
// Client
// =============================================================================

// Client talks to a gridpower server.
type Client struct {
	http *resty.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:3000",
		RequestTimeout: 30 * time.Second,
	}
}

// New creates a new client.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	h := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("User-Agent", "gridpowerctl")

	if cfg.RequestTimeout > 0 {
		h.SetTimeout(cfg.RequestTimeout)
	}

	return &Client{http: h}
}

// Point is one element of a query result: a raw reading (Name empty,
// numeric Value) or a power point (Name "Power", string Value).
type Point struct {
	Time  string `json:"time"`
	Name  string `json:"name,omitempty"`
	Value any    `json:"value"`
}

// IsPower reports whether p is a derived power point.
func (p Point) IsPower() bool {
	return p.Name == types.PowerName
}

// Window is a query range as sent to the server.
type Window struct {
	From   string
	To     string
	Period string
}

func (w Window) params() map[string]string {
	params := map[string]string{"from": w.From}
	if w.To != "" {
		params["to"] = w.To
	}
	if w.Period != "" {
		params["period"] = w.Period
	}
	return params
}

// =============================================================================
// Ingest
// =============================================================================

// Push uploads newline-separated rows as one ingest session and returns the
// session id.
func (c *Client) Push(ctx context.Context, body io.Reader) (string, error) {
	var result struct {
		Success bool `json:"success"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain").
		SetBody(body).
		SetResult(&result).
		Post("/data")
	if err != nil {
		return "", fmt.Errorf("push: %w", err)
	}
	if err := check(resp); err != nil {
		return resp.Header().Get("X-Session-Id"), fmt.Errorf("push: %w", err)
	}
	if !result.Success {
		return "", ErrRejected
	}

	return resp.Header().Get("X-Session-Id"), nil
}

// =============================================================================
// Query
// =============================================================================

// Query returns raw readings and daily power inside w.
func (c *Client) Query(ctx context.Context, w Window) ([]Point, error) {
	var points []Point
	if err := c.getJSON(ctx, "/data", w.params(), &points); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return points, nil
}

// Daily returns per-day, per-channel statistics inside w.
func (c *Client) Daily(ctx context.Context, w Window) ([]types.DaySummary, error) {
	var summaries []types.DaySummary
	if err := c.getJSON(ctx, "/data/daily", w.params(), &summaries); err != nil {
		return nil, fmt.Errorf("daily: %w", err)
	}
	return summaries, nil
}

// Export streams the Parquet export of w into out and returns the bytes
// written.
func (c *Client) Export(ctx context.Context, w Window, out io.Writer) (int64, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(w.params()).
		SetDoNotParseResponse(true).
		Get("/data/export")
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}

	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(body, 4096))
		return 0, fmt.Errorf("export: %w", &APIError{Status: resp.StatusCode(), Message: strings.TrimSpace(string(msg))})
	}

	n, err := io.Copy(out, body)
	if err != nil {
		return n, fmt.Errorf("export: %w", err)
	}
	return n, nil
}

// Rejects returns recently rejected rows. A non-empty session restricts
// the result to that session.
func (c *Client) Rejects(ctx context.Context, limit int, session string) ([]types.Rejection, error) {
	params := map[string]string{"limit": strconv.Itoa(limit)}
	if session != "" {
		params["session"] = session
	}

	var rejects []types.Rejection
	if err := c.getJSON(ctx, "/rejects", params, &rejects); err != nil {
		return nil, fmt.Errorf("rejects: %w", err)
	}
	return rejects, nil
}

// Stats returns the server statistics.
func (c *Client) Stats(ctx context.Context) (storage.ServiceStats, error) {
	var stats storage.ServiceStats
	if err := c.getJSON(ctx, "/stats", nil, &stats); err != nil {
		return storage.ServiceStats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// Health returns nil if the server is up and running.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func (c *Client) getJSON(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		SetError(&errorBody{}).
		Get(path)
	if err != nil {
		return err
	}
	return check(resp)
}

func check(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	return apiErr
}
