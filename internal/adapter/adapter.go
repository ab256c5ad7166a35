// Package adapter translates each external IT-management API into the
// dashboard's normalized widget shapes. Adapters are pure translators: one
// config in, one well-formed result out, all network errors contained.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"opsdeck/internal/domain"
)

// Widget is one dashboard section: a source link plus a bounded item list.
// An empty skeleton is a Widget with zero items, used in place of an error.
type Widget[T any] struct {
	SourceURL  string `json:"source_url,omitempty"`
	Items      []T    `json:"items"`
	TotalCount int    `json:"total_count,omitempty"`
}

// Skeleton returns the empty-but-well-formed value for a widget.
func Skeleton[T any](sourceURL string) *Widget[T] {
	return &Widget[T]{SourceURL: sourceURL, Items: []T{}}
}

// Result is the per-service outcome of one refresh. Only the widget
// pointers owned by the producing adapter are set; the assembler fills the
// rest with skeletons. Failure is a diagnostic tag, never an error branch
// for callers.
type Result struct {
	Monitors       *Widget[domain.Monitor]
	OpenTickets    *Widget[domain.Ticket]
	AutomationLogs *Widget[domain.AutomationLog]
	WorkflowRuns   *Widget[domain.WorkflowRun]
	Cluster        *Widget[domain.ClusterMember]
	Reports        *Widget[domain.Report]
	Assets         *Widget[domain.Asset]
	Failure        string
}

// Failure tags recorded on degraded results.
const (
	FailTimeout  = "timeout"
	FailUpstream = "upstream"
)

// Adapter is the capability every integration implements. Fetch must not
// return an error for ordinary upstream failure; it degrades to an empty
// result and reports the reason through Result.Failure.
type Adapter interface {
	Service() string
	// ConfigComplete reports whether the required fields for this service
	// are present. An incomplete config short-circuits to a skeleton with
	// zero network calls.
	ConfigComplete(cfg domain.ServiceConfig) bool
	Fetch(ctx context.Context, cfg domain.ServiceConfig) Result
}

// Client is the shared outbound HTTP plumbing for adapters.
type Client struct {
	HTTP     *http.Client
	MaxItems int
	Log      *slog.Logger
}

// NewClient builds the adapter-side HTTP client with its own call-level
// timeout, distinct from the orchestrator's outer deadline.
func NewClient(timeout time.Duration, maxItems int, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxItems <= 0 {
		maxItems = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		HTTP:     &http.Client{Timeout: timeout},
		MaxItems: maxItems,
		Log:      log,
	}
}

func (c *Client) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

// getJSON issues a GET and decodes a JSON body into out. Non-2xx statuses
// are errors; bodies are read through a limit reader.
func (c *Client) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// postJSON issues a POST with a JSON body and decodes the JSON response.
func (c *Client) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// IsAuthStatus reports whether err is an upstream 401/403.
func IsAuthStatus(err error) bool {
	se, ok := err.(*StatusError)
	return ok && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden)
}

// Registry maps service identifiers to adapters so new integrations are
// additive, not branch-additive.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the default adapter set over one shared client.
func NewRegistry(client *Client) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	r.Register(&Uptime{Client: client})
	r.Register(&Ticketing{Client: client})
	r.Register(&Automation{Client: client})
	r.Register(&Cluster{Client: client})
	r.Register(&BI{Client: client})
	return r
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Service()] = a
}

// Lookup returns the adapter for a service identifier.
func (r *Registry) Lookup(service string) (Adapter, bool) {
	a, ok := r.adapters[service]
	return a, ok
}

// Services lists the registered service identifiers.
func (r *Registry) Services() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

func (c *Client) cap(n int) int {
	if n > c.MaxItems {
		return c.MaxItems
	}
	return n
}
