package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rmax-ai/transformer-puzzle/pkg/graph"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
	"github.com/rmax-ai/transformer-puzzle/pkg/simulation"
)

// OriginHeader names the surface issuing commands; the daemon journals it.
const OriginHeader = "X-Tpuzzle-Origin"

// Client is the transformer-puzzle daemon SDK client. It satisfies
// simulation.Player, so scenarios can be played against a remote daemon.
type Client struct {
	endpoint string
	http     *http.Client
	origin   string
	token    string
	backoff  BackoffStrategy
	retries  int
}

// Option configures a Client.
type Option func(*Client)

// WithOrigin sets the origin reported on every request (mcp, tui, sim).
func WithOrigin(origin string) Option {
	return func(c *Client) { c.origin = origin }
}

// WithAdminToken authenticates the admin routes (simulations, prune) with a
// bearer token.
func WithAdminToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default 10s-timeout HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetries retries reads up to n times on network errors and 5xx
// answers, waiting per b between attempts. Commands are never retried.
func WithRetries(n int, b BackoffStrategy) Option {
	return func(c *Client) {
		c.retries = n
		c.backoff = b
	}
}

// NewClient creates a new client.
// endpoint defaults to "http://127.0.0.1:8090" if empty.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8090"
	}
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff: DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	err := c.get(ctx, "/v1/health", &status)
	return status, err
}

// Create starts a new session.
func (c *Client) Create(ctx context.Context) (puzzle.State, error) {
	var st puzzle.State
	err := c.do(ctx, http.MethodPost, "/v1/sessions", nil, http.StatusCreated, &st)
	return st, err
}

// Get returns the current state of a session.
func (c *Client) Get(ctx context.Context, id string) (puzzle.State, error) {
	var st puzzle.State
	err := c.get(ctx, "/v1/sessions/"+url.PathEscape(id), &st)
	return st, err
}

// List returns the IDs of all sessions.
func (c *Client) List(ctx context.Context) ([]string, error) {
	var list sessionList
	err := c.get(ctx, "/v1/sessions", &list)
	return list.Sessions, err
}

// Delete removes a session.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

// Apply sends one command. A refused command comes back as an *APIError
// that unwraps to the matching puzzle error.
func (c *Client) Apply(ctx context.Context, id string, cmd puzzle.Command) (puzzle.Outcome, puzzle.State, error) {
	var resp commandResponse
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/commands", newCommandRequest(cmd), http.StatusOK, &resp)
	return resp.Outcome, resp.Session, err
}

// Check validates the active stage and returns its verdict.
func (c *Client) Check(ctx context.Context, id string) (puzzle.Outcome, error) {
	out, _, err := c.Apply(ctx, id, puzzle.Check())
	return out, err
}

// Palette lists the spawnable blocks.
func (c *Client) Palette(ctx context.Context) ([]puzzle.PaletteEntry, error) {
	var entries []puzzle.PaletteEntry
	err := c.get(ctx, "/v1/palette", &entries)
	return entries, err
}

// Reference fetches the reference topology of a stage.
func (c *Client) Reference(ctx context.Context, stage puzzle.Stage) (puzzle.Topology, error) {
	var ref puzzle.Topology
	err := c.get(ctx, "/v1/reference/"+url.PathEscape(string(stage)), &ref)
	return ref, err
}

// Graph fetches the node/edge projection of a session.
func (c *Client) Graph(ctx context.Context, id string) (*graph.Graph, error) {
	var g graph.Graph
	if err := c.get(ctx, "/v1/sessions/"+url.PathEscape(id)+"/graph", &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Events fetches journaled events, newest first.
func (c *Client) Events(ctx context.Context, opts EventsOptions) ([]Event, error) {
	q := url.Values{}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	q.Set("limit", strconv.Itoa(opts.Limit))
	if opts.SessionID != "" {
		q.Set("session_id", opts.SessionID)
	}
	if len(opts.Types) > 0 {
		q.Set("type", strings.Join(opts.Types, ","))
	}
	var events []Event
	err := c.get(ctx, "/v1/events?"+q.Encode(), &events)
	return events, err
}

// Simulate runs a built-in scenario by name, or s when it is non-nil, on the
// daemon.
func (c *Client) Simulate(ctx context.Context, name string, s *simulation.Scenario) (simulation.SimulationResult, error) {
	var res simulation.SimulationResult
	err := c.do(ctx, http.MethodPost, "/v1/simulations", simulationRequest{Name: name, Scenario: s}, http.StatusOK, &res)
	return res, err
}

// Report downloads a CSV or JSON report of the journal. The body is returned
// as served.
func (c *Client) Report(ctx context.Context, opts ReportOptions) ([]byte, error) {
	q := url.Values{}
	if opts.Type != "" {
		q.Set("type", opts.Type)
	}
	if opts.Format != "" {
		q.Set("format", opts.Format)
	}
	if opts.SessionID != "" {
		q.Set("session_id", opts.SessionID)
	}
	if !opts.From.IsZero() {
		q.Set("from", opts.From.UTC().Format(time.RFC3339))
	}
	if !opts.To.IsZero() {
		q.Set("to", opts.To.UTC().Format(time.RFC3339))
	}
	path := "/v1/reports"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var body []byte
	err := c.get(ctx, path, &body)
	return body, err
}

// Prune drops journaled events older than retention and returns how many
// went. A daemon configured with an archive directory archives them first.
func (c *Client) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	var resp pruneResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/prune", pruneRequest{Retention: retention.String()}, http.StatusOK, &resp)
	return resp.PrunedCount, err
}

// get performs an idempotent read, retrying transient failures.
func (c *Client) get(ctx context.Context, path string, out any) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.do(ctx, http.MethodGet, path, nil, http.StatusOK, out)
		if err == nil || attempt >= c.retries || !transient(err) {
			return err
		}
		select {
		case <-time.After(c.backoff.Next(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func transient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.origin != "" {
		req.Header.Set(OriginHeader, c.origin)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("unexpected_status_%d", resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		if *raw, err = io.ReadAll(resp.Body); err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
