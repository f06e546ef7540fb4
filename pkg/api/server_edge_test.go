package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
	"github.com/rmax-ai/transformer-puzzle/pkg/simulation"
	"github.com/rmax-ai/transformer-puzzle/pkg/store"
)

// MockEvents is an EventStore with canned results.
type MockEvents struct {
	events  []*store.Event
	pruned  int64
	err     error
	filters []store.EventFilter
}

func (m *MockEvents) QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error) {
	m.filters = append(m.filters, filter)
	return m.events, m.err
}

func (m *MockEvents) PruneEvents(ctx context.Context, retention time.Duration) (int64, error) {
	return m.pruned, m.err
}

// MockManagerError fails every call with err, or panics when err is nil.
type MockManagerError struct {
	err error
}

func (m *MockManagerError) fail() error {
	if m.err == nil {
		panic("manager exploded")
	}
	return m.err
}

func (m *MockManagerError) Create(ctx context.Context) (puzzle.State, error) {
	return puzzle.State{}, m.fail()
}
func (m *MockManagerError) Get(ctx context.Context, id string) (puzzle.State, error) {
	return puzzle.State{}, m.fail()
}
func (m *MockManagerError) List(ctx context.Context) ([]string, error) { return nil, m.fail() }
func (m *MockManagerError) Delete(ctx context.Context, id string) error { return m.fail() }
func (m *MockManagerError) Apply(ctx context.Context, id string, cmd puzzle.Command) (puzzle.Outcome, puzzle.State, error) {
	return puzzle.Outcome{}, puzzle.State{}, m.fail()
}

func newMockServer(events EventStore) *Server {
	return NewServer(game.NewManager(nil, game.WithLogger(quietLogger)), events, quietLogger, "")
}

func TestJournalNotConfigured(t *testing.T) {
	s := NewServer(game.NewManager(nil, game.WithLogger(quietLogger)), nil, quietLogger, "")
	for _, tc := range []struct{ method, path string }{
		{"GET", "/v1/events"},
		{"GET", "/v1/reports"},
		{"POST", "/v1/admin/prune"},
	} {
		w := do(t, s.Handler(), tc.method, tc.path, `{"retention":"1h"}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: expected 503, got %d", tc.method, tc.path, w.Code)
		}
		if e := decode[ErrorResponse](t, w); e.Error != "journal_not_configured" {
			t.Errorf("%s: error = %+v", tc.path, e)
		}
	}

	// Sessions still work without a journal.
	createSession(t, s.Handler())
}

func TestHandleEvents_Filters(t *testing.T) {
	m := &MockEvents{}
	s := newMockServer(m)

	w := do(t, s.Handler(), "GET", "/v1/events?session_id=s1&limit=5000&type=block_placed,%20check", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("expected empty array, got %s", body)
	}
	f := m.filters[0]
	if f.SessionID != "s1" || f.Limit != 1000 || len(f.EventTypes) != 2 || f.EventTypes[1] != "check" {
		t.Errorf("filter = %+v", f)
	}

	do(t, s.Handler(), "GET", "/v1/events?limit=abc", nil)
	if m.filters[1].Limit != 50 {
		t.Errorf("expected default limit 50, got %d", m.filters[1].Limit)
	}
}

func TestHandleEvents_StoreError(t *testing.T) {
	s := newMockServer(&MockEvents{err: errors.New("disk full")})
	w := do(t, s.Handler(), "GET", "/v1/events", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 for store error, got %d", w.Code)
	}
}

func TestHandleReports_Errors(t *testing.T) {
	s := newMockServer(&MockEvents{})
	from := time.Now().Add(time.Hour).Format(time.RFC3339)
	to := time.Now().Format(time.RFC3339)

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"invalid format", "format=xml", "invalid_format"},
		{"invalid from", "from=yesterday", "invalid_from"},
		{"invalid to", "to=now", "invalid_to"},
		{"to before from", "from=" + from + "&to=" + to, "invalid_range"},
		{"invalid type", "type=usage", "invalid_report_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s.Handler(), "GET", "/v1/reports?"+tt.query, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if e := decode[ErrorResponse](t, w); e.Error != tt.code {
				t.Errorf("error = %+v, want %s", e, tt.code)
			}
		})
	}

	s = newMockServer(&MockEvents{err: errors.New("locked")})
	if w := do(t, s.Handler(), "GET", "/v1/reports", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for store error, got %d", w.Code)
	}
}

func TestHandleReports_JSON(t *testing.T) {
	m := &MockEvents{events: []*store.Event{{
		EventID:   "e1",
		EventType: store.EventTypeBlockPlaced,
		TsEvent:   time.Now(),
		SessionID: "s1",
		Payload:   []byte(`{"block":"blk-1"}`),
	}}}
	s := newMockServer(m)

	w := do(t, s.Handler(), "GET", "/v1/reports?type=events&format=json&session_id=s1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %s", ct)
	}
	if !strings.Contains(w.Body.String(), `"block_placed"`) {
		t.Errorf("body = %s", w.Body.String())
	}
	if f := m.filters[0]; f.SessionID != "s1" || f.To.Sub(f.From) != 24*time.Hour {
		t.Errorf("filter = %+v", f)
	}
}

func TestHandlePrune(t *testing.T) {
	s := newMockServer(&MockEvents{pruned: 7})

	w := do(t, s.Handler(), "POST", "/v1/admin/prune", `{"retention":"720h"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[map[string]any](t, w)
	if resp["pruned_count"] != float64(7) || resp["retention_used"] != "720h0m0s" {
		t.Errorf("resp = %v", resp)
	}

	for _, body := range []string{`{`, `{"retention":"soon"}`, `{"retention":"-1h"}`} {
		if w := do(t, s.Handler(), "POST", "/v1/admin/prune", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}

	s = newMockServer(&MockEvents{err: errors.New("prune error")})
	if w := do(t, s.Handler(), "POST", "/v1/admin/prune", `{"retention":"1h"}`); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 for prune error, got %d", w.Code)
	}
}

func TestAdminToken(t *testing.T) {
	s := newMockServer(&MockEvents{})
	s.SetAdminToken("s3cret")
	body := `{"retention":"1h"}`

	tests := []struct {
		name   string
		auth   string
		status int
		reason string
	}{
		{"missing", "", http.StatusUnauthorized, "missing_token"},
		{"format", "Basic s3cret", http.StatusUnauthorized, "invalid_token_format"},
		{"wrong", "Bearer guess", http.StatusUnauthorized, "invalid_token"},
		{"ok", "Bearer s3cret", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.auth != "" {
				headers = []string{"Authorization", tt.auth}
			}
			w := do(t, s.Handler(), "POST", "/v1/admin/prune", body, headers...)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			if tt.reason != "" {
				if e := decode[ErrorResponse](t, w); e.Reason != tt.reason {
					t.Errorf("reason = %s", e.Reason)
				}
			}
		})
	}

	// Player routes stay open.
	createSession(t, s.Handler())

	s.SetAdminToken("")
	if w := do(t, s.Handler(), "POST", "/v1/admin/prune", body); w.Code != http.StatusOK {
		t.Errorf("expected token check to be disabled, got %d", w.Code)
	}
}

func TestHandleSimulation(t *testing.T) {
	s, j := newTestServer(t)

	w := do(t, s.Handler(), "POST", "/v1/simulations", SimulationRequest{Name: "no_cross_attention"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[simulation.SimulationResult](t, w)
	if !res.Success || res.Expected != puzzle.VerdictMissingCrossStageEdge {
		t.Errorf("result = %+v", res)
	}

	events, err := j.QueryEvents(t.Context(), store.EventFilter{EventTypes: []store.EventType{store.EventTypeValidationPerformed}})
	if err != nil || len(events) != 2 || events[0].Source.OriginKind != "sim" {
		t.Errorf("journaled validations = %+v (err %v)", events, err)
	}

	inline := &simulation.Scenario{
		Name:    "inline",
		Players: 2,
		Seed:    11,
		Faults:  []simulation.Fault{{Kind: simulation.FaultSwapLabels, A: 0, B: 1}},
		Expect:  puzzle.VerdictLabelMismatch,
	}
	w = do(t, s.Handler(), "POST", "/v1/simulations", SimulationRequest{Scenario: inline})
	if res := decode[simulation.SimulationResult](t, w); !res.Success || len(res.Players) != 2 {
		t.Errorf("inline result = %+v", res)
	}

	list := decode[SessionList](t, do(t, s.Handler(), "GET", "/v1/sessions", nil))
	if len(list.Sessions) != 0 {
		t.Errorf("simulated sessions left behind: %v", list.Sessions)
	}
}

func TestHandleSimulation_Errors(t *testing.T) {
	s := newMockServer(nil)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"bad json", `[`, http.StatusBadRequest, "invalid_json_body"},
		{"empty", SimulationRequest{}, http.StatusBadRequest, "invalid_scenario"},
		{"too many players", SimulationRequest{Scenario: &simulation.Scenario{Players: 500}}, http.StatusBadRequest, "invalid_scenario"},
		{"bad fault", SimulationRequest{Scenario: &simulation.Scenario{Faults: []simulation.Fault{{Kind: "melt"}}}}, http.StatusBadRequest, "invalid_scenario"},
		{"unknown name", SimulationRequest{Name: "nope"}, http.StatusNotFound, "unknown_scenario"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s.Handler(), "POST", "/v1/simulations", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			if e := decode[ErrorResponse](t, w); e.Error != tt.code {
				t.Errorf("error = %+v", e)
			}
		})
	}
}

func TestManagerFailure(t *testing.T) {
	s := NewServer(&MockManagerError{err: errors.New("redis down")}, nil, quietLogger, "")
	for _, tc := range []struct{ method, path string }{
		{"POST", "/v1/sessions"},
		{"GET", "/v1/sessions"},
		{"GET", "/v1/sessions/x"},
		{"DELETE", "/v1/sessions/x"},
		{"GET", "/v1/sessions/x/graph"},
	} {
		w := do(t, s.Handler(), tc.method, tc.path, nil)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("%s %s: expected 500, got %d", tc.method, tc.path, w.Code)
		}
		if strings.Contains(w.Body.String(), "redis") {
			t.Errorf("%s %s: internal error leaked: %s", tc.method, tc.path, w.Body.String())
		}
	}
}

func TestPanicRecovery(t *testing.T) {
	s := NewServer(&MockManagerError{}, nil, quietLogger, "")
	w := do(t, s.Handler(), "GET", "/v1/sessions", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", w.Code)
	}
}

func TestNewServer_Defaults(t *testing.T) {
	s := NewServer(nil, nil, nil, "")
	if s.server.Addr != ":8090" {
		t.Errorf("Expected default addr :8090, got %s", s.server.Addr)
	}
	if s.logger == nil {
		t.Error("expected default logger")
	}
}

func TestServer_StartError(t *testing.T) {
	// Port -1 is invalid
	s := NewServer(nil, nil, quietLogger, ":-1")
	if err := s.Start(); err == nil {
		t.Error("Expected error starting on invalid port")
	}
}

func TestServer_StartTLS_Error(t *testing.T) {
	s := NewServer(nil, nil, quietLogger, ":0")
	s.SetTLS("invalid.crt", "invalid.key")
	if err := s.Start(); err == nil {
		t.Error("Expected error starting TLS with invalid certs")
	}
}

func TestServer_Stop(t *testing.T) {
	s := NewServer(nil, nil, quietLogger, ":0")
	// Stop without start should be fine
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
