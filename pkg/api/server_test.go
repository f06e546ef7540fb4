package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/graph"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
	"github.com/rmax-ai/transformer-puzzle/pkg/store"
)

var quietLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// newTestServer wires a server to an in-memory manager journaling into a
// temporary SQLite store.
func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	j, err := store.NewStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	m := game.NewManager(nil, game.WithJournal(j), game.WithLogger(quietLogger))
	return NewServer(m, j, quietLogger, ""), j
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v (body %q)", v, err, w.Body.String())
	}
	return v
}

func createSession(t *testing.T, h http.Handler) puzzle.State {
	t.Helper()
	w := do(t, h, "POST", "/v1/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[puzzle.State](t, w)
}

func command(t *testing.T, h http.Handler, id string, cmd puzzle.Command, headers ...string) CommandResponse {
	t.Helper()
	w := do(t, h, "POST", "/v1/sessions/"+id+"/commands", NewCommandRequest(cmd), headers...)
	if w.Code != http.StatusOK {
		t.Fatalf("%s: expected 200, got %d: %s", cmd.Kind, w.Code, w.Body.String())
	}
	return decode[CommandResponse](t, w)
}

// build lays out the reference solution of stage at column x.
func build(t *testing.T, h http.Handler, id string, stage puzzle.Stage, x int) []puzzle.BlockID {
	t.Helper()
	ref, _ := puzzle.Reference(stage)
	ids := make([]puzzle.BlockID, len(ref.Sequence))
	for i, l := range ref.Sequence {
		ids[i] = command(t, h, id, puzzle.PlaceBlock(l, puzzle.Point{X: x, Y: 1200 - i*100})).Outcome.Block
	}
	for _, e := range ref.Edges {
		command(t, h, id, puzzle.Connect(
			puzzle.Endpoint{Block: ids[e.Source], Side: puzzle.SideTop},
			puzzle.Endpoint{Block: ids[e.Target], Side: puzzle.SideBottom},
		))
	}
	return ids
}

func TestSecureHeaders(t *testing.T) {
	// Create a handler that just returns 200 OK
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	secureHandler := withSecureHeaders(handler)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	secureHandler.ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"Content-Security-Policy":   "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:;",
		"Strict-Transport-Security": "max-age=63072000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Referrer-Policy":           "no-referrer",
		"X-XSS-Protection":          "1; mode=block",
	}

	for key, expected := range expectedHeaders {
		got := w.Header().Get(key)
		if got != expected {
			t.Errorf("Header %s: expected %q, got %q", key, expected, got)
		}
	}
}

func TestHealthAndTraceID(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s.Handler(), "GET", "/v1/health", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"status":"ok"}` {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Trace-ID"); len(got) != 32 {
		t.Errorf("expected generated 32-char trace id, got %q", got)
	}

	w = do(t, s.Handler(), "GET", "/v1/health", nil, "X-Trace-ID", "trace-123")
	if got := w.Header().Get("X-Trace-ID"); got != "trace-123" {
		t.Errorf("expected trace id to be echoed, got %q", got)
	}
}

func TestPaletteAndReference(t *testing.T) {
	s, _ := newTestServer(t)

	palette := decode[[]puzzle.PaletteEntry](t, do(t, s.Handler(), "GET", "/v1/palette", nil))
	if len(palette) != 9 {
		t.Errorf("expected 9 palette entries, got %d", len(palette))
	}

	w := do(t, s.Handler(), "GET", "/v1/reference/decoder", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	ref := decode[puzzle.Topology](t, w)
	if len(ref.Sequence) != 10 || len(ref.Edges) != 12 {
		t.Errorf("decoder reference = %d blocks %d edges", len(ref.Sequence), len(ref.Edges))
	}

	w = do(t, s.Handler(), "GET", "/v1/reference/middle", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown stage, got %d", w.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	st := createSession(t, h)
	if st.ID == "" || st.Stage != puzzle.StageEncoder {
		t.Fatalf("new session = %+v", st)
	}

	list := decode[SessionList](t, do(t, h, "GET", "/v1/sessions", nil))
	if len(list.Sessions) != 1 || list.Sessions[0] != st.ID {
		t.Errorf("sessions = %v", list.Sessions)
	}

	resp := command(t, h, st.ID, puzzle.PlaceBlock(puzzle.LabelInputEmbedding, puzzle.Point{X: 100, Y: 500}))
	if resp.Outcome.Block == "" || len(resp.Session.Canvas.Blocks) != 1 {
		t.Errorf("place response = %+v", resp)
	}

	got := decode[puzzle.State](t, do(t, h, "GET", "/v1/sessions/"+st.ID, nil))
	if len(got.Canvas.Blocks) != 1 || got.Canvas.Blocks[0].Rect.X != 100 {
		t.Errorf("stored session = %+v", got.Canvas)
	}

	w := do(t, h, "DELETE", "/v1/sessions/"+st.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", w.Code)
	}
	w = do(t, h, "GET", "/v1/sessions/"+st.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", w.Code)
	}
	if e := decode[ErrorResponse](t, w); e.Error != "session_not_found" {
		t.Errorf("error = %+v", e)
	}
	w = do(t, h, "DELETE", "/v1/sessions/"+st.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", w.Code)
	}
}

func TestFullGameOverHTTP(t *testing.T) {
	s, j := newTestServer(t)
	h := s.Handler()
	id := createSession(t, h).ID

	encIDs := build(t, h, id, puzzle.StageEncoder, 300)
	resp := command(t, h, id, puzzle.Check())
	if !resp.Outcome.Advanced || resp.Session.Stage != puzzle.StageDecoder {
		t.Fatalf("encoder check = %+v", resp.Outcome)
	}

	decIDs := build(t, h, id, puzzle.StageDecoder, 700)

	// Without the cross edge the decoder is refused and the graph says why.
	resp = command(t, h, id, puzzle.Check())
	if resp.Outcome.Verdict.Kind != puzzle.VerdictMissingCrossStageEdge {
		t.Fatalf("expected missing cross edge, got %s", resp.Outcome.Verdict.Kind)
	}
	g := decode[graph.Graph](t, do(t, h, "GET", "/v1/sessions/"+id+"/graph", nil))
	if cross := g.EdgesOfType(graph.EdgeMissingCross); len(cross) != 1 || cross[0].ToID != string(decIDs[4]) {
		t.Errorf("missing cross edges = %+v", cross)
	}

	command(t, h, id, puzzle.Connect(
		puzzle.Endpoint{Block: encIDs[5], Side: puzzle.SideRight},
		puzzle.Endpoint{Block: decIDs[4], Side: puzzle.SideLeft},
	), OriginHeader, "tui")
	resp = command(t, h, id, puzzle.Check())
	if resp.Outcome.Verdict.Kind != puzzle.VerdictAllComplete || !resp.Outcome.Completed || !resp.Session.Completed {
		t.Fatalf("final check = %+v", resp.Outcome)
	}

	// Journal
	w := do(t, h, "GET", "/v1/events?session_id="+id+"&type=validation_performed", nil)
	events := decode[[]*store.Event](t, w)
	if len(events) != 3 {
		t.Fatalf("expected 3 validation events, got %d", len(events))
	}
	if events[0].Source.OriginKind != "api" || events[0].Source.OriginID == "" {
		t.Errorf("origin = %+v", events[0].Source)
	}

	arrows, err := j.QueryEvents(t.Context(), store.EventFilter{
		SessionID:  id,
		EventTypes: []store.EventType{store.EventTypeArrowConnected},
		Limit:      1,
	})
	if err != nil || len(arrows) != 1 || arrows[0].Source.OriginKind != "tui" {
		t.Errorf("last arrow event = %+v (err %v)", arrows, err)
	}

	// Report
	w = do(t, h, "GET", "/v1/reports?type=validations&session_id="+id, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("report = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".csv") {
		t.Errorf("disposition = %s", w.Header().Get("Content-Disposition"))
	}
	rows, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 || rows[3][3] != "all_complete" {
		t.Errorf("report rows = %v", rows)
	}
}

func TestCommandErrors(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	id := createSession(t, h).ID
	blk := command(t, h, id, puzzle.PlaceBlock(puzzle.LabelLinear, puzzle.Point{X: 10, Y: 10})).Outcome.Block

	tests := []struct {
		name    string
		path    string
		body    any
		status  int
		code    string
		reason  string
		details string
	}{
		{"bad json", "", `{"kind":`, 400, "invalid_json_body", "", ""},
		{"missing kind", "", map[string]any{}, 400, "invalid_command", "", "Kind: field is required"},
		{"place without label", "", map[string]any{"kind": "place_block", "at": map[string]int{"x": 1, "y": 1}}, 400, "invalid_command", "", "Label: field is required for place_block"},
		{"move without position", "", map[string]any{"kind": "move_block", "block": blk}, 400, "invalid_command", "", "At: field is required for move_block"},
		{"connect without target", "", map[string]any{"kind": "connect", "from": map[string]string{"block": string(blk), "side": "top"}}, 400, "invalid_command", "", "To: field is required for connect"},
		{"bad side", "", map[string]any{"kind": "connect", "from": map[string]string{"block": string(blk), "side": "up"}, "to": map[string]string{"block": string(blk), "side": "top"}}, 400, "invalid_command", "", "Side: must be one of [top right bottom left]"},
		{"negative position", "", map[string]any{"kind": "move_block", "block": blk, "at": map[string]int{"x": -5, "y": 1}}, 400, "invalid_command", "", "X: must be at least 0"},
		{"unknown label", "", NewCommandRequest(puzzle.PlaceBlock("Convolution", puzzle.Point{})), 409, "command_rejected", "unknown_label", ""},
		{"unknown block", "", NewCommandRequest(puzzle.DiscardBlock("blk-99")), 409, "command_rejected", "unknown_block", ""},
		{"self connection", "", NewCommandRequest(puzzle.Connect(
			puzzle.Endpoint{Block: blk, Side: puzzle.SideTop},
			puzzle.Endpoint{Block: blk, Side: puzzle.SideTop},
		)), 409, "command_rejected", "self_connection", ""},
		{"unknown kind", "", map[string]any{"kind": "rotate"}, 409, "command_rejected", "unknown_command", ""},
		{"unknown session", "/v1/sessions/nope/commands", NewCommandRequest(puzzle.Check()), 404, "session_not_found", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = "/v1/sessions/" + id + "/commands"
			}
			w := do(t, h, "POST", path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			e := decode[ErrorResponse](t, w)
			if e.Error != tt.code || e.Reason != tt.reason {
				t.Errorf("error = %+v", e)
			}
			if tt.details != "" && e.Details != tt.details {
				t.Errorf("details = %q, want %q", e.Details, tt.details)
			}
		})
	}

	// Refused commands leave the session as it was.
	st := decode[puzzle.State](t, do(t, h, "GET", "/v1/sessions/"+id, nil))
	if len(st.Canvas.Blocks) != 1 || len(st.Canvas.Arrows) != 0 {
		t.Errorf("session changed by refused commands: %+v", st.Canvas)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), "PUT", "/v1/sessions", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	id := createSession(t, h).ID
	command(t, h, id, puzzle.Check())

	w := do(t, h, "GET", "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "tpuzzle_validations_total") {
		t.Errorf("metrics = %d, missing tpuzzle_validations_total", w.Code)
	}
}
