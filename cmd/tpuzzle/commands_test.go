package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/transformer-puzzle/pkg/api"
	"github.com/rmax-ai/transformer-puzzle/pkg/archive"
	"github.com/rmax-ai/transformer-puzzle/pkg/blob"
	"github.com/rmax-ai/transformer-puzzle/pkg/client"
	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
	"github.com/rmax-ai/transformer-puzzle/pkg/simulation"
	"github.com/rmax-ai/transformer-puzzle/pkg/store"
)

func newDaemon(t *testing.T) string {
	t.Helper()
	return newDaemonWithToken(t, "")
}

func newDaemonWithToken(t *testing.T, token string) string {
	t.Helper()
	quiet := slog.New(slog.NewJSONHandler(io.Discard, nil))
	j, err := store.NewStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	m := game.NewManager(nil, game.WithJournal(j), game.WithLogger(quiet))
	srv := httptest.NewServer(api.NewServer(m, j, quiet, token).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestReferenceCmd(t *testing.T) {
	out, err := run(t, "reference", "encoder")
	require.NoError(t, err)
	assert.Contains(t, out, "encoder (read bottom to top)")
	assert.Contains(t, out, string(puzzle.LabelPositionalEncoding))
	assert.NotContains(t, out, "decoder")

	out, err = run(t, "reference", "--json")
	require.NoError(t, err)
	dec := json.NewDecoder(strings.NewReader(out))
	var stages []puzzle.Stage
	for dec.More() {
		var ref puzzle.Topology
		require.NoError(t, dec.Decode(&ref))
		stages = append(stages, ref.Stage)
	}
	assert.Equal(t, []puzzle.Stage{puzzle.StageEncoder, puzzle.StageDecoder}, stages)

	_, err = run(t, "reference", "middle")
	assert.Error(t, err)
}

func TestSessionCmds(t *testing.T) {
	daemon := newDaemon(t)

	out, err := run(t, "--api", daemon, "session", "new")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = run(t, "--api", daemon, "session", "place", id, "Input Embedding", "300", "1200")
	require.NoError(t, err)
	assert.Equal(t, "place_block blk-1\n", out)

	_, err = run(t, "--api", daemon, "session", "place", id, "positional  ENCODING", "300", "1100")
	require.NoError(t, err)

	out, err = run(t, "--api", daemon, "session", "connect", id, "blk-1", "blk-2")
	require.NoError(t, err)
	assert.Equal(t, "connect arr-1\n", out)

	out, err = run(t, "--api", daemon, "session", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "stage encoder, in progress")
	assert.Contains(t, out, "arr-1: blk-1.top -> blk-2.bottom")

	out, err = run(t, "--api", daemon, "session", "check", id)
	assert.ErrorIs(t, err, errVerdictFailed)
	assert.Contains(t, out, "count_mismatch")

	_, err = run(t, "--api", daemon, "session", "place", id, "Banana", "0", "0")
	assert.ErrorContains(t, err, "unknown_label")

	_, err = run(t, "--api", daemon, "session", "move", id, "blk-1", "x", "0")
	assert.ErrorContains(t, err, `invalid x "x"`)

	out, err = run(t, "--api", daemon, "events", "--session", id, "--type", "validation_performed")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "validation_performed")
	assert.Contains(t, lines[1], "cli")

	out, err = run(t, "--api", daemon, "session", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	_, err = run(t, "--api", daemon, "session", "delete", id)
	require.NoError(t, err)
	_, err = run(t, "--api", daemon, "session", "show", id)
	assert.ErrorIs(t, err, client.ErrSessionNotFound)
}

func TestSimCmd(t *testing.T) {
	out, err := run(t, "sim", "--list")
	require.NoError(t, err)
	for _, name := range simulation.ScenarioNames() {
		assert.Contains(t, out, name)
	}

	out, err = run(t, "sim", "short_encoder")
	require.NoError(t, err)
	assert.Contains(t, out, "Simulation Report: short_encoder [PASS]")
	assert.Contains(t, out, "count_mismatch")

	_, err = run(t, "sim", "nope")
	assert.ErrorContains(t, err, "known: solve")

	// A scenario expecting the wrong verdict fails the run.
	path := filepath.Join(t.TempDir(), "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: wrong\nplayers: 1\nseed: 7\nexpect: count_mismatch\n"), 0644))
	report := filepath.Join(t.TempDir(), "report.json")
	out, err = run(t, "sim", "--scenario", path, "--json", "--out", report)
	assert.ErrorIs(t, err, errSimulationFailed)
	assert.Contains(t, out, "Report written to")

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var res simulation.SimulationResult
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, "wrong", res.ScenarioName)
	assert.Equal(t, puzzle.VerdictAllComplete, res.Players[0].Final)
}

func TestSimCmd_Remote(t *testing.T) {
	daemon := newDaemon(t)
	out, err := run(t, "--api", daemon, "sim", "--remote", "solve")
	require.NoError(t, err)
	assert.Contains(t, out, "Simulation Report: solve [PASS]")
}

func TestArchiveCmd(t *testing.T) {
	dir := t.TempDir()
	j, err := store.NewStore(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, j.AppendEvent(t.Context(), &store.Event{
		EventID: "evt-1", EventType: store.EventTypeSessionCreated, SchemaVersion: store.SchemaVersion,
		TsEvent: old, TsIngest: old, SessionID: "s1", Stage: "encoder",
		Source: store.EventSource{OriginKind: "cli"},
	}))
	archiveDir := filepath.Join(dir, "archive")
	n, err := archive.New(j, blob.NewLocalStore(archiveDir)).Archive(t.Context(), time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	out, err := run(t, "archive", "list", "--dir", archiveDir)
	require.NoError(t, err)
	key := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(key, archive.Prefix))

	out, err = run(t, "archive", "show", key, "--dir", archiveDir)
	require.NoError(t, err)
	assert.Contains(t, out, "session_created")
	assert.Contains(t, out, "s1")

	_, err = run(t, "archive", "show", "events/missing.jsonl.gz", "--dir", archiveDir)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestReportCmd(t *testing.T) {
	daemon := newDaemon(t)
	out, err := run(t, "--api", daemon, "session", "new")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	_, err = run(t, "--api", daemon, "session", "check", id)
	require.ErrorIs(t, err, errVerdictFailed)

	out, err = run(t, "--api", daemon, "report", "--session", id)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "timestamp,session_id,stage,verdict"))
	assert.Contains(t, lines[1], "count_mismatch")

	out, err = run(t, "--api", daemon, "report", "events", "--format", "json", "--session", id)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 2)

	_, err = run(t, "--api", daemon, "report", "--from", "yesterday")
	assert.ErrorContains(t, err, "invalid --from")
}

func TestAdminCmd(t *testing.T) {
	daemon := newDaemonWithToken(t, "s3cret")

	_, err := run(t, "--api", daemon, "--token", "", "admin", "prune", "--retention", "1h")
	assert.ErrorContains(t, err, "unauthorized")

	out, err := run(t, "--api", daemon, "--token", "s3cret", "admin", "prune", "--retention", "1h")
	require.NoError(t, err)
	assert.Equal(t, "Pruned 0 events older than 1h0m0s\n", out)

	_, err = run(t, "--api", daemon, "--token", "s3cret", "admin", "prune", "--retention", "0s")
	assert.ErrorContains(t, err, "--retention must be positive")

	_, err = run(t, "--api", daemon, "--token", "", "sim", "--remote", "solve")
	assert.ErrorContains(t, err, "unauthorized")
	out, err = run(t, "--api", daemon, "--token", "s3cret", "sim", "--remote", "solve")
	require.NoError(t, err)
	assert.Contains(t, out, "[PASS]")
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tpuzzle "+Version))
}
