// Package storetest holds the behaviour every game.SessionStore must share.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

// Run exercises a SessionStore implementation. newStore must return an
// empty store.
func Run(t *testing.T, newStore func(t *testing.T) game.SessionStore) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("LoadMissing", func(t *testing.T) { testLoadMissing(t, newStore(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("Isolation", func(t *testing.T) { testIsolation(t, newStore(t)) })
}

// playedState returns a session that has passed the encoder and has a few
// decoder blocks.
func playedState(t *testing.T, id string) puzzle.State {
	t.Helper()
	s := puzzle.NewSession(id)
	ref, _ := puzzle.Reference(puzzle.StageEncoder)
	ids := make([]puzzle.BlockID, len(ref.Sequence))
	for i, l := range ref.Sequence {
		out, err := s.Apply(puzzle.PlaceBlock(l, puzzle.Point{X: 300, Y: 900 - i*100}))
		require.NoError(t, err)
		ids[i] = out.Block
	}
	for _, e := range ref.Edges {
		_, err := s.Apply(puzzle.Connect(
			puzzle.Endpoint{Block: ids[e.Source], Side: puzzle.SideTop},
			puzzle.Endpoint{Block: ids[e.Target], Side: puzzle.SideBottom},
		))
		require.NoError(t, err)
	}
	out, err := s.Apply(puzzle.Check())
	require.NoError(t, err)
	require.True(t, out.Advanced)

	_, err = s.Apply(puzzle.PlaceBlock(puzzle.LabelOutputEmbedding, puzzle.Point{X: 700, Y: 900}))
	require.NoError(t, err)
	return s.State()
}

func testRoundTrip(t *testing.T, store game.SessionStore) {
	ctx := context.Background()
	st := playedState(t, "round-trip")

	require.NoError(t, store.Save(ctx, st))
	got, err := store.Load(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st, got)

	sess, err := puzzle.Restore(got)
	require.NoError(t, err)
	assert.Equal(t, puzzle.StageDecoder, sess.Stage())
	assert.Len(t, sess.Encoder().Blocks, 6)
}

func testLoadMissing(t *testing.T, store game.SessionStore) {
	_, err := store.Load(context.Background(), "missing")
	assert.True(t, errors.Is(err, game.ErrSessionNotFound), "got %v", err)
}

func testOverwrite(t *testing.T, store game.SessionStore) {
	ctx := context.Background()
	s := puzzle.NewSession("overwrite")
	require.NoError(t, store.Save(ctx, s.State()))

	_, err := s.Apply(puzzle.PlaceBlock(puzzle.LabelLinear, puzzle.Point{X: 10, Y: 10}))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, s.State()))

	got, err := store.Load(ctx, "overwrite")
	require.NoError(t, err)
	assert.Len(t, got.Canvas.Blocks, 1)
	assert.Equal(t, 1, got.NextBlock)
}

func testDelete(t *testing.T, store game.SessionStore) {
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, puzzle.NewSession("doomed").State()))
	require.NoError(t, store.Delete(ctx, "doomed"))

	_, err := store.Load(ctx, "doomed")
	assert.True(t, errors.Is(err, game.ErrSessionNotFound))
	assert.True(t, errors.Is(store.Delete(ctx, "doomed"), game.ErrSessionNotFound))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, "doomed")
}

func testList(t *testing.T, store game.SessionStore) {
	ctx := context.Background()
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.Save(ctx, puzzle.NewSession(id).State()))
	}
	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func testIsolation(t *testing.T, store game.SessionStore) {
	ctx := context.Background()
	st := playedState(t, "isolated")
	require.NoError(t, store.Save(ctx, st))

	// Mutating the caller's copy must not leak into the store.
	st.Canvas.Blocks[0].Label = puzzle.LabelSoftmax
	got, err := store.Load(ctx, "isolated")
	require.NoError(t, err)
	assert.Equal(t, puzzle.LabelOutputEmbedding, got.Canvas.Blocks[0].Label)

	got.Encoder.Blocks[0].Label = puzzle.LabelSoftmax
	again, err := store.Load(ctx, "isolated")
	require.NoError(t, err)
	assert.Equal(t, puzzle.LabelInputEmbedding, again.Encoder.Blocks[0].Label)
}
