package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vscript/internal/codec"
	"github.com/roach88/vscript/internal/debug"
)

func TestPut_AssignsIncreasingSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a, err := s.Put(ctx, createTestRecord("a.vsb"))
	require.NoError(t, err)
	b, err := s.Put(ctx, createTestRecord("b.vsb"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.Seq)
	assert.Equal(t, int64(2), b.Seq)
}

func TestPut_ReplacesExisting(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, createTestRecord("a.vsb"))
	require.NoError(t, err)

	rec := createTestRecord("a.vsb")
	rec.Data = []byte("new")
	rec.Summary = Summary{Nodes: 4}
	_, err = s.Put(ctx, rec)
	require.NoError(t, err)

	got, err := s.Get(ctx, "a.vsb")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got.Data)
	assert.Equal(t, 4, got.Summary.Nodes)
	assert.Equal(t, int64(2), got.Seq)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Get(context.Background(), "missing.vsb")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestList_OrderedBySeqAndOmitsData(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"c.vsb", "a.vsb", "b.vsb"} {
		_, err := s.Put(ctx, createTestRecord(p))
		require.NoError(t, err)
	}
	// Rewriting moves a record to the end.
	_, err := s.Put(ctx, createTestRecord("c.vsb"))
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	var paths []string
	for _, rec := range list {
		paths = append(paths, rec.Path)
		assert.Nil(t, rec.Data)
	}
	assert.Equal(t, []string{"a.vsb", "b.vsb", "c.vsb"}, paths)
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, createTestRecord("a.vsb"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "a.vsb"))

	_, err = s.Get(ctx, "a.vsb")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a.vsb"), ErrNotFound)
}

func TestSaveLoadProgram(t *testing.T) {
	for _, format := range []codec.Format{codec.FormatBinary, codec.FormatText} {
		t.Run(string(format), func(t *testing.T) {
			s := createTestStore(t)
			ctx := context.Background()
			p := createTestProgram(t, "uid://library")

			rec, err := SaveProgram(ctx, s, "res/player.vs", p.Snapshot(), format)
			require.NoError(t, err)
			assert.Equal(t, "uid://library", rec.UID)
			assert.Equal(t, "Node", rec.BaseClass)
			assert.Equal(t, Summary{Graphs: 1, Nodes: 2, Connections: 1, Variables: 1, Signals: 1}, rec.Summary)

			loaded, log, err := LoadProgram(ctx, s, "res/player.vs")
			require.NoError(t, err)
			assert.Zero(t, log.Len())

			snap := loaded.Snapshot()
			assert.Equal(t, "uid://library", snap.UID())
			assert.Equal(t, p.Snapshot().Connections(), snap.Connections())
			assert.Equal(t, p.Snapshot().NodeIDs(), snap.NodeIDs())
		})
	}
}

func TestLoadProgram_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, _, err := LoadProgram(context.Background(), s, "missing.vs")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadProgram_CorruptData(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, createTestRecord("bad.vsb"))
	require.NoError(t, err)

	_, _, err = LoadProgram(ctx, s, "bad.vsb")
	require.Error(t, err)
	assert.ErrorIs(t, err, codec.ErrBadMagic)
}

func TestBreakpoints_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := debug.Breakpoint{Owner: "player", NodeID: 3}
	b := debug.Breakpoint{Owner: "", NodeID: 7}
	require.NoError(t, s.SaveBreakpoint(ctx, a, true))
	require.NoError(t, s.SaveBreakpoint(ctx, b, true))
	require.NoError(t, s.SaveBreakpoint(ctx, b, false))

	got, err := s.LoadBreakpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[debug.Breakpoint]bool{a: true, b: false}, got)
}

func TestSummary_JSON(t *testing.T) {
	data, err := marshalSummary(Summary{Graphs: 2, Nodes: 5})
	require.NoError(t, err)
	assert.Equal(t, `{"graphs":2,"nodes":5,"connections":0,"functions":0,"variables":0,"signals":0}`, data)

	got, err := unmarshalSummary(data)
	require.NoError(t, err)
	assert.Equal(t, Summary{Graphs: 2, Nodes: 5}, got)

	empty, err := unmarshalSummary("{}")
	require.NoError(t, err)
	assert.Equal(t, Summary{}, empty)

	_, err = unmarshalSummary("{")
	assert.Error(t, err)
}
