package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vscript/internal/debug"
)

func queryStrings(t *testing.T, db *sql.DB, query string, args ...any) []string {
	t.Helper()
	rows, err := db.Query(query, args...)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	return out
}

func userVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var v int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&v))
	return v
}

func TestOpen_NewLibraryGetsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, userVersion(t, s.db))

	tables := queryStrings(t, s.db, "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	assert.Equal(t, []string{"breakpoints", "programs"}, tables)

	columns := queryStrings(t, s.db, "SELECT name FROM pragma_table_info('programs') ORDER BY cid")
	assert.Equal(t, []string{"path", "uid", "base_class", "format", "data", "summary", "seq"}, columns)
	columns = queryStrings(t, s.db, "SELECT name FROM pragma_table_info('breakpoints') ORDER BY cid")
	assert.Equal(t, []string{"owner", "node_id", "enabled", "seq"}, columns)

	assert.Contains(t, queryStrings(t, s.db, "SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'programs'"),
		"idx_programs_seq")
}

func TestOpen_ConnectionSettings(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, []string{"wal"}, queryStrings(t, s.db, "PRAGMA journal_mode"))
	assert.Equal(t, []string{"5000"}, queryStrings(t, s.db, "PRAGMA busy_timeout"))
	assert.Equal(t, []string{"1"}, queryStrings(t, s.db, "PRAGMA synchronous"), "NORMAL")
}

func TestOpen_ReopenKeepsProgramsAndBreakpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Put(ctx, createTestRecord("player.vsb"))
	require.NoError(t, err)
	require.NoError(t, s.SaveBreakpoint(ctx, debug.Breakpoint{Owner: "/root/Player", NodeID: 4}, true))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Get(ctx, "player.vsb")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Seq)

	bps, err := s.LoadBreakpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[debug.Breakpoint]bool{{Owner: "/root/Player", NodeID: 4}: true}, bps)

	// the next write continues the sequence instead of restarting it
	rec, err = s.Put(ctx, createTestRecord("enemy.vsb"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Seq)
}

func TestOpen_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "library.db"))
	assert.Error(t, err)
}

func TestSchema_Constraints(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name  string
		query string
	}{
		{"unknown program format", `INSERT INTO programs (path, format, data, seq) VALUES ('a.vsb', 'json', x'00', 1)`},
		{"enabled outside 0/1", `INSERT INTO breakpoints (owner, node_id, enabled, seq) VALUES ('', 1, 2, 1)`},
		{"duplicate breakpoint", `INSERT INTO breakpoints (owner, node_id, enabled, seq) VALUES ('', 1, 1, 1), ('', 1, 0, 2)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.db.Exec(tt.query)
			assert.Error(t, err)
		})
	}
}
