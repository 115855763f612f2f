package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/vscript/internal/codec"
	"github.com/roach88/vscript/internal/debug"
)

// Get returns the program stored at path.
func (s *Store) Get(ctx context.Context, path string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT path, uid, base_class, format, data, summary, seq
		FROM programs
		WHERE path = ?
	`, path)

	var (
		rec         Record
		format      string
		summaryJSON string
	)
	err := row.Scan(&rec.Path, &rec.UID, &rec.BaseClass, &format, &rec.Data, &summaryJSON, &rec.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get program: %w", err)
	}
	rec.Format = codec.Format(format)
	if rec.Summary, err = unmarshalSummary(summaryJSON); err != nil {
		return Record{}, fmt.Errorf("get program %s: %w", path, err)
	}
	return rec, nil
}

// List returns every stored program without its encoded bytes.
// Results are ordered deterministically: ORDER BY seq ASC, path ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the library is empty.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, uid, base_class, format, summary, seq
		FROM programs
		ORDER BY seq ASC, path COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query programs: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec         Record
			format      string
			summaryJSON string
		)
		if err := rows.Scan(&rec.Path, &rec.UID, &rec.BaseClass, &format, &summaryJSON, &rec.Seq); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		rec.Format = codec.Format(format)
		if rec.Summary, err = unmarshalSummary(summaryJSON); err != nil {
			return nil, fmt.Errorf("program %s: %w", rec.Path, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate programs: %w", err)
	}
	return records, nil
}

// LoadBreakpoints returns every persisted breakpoint with its enabled flag.
func (s *Store) LoadBreakpoints(ctx context.Context) (map[debug.Breakpoint]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, node_id, enabled
		FROM breakpoints
		ORDER BY seq ASC, owner COLLATE BINARY ASC, node_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query breakpoints: %w", err)
	}
	defer rows.Close()

	out := make(map[debug.Breakpoint]bool)
	for rows.Next() {
		var (
			bp      debug.Breakpoint
			enabled int
		)
		if err := rows.Scan(&bp.Owner, &bp.NodeID, &enabled); err != nil {
			return nil, fmt.Errorf("scan breakpoint: %w", err)
		}
		out[bp] = enabled != 0
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate breakpoints: %w", err)
	}
	return out, nil
}
