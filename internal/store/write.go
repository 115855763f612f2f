package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/vscript/internal/debug"
)

// nextSeq returns the next logical sequence number for table.
func nextSeq(ctx context.Context, tx *sql.Tx, table string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT COALESCE(MAX(seq), 0) + 1 FROM %s", table)).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

// Put stores a program record, replacing any previous version at the same
// path. The record is returned with its assigned sequence number.
func (s *Store) Put(ctx context.Context, rec Record) (Record, error) {
	summaryJSON, err := marshalSummary(rec.Summary)
	if err != nil {
		return Record{}, fmt.Errorf("put program: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("put program: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	rec.Seq, err = nextSeq(ctx, tx, "programs")
	if err != nil {
		return Record{}, fmt.Errorf("put program: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO programs
		(path, uid, base_class, format, data, summary, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			uid = excluded.uid,
			base_class = excluded.base_class,
			format = excluded.format,
			data = excluded.data,
			summary = excluded.summary,
			seq = excluded.seq
	`,
		rec.Path,
		rec.UID,
		rec.BaseClass,
		string(rec.Format),
		rec.Data,
		summaryJSON,
		rec.Seq,
	)
	if err != nil {
		return Record{}, fmt.Errorf("put program: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("put program: commit: %w", err)
	}
	return rec, nil
}

// Delete removes the program stored at path.
func (s *Store) Delete(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM programs WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("delete program: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete program: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return nil
}

// SaveBreakpoint records whether a breakpoint is enabled. Disabled
// breakpoints are kept so a session can restore them unticked.
func (s *Store) SaveBreakpoint(ctx context.Context, bp debug.Breakpoint, enabled bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save breakpoint: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := nextSeq(ctx, tx, "breakpoints")
	if err != nil {
		return fmt.Errorf("save breakpoint: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO breakpoints (owner, node_id, enabled, seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner, node_id) DO UPDATE SET
			enabled = excluded.enabled,
			seq = excluded.seq
	`, bp.Owner, bp.NodeID, boolToInt(enabled), seq)
	if err != nil {
		return fmt.Errorf("save breakpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save breakpoint: commit: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
