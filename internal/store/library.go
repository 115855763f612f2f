package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/vscript/internal/codec"
	"github.com/roach88/vscript/internal/diag"
	"github.com/roach88/vscript/internal/program"
)

// ErrNotFound is returned when no program is stored under a path.
var ErrNotFound = errors.New("store: program not found")

// Record is one stored program.
type Record struct {
	Path      string       `json:"path"`
	UID       string       `json:"uid"`
	BaseClass string       `json:"base_class"`
	Format    codec.Format `json:"format"`
	Data      []byte       `json:"-"`
	Summary   Summary      `json:"summary"`

	// Seq is the logical write sequence assigned by the store.
	Seq int64 `json:"seq"`
}

// ProgramStore is the program library contract shared by the SQLite and
// Redis backends.
type ProgramStore interface {
	// Put stores rec under rec.Path, replacing any previous version, and
	// returns it with its assigned Seq.
	Put(ctx context.Context, rec Record) (Record, error)

	// Get returns the record at path or ErrNotFound.
	Get(ctx context.Context, path string) (Record, error)

	// List returns every record without its Data, ordered by Seq then Path.
	List(ctx context.Context) ([]Record, error)

	// Delete removes the record at path or returns ErrNotFound.
	Delete(ctx context.Context, path string) error

	Close() error
}

// SaveProgram encodes snap in the given format and stores it under path.
func SaveProgram(ctx context.Context, ps ProgramStore, path string, snap *program.Snapshot, format codec.Format, opts ...codec.Option) (Record, error) {
	var buf bytes.Buffer
	opts = append(opts, codec.WithFormat(format), codec.WithPath(path))
	if err := codec.Save(&buf, snap, opts...); err != nil {
		return Record{}, fmt.Errorf("encode %s: %w", path, err)
	}
	rec, err := ps.Put(ctx, Record{
		Path:      path,
		UID:       snap.UID(),
		BaseClass: snap.BaseClass(),
		Format:    format,
		Data:      buf.Bytes(),
		Summary:   Summarize(snap),
	})
	if err != nil {
		return Record{}, err
	}
	slog.Info("program stored", "path", path, "uid", rec.UID, "format", format, "bytes", len(rec.Data), "seq", rec.Seq)
	return rec, nil
}

// LoadProgram fetches and decodes the program stored under path.
func LoadProgram(ctx context.Context, ps ProgramStore, path string) (*program.Program, *diag.Log, error) {
	rec, err := ps.Get(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	p, log, err := codec.Load(bytes.NewReader(rec.Data), codec.WithPath(path))
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return p, log, nil
}
