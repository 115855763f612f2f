// Package codec persists programs.
//
// A program is first mapped to a Document, a format-neutral tree of typed
// objects holding tagged ir.Values, and the Document is then written in one
// of two formats: a compact binary format with a string table and an object
// index, or a line-oriented text format meant for diffing. Both carry the
// same tree and round-trip every value losslessly.
//
// Loading never leaves state behind. Each call owns its string table and
// back-reference cache, so a failed load cannot affect the next one.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/roach88/vscript/internal/diag"
	"github.com/roach88/vscript/internal/program"
)

// Format selects the on-disk representation.
type Format string

const (
	FormatBinary Format = "binary"
	FormatText   Format = "text"
)

// File extensions for the two formats.
const (
	ExtBinary = ".vsb"
	ExtText   = ".vst"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatBinary:
		return FormatBinary, nil
	case FormatText:
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown format %q (want binary or text)", s)
}

// FormatForPath picks a format from a file extension. Unknown extensions
// fall back to binary.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ExtText) {
		return FormatText
	}
	return FormatBinary
}

type settings struct {
	format     Format
	bigEndian  bool
	wideFloats bool
	path       string
}

func defaults() settings {
	return settings{format: FormatBinary, wideFloats: true}
}

// Option configures Save and Load.
type Option func(*settings)

// WithFormat selects the format Save writes. Load detects the format from
// the input and ignores this option.
func WithFormat(f Format) Option {
	return func(s *settings) { s.format = f }
}

// WithBigEndian makes Save write big-endian binary output.
func WithBigEndian(on bool) Option {
	return func(s *settings) { s.bigEndian = on }
}

// WithWideFloats controls whether real-valued fields are written as float64
// (the default) or narrowed to float32. Colors are always float32.
func WithWideFloats(on bool) Option {
	return func(s *settings) { s.wideFloats = on }
}

// WithPath names the resource being loaded or saved.
func WithPath(path string) Option {
	return func(s *settings) { s.path = path }
}

// Encode writes a document.
func Encode(w io.Writer, doc *Document, opts ...Option) error {
	s := defaults()
	for _, o := range opts {
		o(&s)
	}
	var err error
	switch s.format {
	case FormatText:
		err = encodeText(w, doc)
	default:
		err = encodeBinary(w, doc, s)
	}
	observe(s.format, "encode", err)
	return err
}

// Decode reads a document in either format. Binary input is recognized by
// its magic; anything else is parsed as text.
func Decode(r io.Reader, opts ...Option) (*Document, error) {
	s := defaults()
	for _, o := range opts {
		o(&s)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	format := sniff(data)
	var doc *Document
	switch format {
	case FormatBinary:
		doc, err = decodeBinary(data, s.path)
	default:
		doc, err = decodeText(data, s.path)
	}
	observe(format, "decode", err)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func sniff(data []byte) Format {
	if bytes.HasPrefix(data, magic[:]) {
		return FormatBinary
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("[")) || bytes.HasPrefix(trimmed, []byte(";")) {
		return FormatText
	}
	// Short or unrecognized input goes to the binary reader, which reports
	// BAD_MAGIC.
	return FormatBinary
}

// Save writes the program snapshot.
func Save(w io.Writer, snap *program.Snapshot, opts ...Option) error {
	doc, err := ToDocument(snap)
	if err != nil {
		return err
	}
	if err := Encode(w, doc, opts...); err != nil {
		return err
	}
	slog.Debug("program saved", "uid", snap.UID(), "nodes", snap.NodeCount())
	return nil
}

// Load reads a program. Legacy repairs are logged and recorded in the
// returned diagnostic log; the program is nil whenever err is not.
func Load(r io.Reader, opts ...Option) (*program.Program, *diag.Log, error) {
	doc, err := Decode(r, opts...)
	if err != nil {
		return nil, nil, err
	}
	log := &diag.Log{}
	p, err := FromDocument(doc, log)
	if err != nil {
		return nil, nil, err
	}
	snap := p.Snapshot()
	slog.Debug("program loaded",
		"path", doc.Path,
		"uid", snap.UID(),
		"format", doc.Format,
		"nodes", snap.NodeCount(),
		"repairs", log.Len(),
	)
	return p, log, nil
}
