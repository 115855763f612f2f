// Package redis implements the program library on Redis.
//
// Each program is a hash under <prefix>program:<path>. A sorted set scored
// by the write sequence indexes every path, and breakpoints live in one hash.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/roach88/vscript/internal/codec"
	"github.com/roach88/vscript/internal/debug"
	"github.com/roach88/vscript/internal/store"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "vscript:"

// Store implements store.ProgramStore and debug.BreakpointStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var (
	_ store.ProgramStore    = (*Store)(nil)
	_ debug.BreakpointStore = (*Store)(nil)
)

type Option func(*Store)

// WithTTL sets the expiration for stored programs. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store connected to address.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(path string) string {
	return s.prefix + "program:" + path
}

func (s *Store) indexKey() string {
	return s.prefix + "programs"
}

func (s *Store) seqKey() string {
	return s.prefix + "seq"
}

func (s *Store) breakpointsKey() string {
	return s.prefix + "breakpoints"
}

// Put stores rec, replacing any previous version at the same path.
func (s *Store) Put(ctx context.Context, rec store.Record) (store.Record, error) {
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return store.Record{}, fmt.Errorf("put program: next seq: %w", err)
	}
	rec.Seq = seq

	summary, err := marshalSummary(rec.Summary)
	if err != nil {
		return store.Record{}, fmt.Errorf("put program: %w", err)
	}

	key := s.key(rec.Path)
	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"uid", rec.UID,
			"base_class", rec.BaseClass,
			"format", string(rec.Format),
			"data", rec.Data,
			"summary", summary,
			"seq", seq,
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: float64(seq), Member: rec.Path})
		return nil
	})
	if err != nil {
		return store.Record{}, fmt.Errorf("put program: %w", err)
	}
	return rec, nil
}

// Get returns the program stored at path.
func (s *Store) Get(ctx context.Context, path string) (store.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(path)).Result()
	if err != nil {
		return store.Record{}, fmt.Errorf("get program: %w", err)
	}
	if len(fields) == 0 {
		return store.Record{}, fmt.Errorf("%w: %s", store.ErrNotFound, path)
	}
	rec, err := recordFromHash(path, fields)
	if err != nil {
		return store.Record{}, err
	}
	rec.Data = []byte(fields["data"])
	return rec, nil
}

// List returns every stored program without its encoded bytes, ordered by
// write sequence. Index entries whose program expired are pruned.
func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	paths, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}

	records := []store.Record{}
	if len(paths) == 0 {
		return records, nil
	}

	cmds := make([]*backend.SliceCmd, len(paths))
	_, err = s.client.Pipelined(ctx, func(pipe backend.Pipeliner) error {
		for i, p := range paths {
			cmds[i] = pipe.HMGet(ctx, s.key(p), "uid", "base_class", "format", "summary", "seq")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}

	var stale []any
	for i, p := range paths {
		vals := cmds[i].Val()
		if len(vals) == 0 || vals[4] == nil {
			stale = append(stale, p)
			continue
		}
		fields := map[string]string{
			"uid":        asString(vals[0]),
			"base_class": asString(vals[1]),
			"format":     asString(vals[2]),
			"summary":    asString(vals[3]),
			"seq":        asString(vals[4]),
		}
		rec, err := recordFromHash(p, fields)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune index: %w", err)
		}
	}
	return records, nil
}

// Delete removes the program stored at path.
func (s *Store) Delete(ctx context.Context, path string) error {
	var del *backend.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		del = pipe.Del(ctx, s.key(path))
		pipe.ZRem(ctx, s.indexKey(), path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete program: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, path)
	}
	return nil
}

// SaveBreakpoint records whether a breakpoint is enabled.
func (s *Store) SaveBreakpoint(ctx context.Context, bp debug.Breakpoint, enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	if err := s.client.HSet(ctx, s.breakpointsKey(), breakpointField(bp), v).Err(); err != nil {
		return fmt.Errorf("save breakpoint: %w", err)
	}
	return nil
}

// LoadBreakpoints returns every persisted breakpoint with its enabled flag.
func (s *Store) LoadBreakpoints(ctx context.Context) (map[debug.Breakpoint]bool, error) {
	fields, err := s.client.HGetAll(ctx, s.breakpointsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load breakpoints: %w", err)
	}
	out := make(map[debug.Breakpoint]bool, len(fields))
	for f, v := range fields {
		bp, err := parseBreakpointField(f)
		if err != nil {
			return nil, fmt.Errorf("load breakpoints: %w", err)
		}
		out[bp] = v == "1"
	}
	return out, nil
}

// Ping checks the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// breakpointField encodes a breakpoint as "<node>:<owner>". The node id
// never contains a colon, so owners may.
func breakpointField(bp debug.Breakpoint) string {
	return strconv.Itoa(bp.NodeID) + ":" + bp.Owner
}

func parseBreakpointField(f string) (debug.Breakpoint, error) {
	id, owner, ok := strings.Cut(f, ":")
	if !ok {
		return debug.Breakpoint{}, fmt.Errorf("malformed breakpoint field %q", f)
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return debug.Breakpoint{}, fmt.Errorf("malformed breakpoint field %q: %w", f, err)
	}
	return debug.Breakpoint{Owner: owner, NodeID: n}, nil
}

func recordFromHash(path string, fields map[string]string) (store.Record, error) {
	seq, err := strconv.ParseInt(fields["seq"], 10, 64)
	if err != nil {
		return store.Record{}, fmt.Errorf("program %s: bad seq: %w", path, err)
	}
	summary, err := unmarshalSummary(fields["summary"])
	if err != nil {
		return store.Record{}, fmt.Errorf("program %s: %w", path, err)
	}
	return store.Record{
		Path:      path,
		UID:       fields["uid"],
		BaseClass: fields["base_class"],
		Format:    codec.Format(fields["format"]),
		Summary:   summary,
		Seq:       seq,
	}, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func marshalSummary(s store.Summary) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	return string(data), nil
}

func unmarshalSummary(data string) (store.Summary, error) {
	var s store.Summary
	if data == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return store.Summary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return s, nil
}
