// Package debug implements the breakpoint collaborator of the engine: a
// session that decides where chains suspend and lets an out-of-band client
// resume, single-step or cancel them.
package debug

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// State is the session's externally visible state.
type State int

const (
	StateRunning State = iota
	StateSuspended
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Action is what a client tells a suspended chain to do.
type Action string

const (
	ActionResume Action = "resume"
	ActionStep   Action = "step"
	ActionCancel Action = "cancel"
)

var (
	// ErrNotSuspended is returned by Resume, Step and Cancel when no chain
	// is waiting.
	ErrNotSuspended = errors.New("debug: no chain is suspended")

	// ErrCancelled is returned from Suspend when a client cancels the chain.
	ErrCancelled = errors.New("debug: chain cancelled")

	// ErrTerminated is returned from Suspend once the session has ended.
	ErrTerminated = errors.New("debug: session terminated")
)

// Breakpoint addresses one node of one owner. An empty Owner matches every
// owner.
type Breakpoint struct {
	Owner  string `json:"owner"`
	NodeID int    `json:"node"`
}

// BreakpointStore persists breakpoints across sessions. Optional.
type BreakpointStore interface {
	SaveBreakpoint(ctx context.Context, bp Breakpoint, enabled bool) error
	LoadBreakpoints(ctx context.Context) (map[Breakpoint]bool, error)
}

// Status is a point-in-time view of the session.
type Status struct {
	State       State        `json:"state"`
	Owner       string       `json:"owner,omitempty"`
	NodeID      int          `json:"node"`
	Stepping    bool         `json:"stepping"`
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// Session is safe for concurrent use: chains call ShouldBreak and Suspend
// from their own goroutines while a client drives Resume, Step and Cancel
// from another.
type Session struct {
	store BreakpointStore

	mu          sync.Mutex
	state       State
	at          Breakpoint
	stepping    bool
	breakpoints map[Breakpoint]bool
	pending     chan Action
	changed     chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithStore persists breakpoint edits.
func WithStore(store BreakpointStore) Option {
	return func(s *Session) { s.store = store }
}

// NewSession creates a running session with no breakpoints.
func NewSession(opts ...Option) *Session {
	s := &Session{
		breakpoints: make(map[Breakpoint]bool),
		changed:     make(chan struct{}),
		at:          Breakpoint{NodeID: -1},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the breakpoint table with the store's contents.
func (s *Session) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	bps, err := s.store.LoadBreakpoints(ctx)
	if err != nil {
		return fmt.Errorf("load breakpoints: %w", err)
	}
	if bps == nil {
		bps = make(map[Breakpoint]bool)
	}
	s.mu.Lock()
	s.breakpoints = bps
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// SetBreakpoint enables or disables a breakpoint. An explicit entry wins
// over the node's own breakpoint flag, so disabling a flagged node silences
// it.
func (s *Session) SetBreakpoint(ctx context.Context, bp Breakpoint, enabled bool) error {
	s.mu.Lock()
	s.breakpoints[bp] = enabled
	s.notifyLocked()
	s.mu.Unlock()
	slog.Debug("breakpoint set", "owner", bp.Owner, "node", bp.NodeID, "enabled", enabled)
	if s.store != nil {
		if err := s.store.SaveBreakpoint(ctx, bp, enabled); err != nil {
			return fmt.Errorf("save breakpoint: %w", err)
		}
	}
	return nil
}

// ShouldBreak implements engine.Debugger.
func (s *Session) ShouldBreak(owner string, nodeID int, flagged bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return false
	}
	if s.stepping {
		return true
	}
	if enabled, ok := s.breakpoints[Breakpoint{Owner: owner, NodeID: nodeID}]; ok {
		return enabled
	}
	if enabled, ok := s.breakpoints[Breakpoint{NodeID: nodeID}]; ok {
		return enabled
	}
	return flagged
}

// Suspend implements engine.Debugger. It blocks until a client resumes,
// steps or cancels, or until ctx is done.
func (s *Session) Suspend(ctx context.Context, owner string, nodeID int) error {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return ErrTerminated
	}
	// one suspension at a time: a second chain waits for the first to be
	// released
	for s.state == StateSuspended {
		wait := s.changed
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		if s.state == StateTerminated {
			s.mu.Unlock()
			return ErrTerminated
		}
	}
	ch := make(chan Action, 1)
	s.state = StateSuspended
	s.at = Breakpoint{Owner: owner, NodeID: nodeID}
	s.pending = ch
	s.notifyLocked()
	s.mu.Unlock()

	slog.Info("suspended", "owner", owner, "node", nodeID)

	var action Action
	select {
	case action = <-ch:
	case <-ctx.Done():
		s.release(ch, false)
		return ctx.Err()
	}
	s.release(ch, action == ActionStep)
	slog.Info("released", "owner", owner, "node", nodeID, "action", action)

	switch action {
	case ActionCancel:
		return ErrCancelled
	case "":
		return ErrTerminated
	}
	return nil
}

// release returns the session to running after the suspension owning ch
// ends. stepping arms a break before the next step of any chain.
func (s *Session) release(ch chan Action, stepping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != ch {
		return
	}
	s.pending = nil
	s.at = Breakpoint{NodeID: -1}
	s.stepping = stepping
	if s.state != StateTerminated {
		s.state = StateRunning
	}
	s.notifyLocked()
}

// Resume lets the suspended chain continue until the next breakpoint.
func (s *Session) Resume() error { return s.send(ActionResume) }

// Step lets the suspended chain take one step and suspend again.
func (s *Session) Step() error { return s.send(ActionStep) }

// Cancel abandons the suspended chain.
func (s *Session) Cancel() error { return s.send(ActionCancel) }

// Do dispatches an action by name.
func (s *Session) Do(a Action) error {
	switch a {
	case ActionResume, ActionStep, ActionCancel:
		return s.send(a)
	}
	return fmt.Errorf("debug: unknown action %q", a)
}

func (s *Session) send(a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSuspended || s.pending == nil {
		return ErrNotSuspended
	}
	select {
	case s.pending <- a:
		return nil
	default:
		return ErrNotSuspended
	}
}

// Terminate ends the session. A suspended chain is released with
// ErrTerminated and no further chain will suspend.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return
	}
	s.state = StateTerminated
	s.stepping = false
	if s.pending != nil {
		close(s.pending)
		s.pending = nil
	}
	s.notifyLocked()
}

// Status returns the current state and breakpoint table.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{State: s.state, Owner: s.at.Owner, NodeID: s.at.NodeID, Stepping: s.stepping}
	for bp, enabled := range s.breakpoints {
		if enabled {
			st.Breakpoints = append(st.Breakpoints, bp)
		}
	}
	slices.SortFunc(st.Breakpoints, func(a, b Breakpoint) int {
		return cmp.Or(cmp.Compare(a.Owner, b.Owner), cmp.Compare(a.NodeID, b.NodeID))
	})
	return st
}

// WaitFor blocks until the session reaches state or ctx is done.
func (s *Session) WaitFor(ctx context.Context, state State) (Status, error) {
	for {
		s.mu.Lock()
		if s.state == state {
			st := s.statusLocked()
			s.mu.Unlock()
			return st, nil
		}
		wait := s.changed
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return Status{}, ctx.Err()
		}
	}
}

func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
