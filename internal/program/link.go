package program

import (
	"fmt"
	"slices"

	"github.com/roach88/vscript/internal/ir"
)

// Link connects an output pin to an input pin. The arguments may be given in
// either order. Linking a data input that already has a source replaces the
// old link, so a data input never has more than one upstream connection.
// Linking two already-connected pins is a no-op.
func (p *Program) Link(a, b PinRef) error {
	return p.edit(func(s *Snapshot) ([]Change, error) {
		from, to, err := checkLink(s, a, b)
		if err != nil {
			return nil, err
		}
		toPin, _ := s.Pin(to)
		if slices.Contains(toPin.links, from) {
			return nil, nil
		}
		var changes []Change
		if toPin.Kind == Data && len(toPin.links) > 0 {
			changes = append(changes, unlink(s, toPin.links[0], to))
		}
		fromPin, _ := s.Pin(from)
		fromPin.links = append(fromPin.links, to)
		toPin.links = append(toPin.links, from)
		c := connectionOf(from, to)
		s.conns = append(s.conns, c)
		return append(changes, Change{Kind: ChangeLinked, NodeID: from.Node, Connection: c}), nil
	})
}

// CanLink reports whether Link(a, b) would succeed, without modifying the
// program.
func (s *Snapshot) CanLink(a, b PinRef) error {
	_, _, err := checkLink(s, a, b)
	return err
}

func checkLink(s *Snapshot, a, b PinRef) (from, to PinRef, err error) {
	pa, ok := s.Pin(a)
	if !ok {
		return from, to, fmt.Errorf("%w: %s", ErrPinNotFound, a)
	}
	pb, ok := s.Pin(b)
	if !ok {
		return from, to, fmt.Errorf("%w: %s", ErrPinNotFound, b)
	}
	if a.Dir == b.Dir {
		return from, to, fmt.Errorf("%w: %s and %s", ErrSameDirection, a, b)
	}
	if pa.Kind != pb.Kind {
		return from, to, fmt.Errorf("%w: %s is %s, %s is %s", ErrKindMismatch, a, pa.Kind, b, pb.Kind)
	}
	from, to = a, b
	fromPin, toPin := pa, pb
	if a.Dir == Input {
		from, to = b, a
		fromPin, toPin = pb, pa
	}
	if from.Node == to.Node && fromPin.Kind == Data {
		return from, to, fmt.Errorf("%w: %s", ErrSelfLink, from)
	}
	if fromPin.Kind == Data && !ir.CanConvert(fromPin.Type, toPin.Type) {
		return from, to, fmt.Errorf("%w: %s (%s) into %s (%s)", ErrTypeMismatch, from, fromPin.Type, to, toPin.Type)
	}
	return from, to, nil
}

// Unlink removes the connection between an output and an input pin, given in
// either order.
func (p *Program) Unlink(a, b PinRef) error {
	return p.edit(func(s *Snapshot) ([]Change, error) {
		from, to := a, b
		if a.Dir == Input {
			from, to = b, a
		}
		fromPin, ok := s.Pin(from)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPinNotFound, from)
		}
		if _, ok := s.Pin(to); !ok {
			return nil, fmt.Errorf("%w: %s", ErrPinNotFound, to)
		}
		if !slices.Contains(fromPin.links, to) {
			return nil, fmt.Errorf("%w: %s and %s", ErrNotConnected, from, to)
		}
		return []Change{unlink(s, from, to)}, nil
	})
}

// UnlinkAll removes every connection touching the pin.
func (p *Program) UnlinkAll(ref PinRef) error {
	return p.edit(func(s *Snapshot) ([]Change, error) {
		if _, ok := s.Pin(ref); !ok {
			return nil, fmt.Errorf("%w: %s", ErrPinNotFound, ref)
		}
		return unlinkAll(s, ref), nil
	})
}

func unlinkAll(s *Snapshot, ref PinRef) []Change {
	p, _ := s.Pin(ref)
	var changes []Change
	for _, other := range slices.Clone(p.links) {
		if ref.Dir == Output {
			changes = append(changes, unlink(s, ref, other))
		} else {
			changes = append(changes, unlink(s, other, ref))
		}
	}
	return changes
}

// unlink drops one connection from the flat list and both adjacency caches.
// Callers have checked that it exists.
func unlink(s *Snapshot, from, to PinRef) Change {
	if fp, ok := s.Pin(from); ok {
		fp.links = slices.DeleteFunc(fp.links, func(r PinRef) bool { return r == to })
	}
	if tp, ok := s.Pin(to); ok {
		tp.links = slices.DeleteFunc(tp.links, func(r PinRef) bool { return r == from })
	}
	c := connectionOf(from, to)
	s.conns = slices.DeleteFunc(s.conns, func(x Connection) bool { return x == c })
	return Change{Kind: ChangeUnlinked, NodeID: from.Node, Connection: c}
}
