package program

import "errors"

// Sentinel errors returned by the edit primitives.
var (
	ErrPinNotFound     = errors.New("pin not found")
	ErrNodeNotFound    = errors.New("node not found")
	ErrGraphNotFound   = errors.New("graph not found")
	ErrSameDirection   = errors.New("pins have the same direction")
	ErrKindMismatch    = errors.New("cannot connect control and data pins")
	ErrTypeMismatch    = errors.New("pin types are not compatible")
	ErrDuplicateNodeID = errors.New("duplicate node id")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrNotConnected    = errors.New("pins are not connected")
	ErrNotFound        = errors.New("not found")
	ErrSelfLink        = errors.New("cannot connect a node to itself")
)
