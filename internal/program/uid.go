package program

import (
	"strings"

	"github.com/google/uuid"
)

// UIDScheme prefixes every program uid.
const UIDScheme = "uid://"

// UIDGenerator produces program uids.
type UIDGenerator interface {
	Generate() string
}

// UUIDv7UIDs generates "uid://<uuidv7>" uids.
//
// Thread-safety: UUIDv7UIDs is stateless and safe for concurrent use.
type UUIDv7UIDs struct{}

// Generate creates a new uid. Panics if UUID generation fails.
func (UUIDv7UIDs) Generate() string {
	return UIDScheme + uuid.Must(uuid.NewV7()).String()
}

// IsUID reports whether s has the uid scheme and a non-empty body.
func IsUID(s string) bool {
	return strings.HasPrefix(s, UIDScheme) && len(s) > len(UIDScheme)
}

// EnsureUID assigns a uid from gen when the program has none and returns
// the program's uid.
func (p *Program) EnsureUID(gen UIDGenerator) string {
	if uid := p.Snapshot().UID(); uid != "" {
		return uid
	}
	uid := gen.Generate()
	p.SetUID(uid)
	return uid
}
