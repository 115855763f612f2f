package program

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedUIDs string

func (f fixedUIDs) Generate() string { return string(f) }

func TestUUIDv7UIDs(t *testing.T) {
	uid := UUIDv7UIDs{}.Generate()
	require.True(t, IsUID(uid))

	parsed, err := uuid.Parse(strings.TrimPrefix(uid, UIDScheme))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestIsUID(t *testing.T) {
	assert.True(t, IsUID("uid://abc"))
	assert.False(t, IsUID("uid://"))
	assert.False(t, IsUID("res://abc"))
}

func TestEnsureUID(t *testing.T) {
	p := New("Node")
	assert.Equal(t, "uid://first", p.EnsureUID(fixedUIDs("uid://first")))
	assert.Equal(t, "uid://first", p.EnsureUID(fixedUIDs("uid://second")), "existing uid is kept")
	assert.Equal(t, "uid://first", p.Snapshot().UID())
}
