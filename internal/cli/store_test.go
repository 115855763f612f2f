package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vscript/internal/codec"
	"github.com/roach88/vscript/internal/program"
	"github.com/roach88/vscript/internal/store"
	"github.com/roach88/vscript/internal/testutil"
)

func redisRoot(t *testing.T, format string) (*RootOptions, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	opts := testRoot(t, format)
	opts.Config.Store.Driver = "redis"
	opts.Config.Store.RedisAddr = mr.Addr()
	return opts, mr
}

func TestStoreLifecycle(t *testing.T) {
	backends := map[string]func(t *testing.T) *RootOptions{
		"sqlite": func(t *testing.T) *RootOptions { return testRoot(t, "text") },
		"redis": func(t *testing.T) *RootOptions {
			opts, _ := redisRoot(t, "text")
			return opts
		},
	}

	for name, newRoot := range backends {
		t.Run(name, func(t *testing.T) {
			root := newRoot(t)
			dir := t.TempDir()
			file := writeTestProgram(t, dir, "player.vst")

			out, err := execute(t, NewStoreCommand(root), "put", file, "--path", "game/player", "--as", "text")
			require.NoError(t, err)
			assert.Contains(t, out, "✓ stored game/player (text,")

			_, err = execute(t, NewStoreCommand(root), "put", file)
			require.NoError(t, err)

			out, err = execute(t, NewStoreCommand(root), "list")
			require.NoError(t, err)
			assert.Contains(t, out, "   1  game/player ")
			assert.Contains(t, out, "   2  player ")
			assert.Contains(t, out, "uid://cli")

			out, err = execute(t, NewStoreCommand(root), "get", "game/player")
			require.NoError(t, err)
			want, err := os.ReadFile(file)
			require.NoError(t, err)
			assert.Equal(t, string(want), out)

			binary := filepath.Join(dir, "fetched.vsb")
			_, err = execute(t, NewStoreCommand(root), "get", "game/player", "-o", binary)
			require.NoError(t, err)
			f, err := os.Open(binary)
			require.NoError(t, err)
			defer f.Close()
			p, _, err := codec.Load(f)
			require.NoError(t, err)
			assert.Equal(t, "uid://cli", p.Snapshot().UID())

			out, err = execute(t, NewStoreCommand(root), "rm", "game/player")
			require.NoError(t, err)
			assert.Contains(t, out, "✓ removed game/player")

			out, err = execute(t, NewStoreCommand(root), "get", "game/player")
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, ErrCodeNotFound)

			_, err = execute(t, NewStoreCommand(root), "rm", "game/player")
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestStoreListJSON(t *testing.T) {
	root, _ := redisRoot(t, "json")

	out, err := execute(t, NewStoreCommand(root), "list")
	require.NoError(t, err)
	var empty struct {
		Data []store.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &empty))
	assert.Empty(t, empty.Data)

	file := writeTestProgram(t, t.TempDir(), "player.vsb")
	_, err = execute(t, NewStoreCommand(root), "put", file, "--path", "b")
	require.NoError(t, err)
	_, err = execute(t, NewStoreCommand(root), "put", file, "--path", "a")
	require.NoError(t, err)

	out, err = execute(t, NewStoreCommand(root), "list")
	require.NoError(t, err)
	var resp struct {
		Data []store.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "b", resp.Data[0].Path)
	assert.Equal(t, "a", resp.Data[1].Path)
	assert.Equal(t, codec.FormatBinary, resp.Data[0].Format)
	assert.Equal(t, 10, resp.Data[0].Summary.Nodes)
	assert.Less(t, resp.Data[0].Seq, resp.Data[1].Seq)
}

func TestStorePutAssignsUID(t *testing.T) {
	p := program.New("Node")
	file := saveProgram(t, p, filepath.Join(t.TempDir(), "anon.vst"))

	opts := &StoreOptions{RootOptions: testRoot(t, "json"), UIDs: testutil.NewFixedUIDGenerator("uid://anon")}
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)

	require.NoError(t, runStorePut(opts, file, cmd))
	var resp struct {
		Data store.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "anon", resp.Data.Path)
	assert.Equal(t, "uid://anon-1", resp.Data.UID)
}

func TestStoreErrors(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		root := testRoot(t, "text")
		root.Config.Store.Driver = "etcd"
		out, err := execute(t, NewStoreCommand(root), "list")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, ErrCodeStore)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		root, mr := redisRoot(t, "text")
		mr.Close()
		_, err := execute(t, NewStoreCommand(root), "list")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("bad --as", func(t *testing.T) {
		file := writeTestProgram(t, t.TempDir(), "player.vst")
		_, err := execute(t, NewStoreCommand(testRoot(t, "text")), "put", file, "--as", "yaml")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
