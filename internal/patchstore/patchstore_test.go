package patchstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"applypatch/internal/objectstore"
	"applypatch/internal/patchstore"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := patchstore.NewMemory()

	ok, err := m.Exists(ctx, "a.txt")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Write(ctx, "a.txt", []byte("hello")))
	data, err := m.Read(ctx, "a.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, m.Move(ctx, "a.txt", "b.txt"))
	ok, err = m.Exists(ctx, "a.txt")
	require.NoError(t, err)
	require.False(t, ok)
	data, err = m.Read(ctx, "b.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, m.SetPermissions(ctx, "b.txt", 0o600))
	mode, ok, err := m.GetPermissions(ctx, "b.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(0o600), mode)

	require.NoError(t, m.Remove(ctx, "b.txt"))
	ok, err = m.Exists(ctx, "b.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryReadMissingReturnsNotFound(t *testing.T) {
	m := patchstore.NewMemory()
	_, err := m.Read(context.Background(), "missing.txt")
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	local := patchstore.NewLocal(dir)

	require.NoError(t, local.Write(ctx, "nested/file.txt", []byte("content")))
	data, err := local.Read(ctx, "nested/file.txt")
	require.NoError(t, err)
	require.Equal(t, "content", string(data))

	ok, err := local.Exists(ctx, "nested/file.txt")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, local.SetPermissions(ctx, "nested/file.txt", 0o640))
	mode, ok, err := local.GetPermissions(ctx, "nested/file.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(0o640), mode)

	require.NoError(t, local.Move(ctx, "nested/file.txt", "renamed.txt"))
	ok, err = local.Exists(ctx, "nested/file.txt")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = os.Stat(filepath.Join(dir, "renamed.txt"))
	require.NoError(t, err)

	require.NoError(t, local.Remove(ctx, "renamed.txt"))
	ok, err = local.Exists(ctx, "renamed.txt")
	require.NoError(t, err)
	require.False(t, ok)

	// Remove on an absent path is a no-op, not an error.
	require.NoError(t, local.Remove(ctx, "renamed.txt"))
}

func TestShadowLeavesBaseUntouched(t *testing.T) {
	ctx := context.Background()
	base := patchstore.NewMemory()
	base.Seed("greet.txt", []byte("hi\n"), 0o644)

	shadow := patchstore.NewShadow(base)

	require.NoError(t, shadow.Write(ctx, "greet.txt", []byte("bye\n")))
	data, err := shadow.Read(ctx, "greet.txt")
	require.NoError(t, err)
	require.Equal(t, "bye\n", string(data))

	// The base store never saw the write.
	baseData, err := base.Read(ctx, "greet.txt")
	require.NoError(t, err)
	require.Equal(t, "hi\n", string(baseData))

	require.NoError(t, shadow.Move(ctx, "greet.txt", "renamed.txt"))
	ok, err := shadow.Exists(ctx, "greet.txt")
	require.NoError(t, err)
	require.False(t, ok)
	data, err = shadow.Read(ctx, "renamed.txt")
	require.NoError(t, err)
	require.Equal(t, "bye\n", string(data))

	// base is still untouched by the rename.
	ok, err = base.Exists(ctx, "greet.txt")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestS3RoundTripAgainstMemoryObjectStore(t *testing.T) {
	ctx := context.Background()
	backing := objectstore.NewMemoryStore()
	s3store := patchstore.NewS3WithObjectStore(backing)

	ok, err := s3store.Exists(ctx, "a.txt")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s3store.Write(ctx, "a.txt", []byte("hello")))
	data, err := s3store.Read(ctx, "a.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	// Mode bits have no meaning on an object store.
	_, ok, err = s3store.GetPermissions(ctx, "a.txt")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s3store.SetPermissions(ctx, "a.txt", 0o600))

	require.NoError(t, s3store.Move(ctx, "a.txt", "b.txt"))
	ok, err = s3store.Exists(ctx, "a.txt")
	require.NoError(t, err)
	require.False(t, ok)
	data, err = s3store.Read(ctx, "b.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, s3store.Remove(ctx, "b.txt"))
	ok, err = backing.Exists(ctx, "b.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestS3ReadMissingReturnsIOError(t *testing.T) {
	s3store := patchstore.NewS3WithObjectStore(objectstore.NewMemoryStore())
	_, err := s3store.Read(context.Background(), "missing.txt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "object not found")
}

func TestSandboxedRejectsEscape(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sandboxed := patchstore.NewSandboxed(patchstore.NewLocal(dir), dir)

	require.NoError(t, sandboxed.Write(ctx, "inside.txt", []byte("ok")))
	ok, err := sandboxed.Exists(ctx, "inside.txt")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = sandboxed.Read(ctx, "../outside.txt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "outside the sandbox")
}
