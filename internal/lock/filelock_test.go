package lock

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLockAcquireRelease(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "update.lock")

	l := NewFileLock(path)
	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Release(ctx))

	// Reacquirable after release.
	ok, err = l.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(ctx))
}

func TestFileLockExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "update.lock")

	first := NewFileLock(path)
	ok, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	defer first.Release(ctx)

	second := NewFileLock(path)
	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire a held lock")
}

func TestDefaultLockPath(t *testing.T) {
	path := DefaultLockPath("cloudmarketwatch-update")
	assert.Contains(t, path, "cloudmarketwatch-update.lock")
}
