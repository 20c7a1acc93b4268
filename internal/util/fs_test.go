package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveWithin(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, EnsureDir(filepath.Join(root, "03_leyes")))
	target := filepath.Join(root, "03_leyes", "ley.pdf")
	require.NoError(t, os.WriteFile(target, []byte("%PDF"), 0o644))

	got, err := ResolveWithin(root, filepath.ToSlash(target))
	require.NoError(t, err)
	require.Equal(t, target, got)

	_, err = ResolveWithin(root, filepath.ToSlash(filepath.Join(root, "..", "etc", "passwd")))
	require.ErrorIs(t, err, ErrUserInput)
}
