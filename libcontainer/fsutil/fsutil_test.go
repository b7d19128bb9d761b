package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMkdirAllAtCreatesNestedPath(t *testing.T) {
	tmp := t.TempDir()
	root, err := OpenRoot(tmp)
	require.NoError(t, err)
	defer root.Close()

	h, err := MkdirAllAt(root, "a/b/c", 0o755)
	require.NoError(t, err)
	defer h.Close()

	info, err := os.Stat(filepath.Join(tmp, "a", "b", "c"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestMkdirAllAtIdempotentOnExistingPrefix(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, "a", "b"), 0o755))

	root, err := OpenRoot(tmp)
	require.NoError(t, err)
	defer root.Close()

	h, err := MkdirAllAt(root, "a/b/c", 0o755)
	require.NoError(t, err, "an already-existing prefix must not be an error")
	defer h.Close()

	info, err := os.Stat(filepath.Join(tmp, "a", "b", "c"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestTouchAtCreatesFileOnce(t *testing.T) {
	tmp := t.TempDir()
	root, err := OpenRoot(tmp)
	require.NoError(t, err)
	defer root.Close()

	h1, err := TouchAt(root, "marker")
	require.NoError(t, err)
	h1.Close()

	h2, err := TouchAt(root, "marker")
	require.NoError(t, err, "touching an existing file must not fail")
	h2.Close()

	_, err = os.Stat(filepath.Join(tmp, "marker"))
	require.NoError(t, err)
}

func TestOpenAtNotExist(t *testing.T) {
	tmp := t.TempDir()
	root, err := OpenRoot(tmp)
	require.NoError(t, err)
	defer root.Close()

	_, err = OpenAt(root, "missing", unix.O_PATH)
	require.Error(t, err)
	require.True(t, IsNotExist(err))
}

func TestIsPermission(t *testing.T) {
	require.True(t, IsPermission(unix.EPERM))
	require.False(t, IsPermission(unix.ENOENT))
}
