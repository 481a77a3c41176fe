package mount

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalProvisionCreatesSessionDirectory(t *testing.T) {
	base := t.TempDir()
	l := &Local{BaseDir: base}

	dir, err := l.Provision(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "sess-1"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLocalDeleteRemovesSessionDirectory(t *testing.T) {
	base := t.TempDir()
	l := &Local{BaseDir: base}

	dir, err := l.Provision(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))

	require.NoError(t, l.Delete(context.Background(), "sess-1"))
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestLocalResetRecreatesEmptyDirectory(t *testing.T) {
	base := t.TempDir()
	l := &Local{BaseDir: base}

	dir, err := l.Provision(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))

	reset, err := l.Reset(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, dir, reset)

	info, err := os.Stat(reset)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	entries, err := os.ReadDir(reset)
	require.NoError(t, err)
	require.Empty(t, entries, "reset must wipe the prior session's files")
}

func TestCopyReadonlyMountsCopiesFilesAndDirs(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("a"), 0o644))
	nested := filepath.Join(srcDir, "sub")
	require.NoError(t, os.Mkdir(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "b.txt"), []byte("b"), 0o644))

	singleFile := filepath.Join(t.TempDir(), "c.txt")
	require.NoError(t, os.WriteFile(singleFile, []byte("c"), 0o644))

	destDir := t.TempDir()
	err := CopyReadonlyMounts(map[string]string{
		srcDir:     "mounted-dir",
		singleFile: "c.txt",
	}, destDir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(destDir, "mounted-dir", "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "a", string(data))

	data, err = os.ReadFile(filepath.Join(destDir, "mounted-dir", "sub", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "b", string(data))

	data, err = os.ReadFile(filepath.Join(destDir, "c.txt"))
	require.NoError(t, err)
	require.Equal(t, "c", string(data))
}
