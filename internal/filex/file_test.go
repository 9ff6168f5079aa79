package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFile_CreatesParents(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "exports", "2025", "c1.md")

	require.NoError(t, WriteFile(path, []byte("# hello")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "# hello", string(got))

	fi, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.True(t, fi.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm()&0o700)
	}
}

func TestWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	require.NoError(t, WriteFile(path, []byte("first")))
	require.NoError(t, WriteFile(path, []byte("second")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(got))
}

func TestWriteFile_FailsIfParentIsFile(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "exports")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o660))

	err := WriteFile(filepath.Join(blocker, "c1.md"), []byte("x"))
	require.Error(t, err, "should fail when a file sits where the directory should be")
}
