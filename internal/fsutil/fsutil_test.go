package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	root := filepath.Join("project", "root")
	tests := []struct {
		in   string
		want string
	}{
		{"assets/logo.png", filepath.Join(root, "assets", "logo.png")},
		{"./assets/../logo.png", filepath.Join(root, "logo.png")},
		{"/assets/logo.png", filepath.Join(root, "assets", "logo.png")},
		{"a//b", filepath.Join(root, "a", "b")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Resolve(root, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Escapes(t *testing.T) {
	for _, p := range []string{"../secret", "a/../../secret", "/.."} {
		_, err := Resolve("root", p)
		assert.ErrorIs(t, err, ErrOutsideRoot, p)
	}
}

func TestResolve_Empty(t *testing.T) {
	_, err := Resolve("root", "")
	assert.Error(t, err)

	_, err = Resolve("root", "a/..")
	assert.Error(t, err)
}

func TestWriteFile_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	require.NoError(t, WriteFile(path, []byte("first")))
	require.NoError(t, WriteFile(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files should remain")
}

func TestAtomicFile_AbortKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, WriteFile(path, []byte("promoted")))

	f, err := Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte("partial"))
	require.NoError(t, err)
	f.Abort()
	f.Abort()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "promoted", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAtomicFile_DigestMatchesHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")

	f, err := Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = f.Write([]byte("world"))
	require.NoError(t, err)
	digest := f.Digest()
	require.NoError(t, f.Commit())
	assert.Error(t, f.Commit())

	got, size, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, digest, got)
	assert.Equal(t, int64(11), size)
	assert.Equal(t, int64(11), f.Size())
	assert.Equal(t, HashBytes([]byte("hello world")), got)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	assert.False(t, Exists(path))
	require.NoError(t, WriteFile(path, nil))
	assert.True(t, Exists(path))
	assert.False(t, Exists(dir))
}
