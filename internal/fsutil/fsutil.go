// Package fsutil provides the filesystem primitives shared by handlers and stores:
// root-confined path resolution, atomic replace-on-write and content hashing.
package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot indicates a path that lexically escapes the project root.
var ErrOutsideRoot = errors.New("path is outside the project root")

// HashPrefix is prepended to hex digests produced by this package.
const HashPrefix = "sha256:"

// Resolve interprets p relative to root and returns the resulting path.
// Absolute paths are treated as root-relative. Returns ErrOutsideRoot if the
// path lexically escapes root; it might still escape through symlinks.
func Resolve(root, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	var parts []string
	for _, c := range strings.Split(filepath.ToSlash(p), "/") {
		switch c {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
			}
			parts = parts[:len(parts)-1]
		default:
			if filepath.VolumeName(c) != "" {
				continue
			}
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%s: path refers to the project root itself", p)
	}
	return filepath.Join(append([]string{root}, parts...)...), nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// HashFile returns the prefixed SHA-256 digest and size of a file.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return HashPrefix + hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashBytes returns the prefixed SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// AtomicFile writes to a temporary file next to its target and only replaces the
// target on Commit. Readers of the target never observe a partial write.
type AtomicFile struct {
	target string
	tmp    *os.File
	hash   hash.Hash
	size   int64
	done   bool
}

// Create starts an atomic write of path, creating parent directories as needed.
func Create(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &AtomicFile{target: path, tmp: tmp, hash: sha256.New()}, nil
}

// Write implements io.Writer.
func (f *AtomicFile) Write(p []byte) (int, error) {
	n, err := f.tmp.Write(p)
	f.hash.Write(p[:n])
	f.size += int64(n)
	return n, err
}

// Digest returns the prefixed SHA-256 of everything written so far.
func (f *AtomicFile) Digest() string {
	return HashPrefix + hex.EncodeToString(f.hash.Sum(nil))
}

// Size returns the number of bytes written so far.
func (f *AtomicFile) Size() int64 {
	return f.size
}

// Commit flushes the temporary file and renames it over the target.
func (f *AtomicFile) Commit() error {
	if f.done {
		return errors.New("atomic file already closed")
	}
	f.done = true
	name := f.tmp.Name()
	if err := f.tmp.Sync(); err != nil {
		f.tmp.Close()
		os.Remove(name)
		return err
	}
	if err := f.tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, f.target); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.tmp.Close()
	os.Remove(f.tmp.Name())
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte) error {
	f, err := Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return err
	}
	return f.Commit()
}
