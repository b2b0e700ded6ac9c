// Package fileops performs the filesystem side effects of dedup removals
// and subtitle downloads. A per-path mutex is the single mutual-exclusion
// boundary: two operations on the same path serialize here, everything else
// runs concurrently.
package fileops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/faults"
)

// Store is a concurrency-safe filesystem gateway.
type Store struct {
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a store.
func New(logger zerolog.Logger) *Store {
	return &Store{
		logger: logger.With().Str("component", "fileops").Logger(),
		locks:  make(map[string]*sync.Mutex),
	}
}

// lock serializes operations on one path and returns the unlock func.
func (s *Store) lock(path string) func() {
	s.mu.Lock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Exists reports whether path is a regular file.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes the file and, when that leaves the parent directory empty,
// the parent too. A path that is already gone is not an error.
func (s *Store) Remove(path string) error {
	defer s.lock(path)()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return faults.FileSystem(path, err)
	}

	s.removeEmptyParent(path)
	s.logger.Debug().Str("path", path).Msg("file removed")
	return nil
}

// Relocate moves the file into destDir, keeping its name and suffixing on
// collision. Falls back to copy-and-delete when the rename crosses a
// filesystem boundary.
func (s *Store) Relocate(path, destDir string) error {
	defer s.lock(path)()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return faults.FileSystem(destDir, err)
	}

	dest := filepath.Join(destDir, filepath.Base(path))
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		ext := filepath.Ext(path)
		name := filepath.Base(path)
		dest = filepath.Join(destDir, fmt.Sprintf("%s.%d%s", name[:len(name)-len(ext)], i, ext))
	}

	if err := os.Rename(path, dest); err != nil {
		if copyErr := copyAndRemove(path, dest); copyErr != nil {
			return faults.FileSystem(path, copyErr)
		}
	}

	s.removeEmptyParent(path)
	s.logger.Debug().Str("path", path).Str("dest", dest).Msg("file relocated")
	return nil
}

// WriteFile creates path with the given content. Existing files are never
// overwritten.
func (s *Store) WriteFile(path string, data []byte) error {
	defer s.lock(path)()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return faults.FileSystem(path, err)
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		os.Remove(path)
		return faults.FileSystem(path, werr)
	}
	if cerr != nil {
		return faults.FileSystem(path, cerr)
	}
	return nil
}

// removeEmptyParent drops the now-empty directory a version lived in, so a
// movie folder does not linger after its only file is gone. Best-effort.
func (s *Store) removeEmptyParent(path string) {
	parent := filepath.Dir(path)
	entries, err := os.ReadDir(parent)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(parent); err == nil {
		s.logger.Debug().Str("dir", parent).Msg("empty directory removed")
	}
}

func copyAndRemove(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
