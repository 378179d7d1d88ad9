package xmcio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicFile is written to a temporary sibling and renamed into place by
// Commit, so a failed run never leaves a file that looks complete.
type AtomicFile struct {
	*os.File
	finalPath string
	done      bool
}

func CreateAtomic(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	return &AtomicFile{File: f, finalPath: path}, nil
}

// Commit syncs, closes and renames the file to its final path.
func (f *AtomicFile) Commit() error {
	if f.done {
		return nil
	}
	if err := f.seal(); err != nil {
		return err
	}
	return f.publish()
}

// seal syncs and closes the temporary file, removing it on failure.
func (f *AtomicFile) seal() error {
	f.done = true
	tmp := f.File.Name()
	if err := f.File.Sync(); err != nil {
		f.File.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing %s: %w", f.finalPath, err)
	}
	if err := f.File.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", f.finalPath, err)
	}
	return nil
}

func (f *AtomicFile) publish() error {
	tmp := f.File.Name()
	if err := os.Rename(tmp, f.finalPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", f.finalPath, err)
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.File.Close()
	os.Remove(f.File.Name())
}

// WriteFileAtomic runs fn against a temporary file and commits it only if fn
// succeeds.
func WriteFileAtomic(path string, fn func(w io.Writer) error) error {
	f, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Abort()
		return err
	}
	return f.Commit()
}

// AtomicSet groups the outputs of one run. Nothing reaches its final path
// until Commit, and Commit publishes either every file or none of them.
type AtomicSet struct {
	files []*AtomicFile
}

// Create opens a temporary file for path and adds it to the set.
func (s *AtomicSet) Create(path string) (*AtomicFile, error) {
	f, err := CreateAtomic(path)
	if err != nil {
		return nil, err
	}
	s.files = append(s.files, f)
	return f, nil
}

// Commit seals every file, then renames them into place. If a rename fails
// the files already renamed are removed again.
func (s *AtomicSet) Commit() error {
	for i, f := range s.files {
		if f.done {
			return fmt.Errorf("output %s was discarded", f.finalPath)
		}
		if err := f.seal(); err != nil {
			for _, rest := range s.files[i+1:] {
				rest.Abort()
			}
			s.removeTemps(s.files[:i])
			return err
		}
	}
	for i, f := range s.files {
		if err := f.publish(); err != nil {
			for _, prev := range s.files[:i] {
				os.Remove(prev.finalPath)
			}
			s.removeTemps(s.files[i+1:])
			return err
		}
	}
	s.files = nil
	return nil
}

func (s *AtomicSet) removeTemps(files []*AtomicFile) {
	for _, f := range files {
		os.Remove(f.File.Name())
	}
}

// Abort discards every file not yet committed. It is a no-op after Commit.
func (s *AtomicSet) Abort() {
	for _, f := range s.files {
		if f.done {
			os.Remove(f.File.Name())
			continue
		}
		f.Abort()
	}
	s.files = nil
}
