package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// File appends one line per measurement to a file and rotates it once it
// grows beyond maxSize bytes. A maxSize of 0 disables rotation.
type File struct {
	Base

	name    string
	path    string
	format  Format
	maxSize int64
	now     func() time.Time
	rename  func(oldpath, newpath string) error

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// NewFile opens (or creates) path for appending
func NewFile(name, path string, format Format, maxSize int64) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	return &File{
		name:    name,
		path:    path,
		format:  format,
		maxSize: maxSize,
		now:     time.Now,
		rename:  os.Rename,
		file:    f,
	}, nil
}

// Name implements Named
func (s *File) Name() string {
	return s.name
}

// Path returns the active file path
func (s *File) Path() string {
	return s.path
}

// Record appends sw to the file
func (s *File) Record(sw *stopwatch.StopWatch) error {
	line, err := formatLine(sw, s.format)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.file == nil {
		// a previous rotation could not reopen the file
		f, err := openAppend(s.path)
		if err != nil {
			return err
		}
		s.file = f
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return s.rotateIfNeeded()
}

// rotateIfNeeded renames the file to a timestamped backup and reopens path.
// Callers hold s.mu.
func (s *File) rotateIfNeeded() error {
	if s.maxSize <= 0 {
		return nil
	}

	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", s.path, err)
	}
	if info.Size() <= s.maxSize {
		return nil
	}

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", s.path, err)
	}
	s.file = nil

	backupPath := s.path + "." + s.now().Format("20060102-150405.000000000")
	renameErr := s.rename(s.path, backupPath)

	// On a failed rename this reopens the same file and keeps appending
	f, err := openAppend(s.path)
	if err != nil {
		return err
	}
	s.file = f

	if renameErr != nil {
		return fmt.Errorf("failed to rotate %s: %w", s.path, renameErr)
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open timing file %s: %w", path, err)
	}
	return f, nil
}

// Shutdown closes the file
func (s *File) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
