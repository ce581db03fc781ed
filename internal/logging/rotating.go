package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// RotatingFile writes log lines to a file and moves it aside to "<path>.O"
// once MaxSize would be exceeded, keeping a single backup. The special
// targets "stderr", "stdout" and "none" bypass the file.
type RotatingFile struct {
	path    string
	maxSize int64
	mode    targetMode

	mu   sync.Mutex
	f    *os.File
	size int64
}

type targetMode int

const (
	targetFile targetMode = iota
	targetStderr
	targetStdout
	targetDiscard
)

func NewRotatingFile(path string, maxSize int64) *RotatingFile {
	r := &RotatingFile{path: strings.TrimSpace(path), maxSize: maxSize}
	switch strings.ToLower(r.path) {
	case "", "none", "off":
		r.mode = targetDiscard
	case "stderr", "-":
		r.mode = targetStderr
	case "stdout":
		r.mode = targetStdout
	default:
		r.mode = targetFile
	}
	return r
}

func (r *RotatingFile) Enabled() bool {
	return r != nil && r.mode != targetDiscard
}

func (r *RotatingFile) WriteLine(line string) error {
	if r == nil {
		return nil
	}
	_, err := r.Write([]byte(line + "\n"))
	return err
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	if r == nil {
		return len(p), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.mode {
	case targetDiscard:
		return len(p), nil
	case targetStderr:
		return os.Stderr.Write(p)
	case targetStdout:
		return os.Stdout.Write(p)
	}
	if err := r.rotateIfNeeded(int64(len(p))); err != nil {
		return 0, err
	}
	if err := r.openLocked(); err != nil {
		return 0, err
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

// Sync flushes the file; zap calls it on Logger.Sync.
func (r *RotatingFile) Sync() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	return r.f.Sync()
}

func (r *RotatingFile) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *RotatingFile) openLocked() error {
	if r.f != nil {
		return nil
	}
	if dir := filepath.Dir(r.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	r.f = f
	r.size = info.Size()
	return nil
}

func (r *RotatingFile) closeLocked() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	r.size = 0
	return err
}

func (r *RotatingFile) rotateIfNeeded(next int64) error {
	if r.maxSize <= 0 {
		return nil
	}
	if r.f == nil {
		info, err := os.Stat(r.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		r.size = info.Size()
	}
	if r.size == 0 || r.size+next <= r.maxSize {
		return nil
	}
	if err := r.closeLocked(); err != nil {
		return err
	}
	oldPath := r.path + ".O"
	_ = os.Remove(oldPath)
	if err := os.Rename(r.path, oldPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var _ io.WriteCloser = (*RotatingFile)(nil)
