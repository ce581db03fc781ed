// Package spool stores job documents on disk and reports how large the
// spool filesystem is.
package spool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Spool struct {
	Dir string
}

func (s Spool) Ensure() error {
	return os.MkdirAll(s.Dir, 0755)
}

// PrinterDir is where documents for the named printer are kept.
func (s Spool) PrinterDir(printer string) string {
	return filepath.Join(s.Dir, sanitizeFileName(printer))
}

// Save copies a job document into the printer's directory and returns the
// path and byte count written.
func (s Spool) Save(printer string, jobID int, fileName string, r io.Reader) (string, int64, error) {
	dir := s.PrinterDir(printer)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, err
	}
	base := fmt.Sprintf("job-%d-%d", jobID, time.Now().UnixNano())
	if fileName != "" {
		base = base + "-" + sanitizeFileName(fileName)
	}
	path := filepath.Join(dir, base)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return "", 0, err
	}
	return path, n, nil
}

// RemoveJob deletes every document saved for the job.
func (s Spool) RemoveJob(printer string, jobID int) error {
	matches, err := filepath.Glob(filepath.Join(s.PrinterDir(printer), fmt.Sprintf("job-%d-*", jobID)))
	if err != nil {
		return err
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// RemovePrinter deletes the printer's spool directory.
func (s Spool) RemovePrinter(printer string) error {
	return os.RemoveAll(s.PrinterDir(printer))
}

// Capacity reports the total size in bytes of the filesystem holding the
// spool directory.
func (s Spool) Capacity() (uint64, error) {
	return Capacity(s.Dir)
}

func sanitizeFileName(name string) string {
	clean := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|' {
			continue
		}
		clean = append(clean, r)
	}
	if len(clean) == 0 || strings.Trim(string(clean), ".") == "" {
		return "document"
	}
	return string(clean)
}
