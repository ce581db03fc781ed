package spool

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSave_WritesIntoPrinterDir(t *testing.T) {
	s := Spool{Dir: t.TempDir()}

	path, n, err := s.Save("office", 3, `a/b:c?.pdf`, strings.NewReader("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != 8 {
		t.Fatalf("n=%d, want 8", n)
	}
	if filepath.Dir(path) != filepath.Join(s.Dir, "office") {
		t.Fatalf("saved to %q", path)
	}
	if !strings.HasSuffix(path, "-abc.pdf") {
		t.Fatalf("file name not sanitized: %q", path)
	}
}

func TestRemoveJob_LeavesOtherJobs(t *testing.T) {
	s := Spool{Dir: t.TempDir()}
	keep, _, err := s.Save("p", 1, "", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	drop, _, err := s.Save("p", 11, "", strings.NewReader("eleven"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := s.RemoveJob("p", 11); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if _, err := os.Stat(drop); !os.IsNotExist(err) {
		t.Fatalf("job 11 still present: %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("job 1 removed: %v", err)
	}
}

func TestCapacity_ReportsFilesystemSize(t *testing.T) {
	s := Spool{Dir: t.TempDir()}
	size, err := s.Capacity()
	if err != nil {
		t.Fatalf("Capacity: %v", err)
	}
	if size == 0 {
		t.Fatalf("Capacity returned 0")
	}
}

func TestCapacity_MissingDir(t *testing.T) {
	if _, err := Capacity(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"report.pdf": "report.pdf",
		"../..":      "document",
		"":           "document",
		`x<y>|z`:     "xyz",
	}
	for in, want := range cases {
		if got := sanitizeFileName(in); got != want {
			t.Fatalf("sanitizeFileName(%q)=%q, want %q", in, got, want)
		}
	}
}
