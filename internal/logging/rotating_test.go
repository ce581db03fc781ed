package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingFileRotatesAtMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "error_log")
	r := NewRotatingFile(path, 16)
	t.Cleanup(func() { _ = r.Close() })

	if err := r.WriteLine("first line"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if err := r.WriteLine("second line"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}

	backup, err := os.ReadFile(path + ".O")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if strings.TrimSpace(string(backup)) != "first line" {
		t.Fatalf("backup=%q", backup)
	}
	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if strings.TrimSpace(string(current)) != "second line" {
		t.Fatalf("current=%q", current)
	}
}

func TestRotatingFileDiscardTargets(t *testing.T) {
	for _, target := range []string{"", "none", "off"} {
		r := NewRotatingFile(target, 0)
		if r.Enabled() {
			t.Fatalf("%q should be disabled", target)
		}
		if n, err := r.Write([]byte("x")); err != nil || n != 1 {
			t.Fatalf("Write on %q = %d, %v", target, n, err)
		}
	}
}

func TestConfigureRejectsBadLevel(t *testing.T) {
	if _, err := Configure(Config{ErrorLog: "none", Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestConfigureWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error_log")
	logger, err := Configure(Config{ErrorLog: path, Level: "debug"})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	t.Cleanup(func() {
		_, _ = Configure(Config{ErrorLog: "none"})
	})
	logger.Debug("printer created")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"printer created"`) {
		t.Fatalf("unexpected log output %q", data)
	}
	if L() != logger {
		t.Fatalf("L() does not return the configured logger")
	}
}
