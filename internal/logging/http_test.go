package logging

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestShouldLogAccessLevels(t *testing.T) {
	if !shouldLogAccess("all", http.MethodGet, "/", http.StatusOK) {
		t.Fatal("all should log GET")
	}
	if shouldLogAccess("actions", http.MethodGet, "/", http.StatusOK) {
		t.Fatal("actions should not log successful GET")
	}
	if !shouldLogAccess("actions", http.MethodPost, "/ipp/print", http.StatusOK) {
		t.Fatal("actions should log POST")
	}
	if !shouldLogAccess("actions", http.MethodGet, "/missing", http.StatusNotFound) {
		t.Fatal("actions should log failures")
	}
	if shouldLogAccess("none", http.MethodPost, "/ipp/print", http.StatusInternalServerError) {
		t.Fatal("none should never log")
	}
}

func TestParseAuthUser(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://localhost/ipp/print", nil)
	req.SetBasicAuth("alice", "secret")
	if got := parseAuthUser(req); got != "alice" {
		t.Fatalf("basic user = %q, want alice", got)
	}

	req, _ = http.NewRequest(http.MethodPost, "http://localhost/ipp/print", nil)
	if got := parseAuthUser(req); got != "-" {
		t.Fatalf("anonymous user = %q, want -", got)
	}
}

func TestHTTPAccessMiddlewareWritesLine(t *testing.T) {
	dir := t.TempDir()
	accessPath := filepath.Join(dir, "access_log")
	if _, err := Configure(Config{ErrorLog: "none", AccessLog: accessPath, AccessLevel: "actions"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	t.Cleanup(func() {
		_, _ = Configure(Config{ErrorLog: "none"})
	})

	h := HTTPAccessMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quiet", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ipp/print", strings.NewReader("x")))

	data, err := os.ReadFile(accessPath)
	if err != nil {
		t.Fatalf("read access log: %v", err)
	}
	log := string(data)
	if strings.Contains(log, "/quiet") {
		t.Fatalf("GET logged at actions level: %q", log)
	}
	if !strings.Contains(log, `"POST /ipp/print HTTP/1.1" 200 2`) {
		t.Fatalf("missing POST line: %q", log)
	}
}

func TestPageLogLineFormat(t *testing.T) {
	line := PageLogLine("Office", "alice", 42, "report.pdf", 2, "")
	if !strings.HasPrefix(line, "Office alice 42 [") {
		t.Fatalf("unexpected page log prefix: %q", line)
	}
	if !strings.HasSuffix(line, "] report.pdf 2 ok") {
		t.Fatalf("unexpected page log suffix: %q", line)
	}
}
