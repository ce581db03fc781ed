package logging

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.size += n
	return n, err
}

// HTTPAccessMiddleware writes a common log format line per request to the
// access log, filtered by the configured access level.
func HTTPAccessMiddleware(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		if !shouldLogAccess(accessLevel(), r.Method, r.URL.Path, status) {
			return
		}
		remote := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(remote); err == nil {
			remote = host
		}
		Access(fmt.Sprintf("%s - %s [%s] \"%s %s %s\" %d %d",
			remote,
			parseAuthUser(r),
			start.Format("02/Jan/2006:15:04:05 -0700"),
			r.Method,
			r.URL.RequestURI(),
			r.Proto,
			status,
			rec.size,
		))
	})
}

// shouldLogAccess applies the access level: "all" logs everything, "none"
// nothing, and "actions" only requests that change state or failed.
func shouldLogAccess(level, method, path string, status int) bool {
	switch level {
	case "all":
		return true
	case "none":
		return false
	}
	if status >= http.StatusBadRequest {
		return true
	}
	return method != http.MethodGet && method != http.MethodHead
}

func parseAuthUser(r *http.Request) string {
	if user, _, ok := r.BasicAuth(); ok && strings.TrimSpace(user) != "" {
		return user
	}
	if r.URL != nil && r.URL.User != nil {
		if u := strings.TrimSpace(r.URL.User.Username()); u != "" {
			return u
		}
	}
	return "-"
}

// PageLogLine formats one page log entry.
func PageLogLine(printer, user string, jobID int, title string, copies int, result string) string {
	if copies <= 0 {
		copies = 1
	}
	if strings.TrimSpace(result) == "" {
		result = "ok"
	}
	if strings.TrimSpace(user) == "" {
		user = "-"
	}
	if strings.TrimSpace(printer) == "" {
		printer = "-"
	}
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	return strings.Join([]string{
		printer,
		user,
		strconv.Itoa(jobID),
		"[" + time.Now().Format("02/Jan/2006:15:04:05 -0700") + "]",
		title,
		strconv.Itoa(copies),
		result,
	}, " ")
}
