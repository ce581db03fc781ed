// Package server exposes the printer registry over IPP.
package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"lprintgolang/internal/logging"
	"lprintgolang/internal/spool"
	"lprintgolang/internal/store"
	"lprintgolang/internal/system"
)

type Server struct {
	System *system.System
	Spool  spool.Spool
	// Store is optional; without it printer changes are not persisted.
	Store *store.Store
	// JobHistory is how many completed jobs each printer keeps.
	JobHistory     int
	MaxRequestSize int64
	Log            *zap.Logger
}

func (s *Server) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// Handler routes IPP requests under the service path and wraps them in the
// access log. GET / returns a plain-text printer listing.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post(system.ServicePath, s.handleIPP)
	r.Post(system.ServicePath+"/*", s.handleIPP)
	r.Get("/", s.handleIndex)
	return logging.HTTPAccessMiddleware(r)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, p := range s.System.Printers() {
		state, _, _ := p.State()
		_, _ = w.Write([]byte(p.Name() + " " + state.String() + " " + p.URI() + "\n"))
	}
}

func (s *Server) handleIPP(w http.ResponseWriter, r *http.Request) {
	if !isIPP(r) {
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return
	}
	if s.MaxRequestSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestSize)
	}
	if err := s.handleIPPRequest(w, r); err != nil {
		s.logger().Warn("IPP request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

func isIPP(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/ipp")
}
