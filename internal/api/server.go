// Package api exposes the document service over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/local/pdfdesk/internal/limiter"
	"github.com/local/pdfdesk/internal/metrics"
	"github.com/local/pdfdesk/internal/service"
	"github.com/local/pdfdesk/internal/statuscheck"
)

// Health reports readiness.
type Health interface {
	Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
	Service *service.Service
	Health  Health
	// APILimit applies to every /api/ route, UploadLimit additionally to
	// uploads and imports. Either may be nil.
	APILimit    *limiter.FixedWindow
	UploadLimit *limiter.FixedWindow
	// MaxJSONBytes bounds JSON request bodies.
	MaxJSONBytes int64
	// MaxUploadBytes bounds a whole multipart request; 0 means no bound
	// beyond the store's per-file limit.
	MaxUploadBytes int64
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
}

type Server struct {
	deps Dependencies
	svc  *service.Service
}

func New(deps Dependencies) *Server {
	if deps.MaxJSONBytes <= 0 {
		deps.MaxJSONBytes = 100 << 20
	}
	return &Server{deps: deps, svc: deps.Service}
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return secure(mux)
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /health", observed("/health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /metrics", metrics.Handler())

	s.route(mux, "POST /api/upload", s.handleUpload, s.deps.UploadLimit)
	s.route(mux, "POST /api/import", s.handleImport, s.deps.UploadLimit)
	s.route(mux, "POST /api/merge", s.handleMerge)
	s.route(mux, "POST /api/split", s.handleSplit)
	s.route(mux, "POST /api/organize", s.handleOrganize)
	s.route(mux, "POST /api/compress", s.handleCompress)
	s.route(mux, "POST /api/compress-save", s.handleCompressSave)
	s.route(mux, "POST /api/compress-run", s.handleCompressRun)
	s.route(mux, "POST /api/jpg-to-pdf", s.handleImagesToPDF)
	s.route(mux, "POST /api/pdf-to-jpg", s.handlePDFToImages)
	s.route(mux, "GET /api/render/{fileId}/{page}", s.handleRender)
	s.route(mux, "GET /api/pdf-info/{fileId}", s.handleInfo)
	s.route(mux, "GET /api/pdf-file/{fileId}", s.handlePDFFile)
	s.route(mux, "GET /api/download/{fileId}", s.handleDownload)
	s.route(mux, "DELETE /api/delete/{fileId}", s.handleDelete)
	s.route(mux, "GET /api/expiry/{fileId}", s.handleExpiry)
	s.route(mux, "POST /api/expiry/{fileId}/extend", s.handleExtend)
}

// route registers an /api/ route behind the general limit plus any extra ones.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc, extra ...*limiter.FixedWindow) {
	windows := append([]*limiter.FixedWindow{s.deps.APILimit}, extra...)
	mux.Handle(pattern, observed(pattern, s.limited(h, windows...)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	sum := s.deps.Health.Summary(r.Context())
	status := http.StatusOK
	if !sum.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, sum)
}
