// Package service implements the document operations behind the HTTP API.
// Every operation reads its inputs from the file store and, on success,
// tracks exactly one new output per produced document.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/compose"
	"github.com/local/pdfdesk/internal/convert"
	"github.com/local/pdfdesk/internal/document"
	"github.com/local/pdfdesk/internal/filestore"
	"github.com/local/pdfdesk/internal/filetype"
	"github.com/local/pdfdesk/internal/imagerender"
	"github.com/local/pdfdesk/internal/logger"
	"github.com/local/pdfdesk/internal/metrics"
	"github.com/local/pdfdesk/internal/storage"
)

// OutputOwner owns every generated file.
const OutputOwner = "output"

// Renderer rasterizes PDF pages.
type Renderer interface {
	PageCount(pdf []byte) (int, error)
	RenderPage(ctx context.Context, pdf []byte, page int, opts imagerender.Options) (imagerender.Page, error)
	RenderAll(ctx context.Context, pdf []byte, opts imagerender.Options) ([]imagerender.Page, error)
}

// Fetcher downloads remote references for import.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (storage.Object, error)
}

// Options configures a Service.
type Options struct {
	ParseTimeout     time.Duration
	SerializeTimeout time.Duration
	RenderTimeout    time.Duration
	// MaxFiles bounds the files of one upload request.
	MaxFiles int
	// Renderer and Fetcher are optional; the operations needing them fail
	// with an internal error when absent.
	Renderer Renderer
	Fetcher  Fetcher
}

// Service runs document operations against one file store.
type Service struct {
	files     *filestore.Store
	loader    *document.Loader
	engine    *compose.Engine
	assembler *convert.Assembler
	opts      Options
}

func New(files *filestore.Store, codec document.Codec, opts Options) *Service {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 50
	}
	loader := document.NewLoader(files, codec, opts.ParseTimeout)
	return &Service{
		files:     files,
		loader:    loader,
		engine:    compose.NewEngine(loader, opts.SerializeTimeout),
		assembler: convert.NewAssembler(codec, opts.SerializeTimeout),
		opts:      opts,
	}
}

// Files exposes the underlying store.
func (s *Service) Files() *filestore.Store { return s.files }

// Output describes one generated document.
type Output struct {
	FileID    string `json:"fileId"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	PageCount int    `json:"pageCount"`
	Expiry    int64  `json:"expiry"`
}

func expiryMillis(rec filestore.Record) int64 { return rec.ExpiresAt.UnixMilli() }

// saveOutput tracks a generated PDF.
func (s *Service) saveOutput(data []byte, filename string, pages int) (Output, error) {
	rec, err := s.files.SaveBytes(filestore.Outputs, filetype.PDF, data, OutputOwner, filename)
	if err != nil {
		return Output{}, fmt.Errorf("save output: %w", err)
	}
	logger.Document(zerolog.InfoLevel, "output", rec.ID, pages).Str("filename", filename).Int64("size", rec.Size).Msg("output stored")
	return Output{FileID: rec.ID, Filename: filename, Size: rec.Size, PageCount: pages, Expiry: expiryMillis(rec)}, nil
}

// baseName returns the original name of id without extension, or fallback.
func (s *Service) baseName(id, fallback string) string {
	rec, err := s.files.Get(id)
	if err != nil {
		return fallback
	}
	return sanitizeName(rec.BaseName(fallback), fallback)
}

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N} ._()\-]+`)

// sanitizeName keeps names safe for a Content-Disposition header.
func sanitizeName(name, fallback string) string {
	name = unsafeName.ReplaceAllString(filepath.Base(strings.TrimSpace(name)), "_")
	name = strings.Trim(name, ". ")
	if name == "" {
		return fallback
	}
	if len(name) > 120 {
		name = name[:120]
	}
	return name
}

// observe records the duration and outcome of an operation.
func observe(op string, start time.Time, err *error) {
	took := time.Since(start)
	metrics.ObserveOperation(op, *err, took)
	switch {
	case *err == nil:
		logger.Operation(zerolog.DebugLevel, op, took).Msg("operation finished")
	case apperr.KindOf(*err) == apperr.Internal:
		logger.Operation(zerolog.ErrorLevel, op, took).Err(*err).Msg("operation failed")
	default:
		logger.Operation(zerolog.DebugLevel, op, took).Err(*err).Msg("operation rejected")
	}
}

func (s *Service) renderer() (Renderer, error) {
	if s.opts.Renderer == nil {
		return nil, apperr.New(apperr.Internal, "rendering is not available")
	}
	return s.opts.Renderer, nil
}
