// Package compose builds output documents from pages of one or more source
// documents.
package compose

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/document"
	"github.com/local/pdfdesk/internal/metrics"
)

// Result is a composed document.
type Result struct {
	Data      []byte
	PageCount int
}

// Engine executes composition plans.
type Engine struct {
	loader           *document.Loader
	serializeTimeout time.Duration
}

func NewEngine(loader *document.Loader, serializeTimeout time.Duration) *Engine {
	return &Engine{loader: loader, serializeTimeout: serializeTimeout}
}

// Compose copies every non-deleted entry of plan, in plan order, into a new
// document. All sources are resolved through one cache; a nil cache gets a
// fresh one for this call. Any failure discards the partial output.
func (e *Engine) Compose(ctx context.Context, plan Plan, cache *document.Cache) (Result, error) {
	start := time.Now()
	res, err := e.compose(ctx, plan, cache)
	metrics.ObserveOperation("compose", err, time.Since(start))
	if err != nil {
		return Result{}, err
	}
	metrics.AddPagesComposed(res.PageCount)
	log.Debug().Int("entries", len(plan)).Int("pages", res.PageCount).Int("bytes", len(res.Data)).
		Dur("took", time.Since(start)).Msg("composed document")
	return res, nil
}

func (e *Engine) compose(ctx context.Context, plan Plan, cache *document.Cache) (Result, error) {
	if plan.Live() == 0 {
		return Result{}, apperr.New(apperr.EmptyOutput, "No pages left to write.")
	}
	if cache == nil {
		cache = document.NewCache()
	}
	out := e.loader.Codec().NewOutput()
	for _, sp := range plan {
		if sp.Deleted {
			continue
		}
		doc, err := e.resolve(ctx, sp.SourceID, cache)
		if err != nil {
			return Result{}, err
		}
		if sp.PageIndex < 0 || sp.PageIndex >= doc.PageCount() {
			return Result{}, apperr.New(apperr.InvalidPageIndex,
				"Page %d does not exist in a %d page document.", sp.PageIndex+1, doc.PageCount())
		}
		rotation := 0
		if !sp.KeepRotation {
			if rotation, err = NormalizeRotation(sp.Rotation); err != nil {
				return Result{}, err
			}
		}
		if err := out.AddPage(doc, sp.PageIndex, rotation, sp.KeepRotation); err != nil {
			return Result{}, apperr.Wrap(apperr.Internal, err, "copy page")
		}
	}

	data, err := document.Bounded(ctx, e.serializeTimeout, out.Bytes)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, err, "serialize output")
	}
	return Result{Data: data, PageCount: out.PageCount()}, nil
}

// resolve maps a missing source onto SourceNotFound.
func (e *Engine) resolve(ctx context.Context, id string, cache *document.Cache) (document.Document, error) {
	doc, err := e.loader.Resolve(ctx, id, cache)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Wrap(apperr.SourceNotFound, err, "File %s not found.", id)
	}
	return doc, err
}
