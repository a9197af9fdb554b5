package document

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/filestore"
	"github.com/local/pdfdesk/internal/filetype"
	"github.com/local/pdfdesk/internal/logger"
)

// Files is the part of the file store the loader reads from.
type Files interface {
	ReadFile(id string) (filestore.Record, []byte, error)
}

// Loader resolves file ids to parsed documents.
type Loader struct {
	files        Files
	codec        Codec
	parseTimeout time.Duration
}

func NewLoader(files Files, codec Codec, parseTimeout time.Duration) *Loader {
	return &Loader{files: files, codec: codec, parseTimeout: parseTimeout}
}

// Codec returns the codec documents are parsed with.
func (l *Loader) Codec() Codec { return l.codec }

// Resolve returns the document for id, parsing it at most once per cache.
// It fails with NotFound when the store has no PDF under id and with
// CorruptDocument when the bytes do not parse in time.
func (l *Loader) Resolve(ctx context.Context, id string, cache *Cache) (Document, error) {
	if cache == nil {
		cache = NewCache()
	}
	e := cache.entry(id)
	e.once.Do(func() {
		e.doc, e.err = l.load(ctx, id)
	})
	return e.doc, e.err
}

func (l *Loader) load(ctx context.Context, id string) (Document, error) {
	rec, data, err := l.files.ReadFile(id)
	if err != nil {
		return nil, err
	}
	if rec.Kind != filetype.PDF {
		return nil, apperr.New(apperr.NotFound, "File not found.")
	}
	start := time.Now()
	doc, err := Bounded(ctx, l.parseTimeout, func() (Document, error) {
		return l.codec.Parse(data)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.File(zerolog.WarnLevel, "parse", id).Dur("timeout", l.parseTimeout).Msg("document parse timed out")
		} else {
			logger.File(zerolog.WarnLevel, "parse", id).Err(err).Msg("document parse failed")
		}
		return nil, apperr.Wrap(apperr.CorruptDocument, err, "Failed to read PDF document.")
	}
	logger.Document(zerolog.DebugLevel, "parse", id, doc.PageCount()).Dur("took", time.Since(start)).Msg("document parsed")
	return doc, nil
}
