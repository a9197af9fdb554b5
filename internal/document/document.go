// Package document is the boundary between the service and the PDF codec.
// Documents are parsed fully in memory; nothing here holds a file open.
package document

import (
	"context"
	"fmt"
	"time"

	"github.com/local/pdfdesk/internal/filetype"
)

// PageInfo describes one page. Width and Height are in points, taken from
// the crop box (media box when absent) before rotation.
type PageInfo struct {
	Index    int     `json:"index"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation int     `json:"rotation"`
}

// Document is a parsed, read-only source document.
type Document interface {
	PageCount() int
	Page(index int) (PageInfo, error)
}

// Output accumulates copied pages for a new document.
type Output interface {
	// AddPage appends page index of src. Unless keepRotation is set, rotation
	// replaces whatever rotation the source page carries.
	AddPage(src Document, index, rotation int, keepRotation bool) error
	PageCount() int
	Bytes() ([]byte, error)
}

// ImagePage places one encoded image on a page of its own. Coordinates are
// in points with the origin at the bottom-left corner of the page.
type ImagePage struct {
	Data        []byte
	Kind        filetype.Kind
	PixelWidth  int
	PixelHeight int
	PageWidth   float64
	PageHeight  float64
	X, Y        float64
	Width       float64
	Height      float64
}

// Codec parses and produces documents.
type Codec interface {
	Parse(data []byte) (Document, error)
	NewOutput() Output
	ImagePages(pages []ImagePage) ([]byte, error)
}

// Bounded runs fn and waits at most timeout for its result. On timeout fn is
// left to finish in the background and its result is discarded.
func Bounded[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("gave up after %s: %w", timeout, ctx.Err())
	}
}
