package imagerender

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Page is one rendered page.
type Page struct {
	Page   int
	Width  int
	Height int
	JPEG   []byte
}

// Options for a render pass.
type Options struct {
	DPI     int
	Quality int
	Color   ColorMode
}

// Renderer rasterizes PDF bytes with MuPDF. Each worker opens its own
// document handle since a go-fitz document serializes its calls.
type Renderer struct {
	workers int
}

func New(workers int) *Renderer {
	if workers <= 0 {
		workers = 4
	}
	return &Renderer{workers: workers}
}

// PageCount opens the document just to count its pages.
func (r *Renderer) PageCount(pdf []byte) (int, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// RenderPage renders one 1-based page as JPEG.
func (r *Renderer) RenderPage(ctx context.Context, pdf []byte, page int, opts Options) (Page, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return Page{}, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()
	if page < 1 || page > doc.NumPage() {
		return Page{}, fmt.Errorf("page %d out of range (1-%d)", page, doc.NumPage())
	}
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	return renderPage(doc, page, opts)
}

// RenderAll renders every page, fanning out over the configured workers.
// Pages come back in document order.
func (r *Renderer) RenderAll(ctx context.Context, pdf []byte, opts Options) ([]Page, error) {
	n, err := r.PageCount(pdf)
	if err != nil {
		return nil, err
	}
	out := make([]Page, n)
	workers := min(r.workers, n)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			doc, err := fitz.NewFromMemory(pdf)
			if err != nil {
				return fmt.Errorf("failed to open PDF: %w", err)
			}
			defer doc.Close()
			for i := w; i < n; i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				p, err := renderPage(doc, i+1, opts)
				if err != nil {
					return err
				}
				out[i] = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debug().Int("pages", n).Int("workers", workers).Int("dpi", opts.DPI).Msg("rendered document")
	return out, nil
}

func renderPage(doc *fitz.Document, pageNum int, opts Options) (Page, error) {
	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(pageNum-1, float64(opts.DPI))
	if err != nil {
		return Page{}, fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}
	bounds := img.Bounds()

	var finalImg image.Image = img
	if opts.Color == ColorGray {
		grayImg := image.NewGray(bounds)
		draw.Draw(grayImg, bounds, img, bounds.Min, draw.Src)
		finalImg = grayImg
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, finalImg, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return Page{}, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("page", pageNum).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("jpeg_size", buf.Len()).
		Int("quality", opts.Quality).
		Msg("encoded page as JPEG")

	return Page{Page: pageNum, Width: bounds.Dx(), Height: bounds.Dy(), JPEG: buf.Bytes()}, nil
}
