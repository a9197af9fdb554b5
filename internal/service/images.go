package service

import (
	"context"
	"time"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/convert"
	"github.com/local/pdfdesk/internal/document"
	"github.com/local/pdfdesk/internal/filetype"
	"github.com/local/pdfdesk/internal/imagerender"
)

const jpegKind = filetype.JPEG

// ImagesRequest converts uploaded images into one PDF.
type ImagesRequest struct {
	FileIDs     []string `json:"fileIds"`
	Order       []string `json:"order"`
	PaperSize   string   `json:"paperSize"`
	Orientation string   `json:"orientation"`
}

func (s *Service) ImagesToPDF(ctx context.Context, req ImagesRequest) (out Output, err error) {
	defer observe("jpg_to_pdf", time.Now(), &err)
	ids := req.FileIDs
	if len(req.Order) > 0 {
		ids = req.Order
	}
	if len(ids) < 1 {
		return Output{}, apperr.New(apperr.InvalidInput, "At least 1 image required.")
	}
	paper := convert.Paper{Size: req.PaperSize, Orientation: req.Orientation}
	if paper.Size == "" {
		paper.Size = convert.PaperOriginal
	}
	if paper.Orientation == "" {
		paper.Orientation = convert.OrientationAuto
	}

	images := make([]convert.Image, 0, len(ids))
	for _, id := range ids {
		rec, data, err := s.files.ReadFile(id)
		if err != nil || !rec.Kind.IsImage() {
			return Output{}, apperr.New(apperr.NotFound, "Image %s not found.", id)
		}
		images = append(images, convert.Image{Data: data, Kind: rec.Kind})
	}
	data, err := s.assembler.Assemble(ctx, images, paper)
	if err != nil {
		return Output{}, err
	}
	return s.saveOutput(data, "images_"+s.baseName(ids[0], "images")+".pdf", len(images))
}

// RenderInfo lists the expected raster size of every page.
type RenderInfo struct {
	FileID     string                 `json:"fileId"`
	Pages      []convert.RenderedPage `json:"pages"`
	TotalPages int                    `json:"totalPages"`
	Quality    int                    `json:"quality"`
}

// PDFToImages returns page raster parameters at point size for a quality tier.
func (s *Service) PDFToImages(ctx context.Context, id, tier string) (info RenderInfo, err error) {
	defer observe("pdf_to_jpg", time.Now(), &err)
	doc, err := s.loader.Resolve(ctx, id, document.NewCache())
	if err != nil {
		return RenderInfo{}, err
	}
	di, err := docInfo(doc)
	if err != nil {
		return RenderInfo{}, err
	}
	plan := convert.RenderParams(di.Pages, 72, tier)
	return RenderInfo{FileID: id, Pages: plan.Pages, TotalPages: di.PageCount, Quality: plan.Quality}, nil
}

// MaxRenderDPI caps single-page renders.
const MaxRenderDPI = 300

// RenderPage rasterizes one 1-based page as JPEG.
func (s *Service) RenderPage(ctx context.Context, id string, page int, tier string, dpi int) (p imagerender.Page, err error) {
	defer observe("render", time.Now(), &err)
	r, err := s.renderer()
	if err != nil {
		return imagerender.Page{}, err
	}
	rec, data, err := s.files.ReadFile(id)
	if err != nil {
		return imagerender.Page{}, err
	}
	if rec.Kind != filetype.PDF {
		return imagerender.Page{}, apperr.New(apperr.NotFound, "File not found.")
	}
	n, err := r.PageCount(data)
	if err != nil {
		return imagerender.Page{}, apperr.Wrap(apperr.CorruptDocument, err, "Failed to read PDF document.")
	}
	if page < 1 || page > n {
		return imagerender.Page{}, apperr.New(apperr.InvalidPageIndex, "Page %d does not exist in a %d page document.", page, n)
	}
	if dpi <= 0 {
		dpi = convert.DefaultDPI
	}
	dpi = min(dpi, MaxRenderDPI)

	rctx, cancel := s.renderContext(ctx)
	defer cancel()
	p, err = r.RenderPage(rctx, data, page, imagerender.Options{DPI: dpi, Quality: convert.TierQuality(tier), Color: imagerender.ColorRGB})
	if err != nil {
		return imagerender.Page{}, apperr.Wrap(apperr.Internal, err, "render page")
	}
	return p, nil
}
