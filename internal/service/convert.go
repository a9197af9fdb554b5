package service

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/convert"
	"github.com/local/pdfdesk/internal/document"
	"github.com/local/pdfdesk/internal/imagerender"
)

// CompressRequest picks compression settings by level or target size.
// TargetBytes wins over Level when positive.
type CompressRequest struct {
	FileID      string `json:"fileId"`
	Level       string `json:"level"`
	TargetBytes int64  `json:"targetBytes"`
}

// PageSize is a page's size in points.
type PageSize struct {
	Index  int     `json:"index"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CompressPlan tells a client how to recompress a document itself.
type CompressPlan struct {
	FileID               string     `json:"fileId"`
	OriginalSize         int64      `json:"originalSize"`
	PageCount            int        `json:"pageCount"`
	Pages                []PageSize `json:"pages"`
	Quality              int        `json:"quality"`
	DPI                  int        `json:"dpi"`
	Level                string     `json:"level"`
	TargetBytes          int64      `json:"targetBytes,omitempty"`
	BaseName             string     `json:"baseName"`
	UseClientCompression bool       `json:"useClientCompression"`
}

func (r CompressRequest) params(originalSize int64) (convert.Params, string, error) {
	if r.TargetBytes > 0 {
		p, err := convert.TargetParams(r.TargetBytes, originalSize)
		return p, "target", err
	}
	level := r.Level
	if level == "" {
		level = convert.LevelRecommended
	}
	p, err := convert.CompressionParams(level)
	return p, level, err
}

// Compress reports the settings for a client-driven raster round-trip.
func (s *Service) Compress(ctx context.Context, req CompressRequest) (plan CompressPlan, err error) {
	defer observe("compress", time.Now(), &err)
	rec, err := s.files.Get(req.FileID)
	if err != nil {
		return CompressPlan{}, err
	}
	doc, err := s.loader.Resolve(ctx, req.FileID, document.NewCache())
	if err != nil {
		return CompressPlan{}, err
	}
	params, level, err := req.params(rec.Size)
	if err != nil {
		return CompressPlan{}, err
	}
	info, err := docInfo(doc)
	if err != nil {
		return CompressPlan{}, err
	}
	pages := make([]PageSize, len(info.Pages))
	for i, p := range info.Pages {
		pages[i] = PageSize{Index: p.Index, Width: p.Width, Height: p.Height}
	}
	return CompressPlan{
		FileID:               req.FileID,
		OriginalSize:         rec.Size,
		PageCount:            info.PageCount,
		Pages:                pages,
		Quality:              params.Quality,
		DPI:                  params.DPI,
		Level:                level,
		TargetBytes:          req.TargetBytes,
		BaseName:             s.baseName(req.FileID, "document"),
		UseClientCompression: true,
	}, nil
}

// CompressSaveRequest carries client-rendered JPEG pages as data URIs.
type CompressSaveRequest struct {
	Images       []string `json:"images"`
	BaseName     string   `json:"baseName"`
	OriginalSize int64    `json:"originalSize"`
}

// CompressResult is a recompressed document and what it saved.
type CompressResult struct {
	FileID         string `json:"fileId"`
	Filename       string `json:"filename"`
	OriginalSize   int64  `json:"originalSize"`
	CompressedSize int64  `json:"compressedSize"`
	Reduction      int    `json:"reduction"`
	PageCount      int    `json:"pageCount"`
	Expiry         int64  `json:"expiry"`
	Quality        int    `json:"quality,omitempty"`
	DPI            int    `json:"dpi,omitempty"`
}

// CompressSave assembles one page per image, each page the size of its image.
func (s *Service) CompressSave(ctx context.Context, req CompressSaveRequest) (res CompressResult, err error) {
	defer observe("compress_save", time.Now(), &err)
	if len(req.Images) == 0 {
		return CompressResult{}, apperr.New(apperr.InvalidInput, "No images provided.")
	}
	payloads := make([][]byte, len(req.Images))
	for i, uri := range req.Images {
		if payloads[i], err = decodeDataURI(uri); err != nil {
			return CompressResult{}, apperr.Wrap(apperr.InvalidInput, err, "Image %d is not valid base64 data.", i+1)
		}
	}
	images, err := convert.ImagesFromJPEGs(payloads)
	if err != nil {
		return CompressResult{}, err
	}
	return s.finishCompress(ctx, images, sanitizeName(req.BaseName, "document"), req.OriginalSize)
}

func (s *Service) finishCompress(ctx context.Context, images []convert.Image, base string, originalSize int64) (CompressResult, error) {
	data, err := s.assembler.Assemble(ctx, images, convert.Paper{Size: convert.PaperOriginal})
	if err != nil {
		return CompressResult{}, err
	}
	out, err := s.saveOutput(data, "compressed_"+base+".pdf", len(images))
	if err != nil {
		return CompressResult{}, err
	}
	return CompressResult{
		FileID:         out.FileID,
		Filename:       out.Filename,
		OriginalSize:   originalSize,
		CompressedSize: out.Size,
		Reduction:      convert.Reduction(originalSize, out.Size),
		PageCount:      out.PageCount,
		Expiry:         out.Expiry,
	}, nil
}

// decodeDataURI accepts data:image/jpeg;base64,... or bare base64.
func decodeDataURI(uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "data:") {
		if i := strings.Index(uri, ","); i >= 0 {
			uri = uri[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(uri))
}

// CompressRun does the raster round-trip on the server.
func (s *Service) CompressRun(ctx context.Context, req CompressRequest) (res CompressResult, err error) {
	defer observe("compress_run", time.Now(), &err)
	r, err := s.renderer()
	if err != nil {
		return CompressResult{}, err
	}
	rec, data, err := s.files.ReadFile(req.FileID)
	if err != nil {
		return CompressResult{}, err
	}
	if _, err := s.loader.Resolve(ctx, req.FileID, document.NewCache()); err != nil {
		return CompressResult{}, err
	}
	params, _, err := req.params(rec.Size)
	if err != nil {
		return CompressResult{}, err
	}

	rctx, cancel := s.renderContext(ctx)
	defer cancel()
	pages, err := r.RenderAll(rctx, data, imagerender.Options{DPI: params.DPI, Quality: params.Quality, Color: imagerender.ColorRGB})
	if err != nil {
		return CompressResult{}, apperr.Wrap(apperr.Internal, err, "render pages")
	}
	images := make([]convert.Image, len(pages))
	for i, p := range pages {
		images[i] = convert.Image{Data: p.JPEG, Kind: jpegKind}
	}
	res, err = s.finishCompress(ctx, images, s.baseName(req.FileID, "document"), rec.Size)
	if err != nil {
		return CompressResult{}, err
	}
	res.Quality, res.DPI = params.Quality, params.DPI
	return res, nil
}

func (s *Service) renderContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RenderTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.RenderTimeout)
	}
	return context.WithCancel(ctx)
}
