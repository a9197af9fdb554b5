package convert

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/document"
	"github.com/local/pdfdesk/internal/filetype"
)

// Image is an encoded raster image.
type Image struct {
	Data []byte
	Kind filetype.Kind
}

// Assembler turns images into a document, one page per image.
type Assembler struct {
	codec   document.Codec
	timeout time.Duration
}

func NewAssembler(codec document.Codec, timeout time.Duration) *Assembler {
	return &Assembler{codec: codec, timeout: timeout}
}

// Assemble lays out every image with PlaceImage and writes the document.
func (a *Assembler) Assemble(ctx context.Context, images []Image, paper Paper) ([]byte, error) {
	if len(images) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "No images provided.")
	}
	pages := make([]document.ImagePage, 0, len(images))
	for i, img := range images {
		if !img.Kind.IsImage() {
			return nil, apperr.New(apperr.InvalidInput, "Item %d is not a JPEG or PNG image.", i+1)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "Image %d could not be read.", i+1)
		}
		l := PlaceImage(cfg.Width, cfg.Height, paper)
		pages = append(pages, document.ImagePage{
			Data:        img.Data,
			Kind:        img.Kind,
			PixelWidth:  cfg.Width,
			PixelHeight: cfg.Height,
			PageWidth:   l.PageWidth,
			PageHeight:  l.PageHeight,
			X:           l.X,
			Y:           l.Y,
			Width:       l.Width,
			Height:      l.Height,
		})
	}
	data, err := document.Bounded(ctx, a.timeout, func() ([]byte, error) {
		return a.codec.ImagePages(pages)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "write image document")
	}
	return data, nil
}

// ImagesFromJPEGs wraps raw JPEG payloads, checking each one's magic.
func ImagesFromJPEGs(payloads [][]byte) ([]Image, error) {
	out := make([]Image, 0, len(payloads))
	for i, p := range payloads {
		if kind, ok := filetype.Validate(p); !ok || kind != filetype.JPEG {
			return nil, apperr.New(apperr.InvalidInput, "Image %d is not a JPEG.", i+1)
		}
		out = append(out, Image{Data: p, Kind: filetype.JPEG})
	}
	return out, nil
}
