package pdf

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pdfdesk/internal/document"
	"github.com/local/pdfdesk/internal/filetype"
)

// ImagePages writes one page per image with each image drawn into its
// placement rectangle.
func (c *Codec) ImagePages(pages []document.ImagePage) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdf: no images")
	}
	ctx, err := pdfcpu.CreateContextWithXRefTable(c.conf, types.PaperSize["A4"])
	if err != nil {
		return nil, fmt.Errorf("create image pdf: %w", err)
	}
	treeRef, err := ctx.Pages()
	if err != nil {
		return nil, err
	}
	tree, err := ctx.DereferenceDict(*treeRef)
	if err != nil {
		return nil, err
	}

	for i, p := range pages {
		pageRef, err := addImagePage(ctx.XRefTable, *treeRef, p)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		if err := ctx.SetValid(*pageRef); err != nil {
			return nil, err
		}
		if err := model.AppendPageTree(pageRef, 1, tree); err != nil {
			return nil, err
		}
		ctx.PageCount++
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("write image pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func addImagePage(xrt *model.XRefTable, parent types.IndirectRef, p document.ImagePage) (*types.IndirectRef, error) {
	if p.Kind != filetype.JPEG && p.Kind != filetype.PNG {
		return nil, fmt.Errorf("unsupported image kind %s", p.Kind)
	}
	img, _, _, err := model.CreateImageResource(xrt, bytes.NewReader(p.Data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.Kind, err)
	}

	sd, err := xrt.NewStreamDictForBuf([]byte(placement(p)))
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	contents, err := xrt.IndRefForNewObject(*sd)
	if err != nil {
		return nil, err
	}

	page := types.Dict(map[string]types.Object{
		"Type":     types.Name("Page"),
		"Parent":   parent,
		"MediaBox": types.RectForDim(p.PageWidth, p.PageHeight).Array(),
		"Resources": types.Dict(map[string]types.Object{
			"XObject": types.Dict(map[string]types.Object{"Im0": *img}),
		}),
		"Contents": *contents,
	})
	return xrt.IndRefForNewObject(page)
}

// placement scales the unit image square onto the page rectangle.
func placement(p document.ImagePage) string {
	return fmt.Sprintf("q %s 0 0 %s %s %s cm /Im0 Do Q", num(p.Width), num(p.Height), num(p.X), num(p.Y))
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
