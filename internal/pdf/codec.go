// Package pdf is the pdfcpu-backed document codec.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pdfdesk/internal/document"
)

var configOnce sync.Once

// Codec implements document.Codec with pdfcpu.
type Codec struct {
	conf *model.Configuration
}

var _ document.Codec = (*Codec)(nil)

func NewCodec() *Codec {
	// pdfcpu would otherwise create a config dir under the user's home.
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Codec{conf: conf}
}

// Parse reads and validates data and collects per-page geometry.
func (c *Codec) Parse(data []byte) (document.Document, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), c.conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	doc := &Doc{ctx: ctx, pages: make([]document.PageInfo, ctx.PageCount)}
	for i := range doc.pages {
		info, err := pageInfo(ctx, i)
		if err != nil {
			return nil, err
		}
		doc.pages[i] = info
	}
	return doc, nil
}

func pageInfo(ctx *model.Context, index int) (document.PageInfo, error) {
	_, _, inh, err := ctx.PageDict(index+1, false)
	if err != nil {
		return document.PageInfo{}, fmt.Errorf("page %d: %w", index+1, err)
	}
	info := document.PageInfo{Index: index}
	if inh == nil {
		return info, nil
	}
	box := inh.CropBox
	if box == nil {
		box = inh.MediaBox
	}
	if box != nil {
		info.Width, info.Height = box.Width(), box.Height()
	}
	info.Rotation = ((inh.Rotate % 360) + 360) % 360
	return info, nil
}

func (c *Codec) NewOutput() document.Output { return &Output{conf: c.conf} }

// Doc is a parsed PDF.
type Doc struct {
	ctx   *model.Context
	pages []document.PageInfo

	mu        sync.Mutex
	extracted map[int][]byte
}

func (d *Doc) PageCount() int { return len(d.pages) }

func (d *Doc) Page(index int) (document.PageInfo, error) {
	if index < 0 || index >= len(d.pages) {
		return document.PageInfo{}, fmt.Errorf("page %d out of range (1-%d)", index+1, len(d.pages))
	}
	return d.pages[index], nil
}

// extract returns page index as a standalone single-page PDF. Results are
// kept, so a page placed twice is only extracted once.
func (d *Doc) extract(index int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.extracted[index]; ok {
		return b, nil
	}
	r, err := api.ExtractPage(d.ctx, index+1)
	if err != nil {
		return nil, fmt.Errorf("extract page %d: %w", index+1, err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("extract page %d: %w", index+1, err)
	}
	if d.extracted == nil {
		d.extracted = make(map[int][]byte)
	}
	d.extracted[index] = b
	return b, nil
}

// Output assembles extracted pages into one PDF.
type Output struct {
	conf      *model.Configuration
	parts     [][]byte
	overrides []int // -1 keeps the page's own rotation
}

func (o *Output) AddPage(src document.Document, index, rotation int, keepRotation bool) error {
	d, ok := src.(*Doc)
	if !ok {
		return fmt.Errorf("pdf: cannot copy from %T", src)
	}
	if index < 0 || index >= d.PageCount() {
		return fmt.Errorf("pdf: page %d out of range", index+1)
	}
	b, err := d.extract(index)
	if err != nil {
		return err
	}
	o.parts = append(o.parts, b)
	if keepRotation {
		o.overrides = append(o.overrides, -1)
	} else {
		o.overrides = append(o.overrides, rotation)
	}
	return nil
}

func (o *Output) PageCount() int { return len(o.parts) }

// Bytes merges the collected pages and then stamps the rotation overrides.
func (o *Output) Bytes() ([]byte, error) {
	if len(o.parts) == 0 {
		return nil, fmt.Errorf("pdf: no pages")
	}
	merged := o.parts[0]
	if len(o.parts) > 1 {
		rs := make([]io.ReadSeeker, len(o.parts))
		for i, p := range o.parts {
			rs[i] = bytes.NewReader(p)
		}
		var buf bytes.Buffer
		if err := api.MergeRaw(rs, &buf, false, o.conf); err != nil {
			return nil, fmt.Errorf("merge pages: %w", err)
		}
		merged = buf.Bytes()
	}
	if !o.hasOverrides() {
		return merged, nil
	}

	ctx, err := api.ReadContext(bytes.NewReader(merged), o.conf)
	if err != nil {
		return nil, fmt.Errorf("reread merged: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("reread merged: %w", err)
	}
	for i, rot := range o.overrides {
		if rot < 0 {
			continue
		}
		dict, _, _, err := ctx.PageDict(i+1, false)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		dict.Update("Rotate", types.Integer(rot))
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (o *Output) hasOverrides() bool {
	for _, r := range o.overrides {
		if r >= 0 {
			return true
		}
	}
	return false
}

// Inspect parses data and returns its page geometry.
func Inspect(data []byte) ([]document.PageInfo, error) {
	doc, err := NewCodec().Parse(data)
	if err != nil {
		return nil, err
	}
	return doc.(*Doc).pages, nil
}
