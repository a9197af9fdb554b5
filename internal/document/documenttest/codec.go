// Package documenttest provides an in-memory document codec for tests. Its
// documents are plain text, one page per line, so tests can build sources
// by hand and inspect composed output page by page.
package documenttest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/local/pdfdesk/internal/document"
)

// header starts with the PDF magic so fake documents pass upload sniffing.
const header = "%PDF-fake"

// Page is one page of a fake document.
type Page struct {
	Label    string
	Width    float64
	Height   float64
	Rotation int
}

// Build encodes pages as a fake document.
func Build(pages ...Page) []byte {
	var b bytes.Buffer
	b.WriteString(header + "\n")
	for _, p := range pages {
		fmt.Fprintf(&b, "%g %g %d %s\n", p.Width, p.Height, p.Rotation, p.Label)
	}
	return b.Bytes()
}

// Labeled builds n letter-sized pages labeled prefix1..prefixN.
func Labeled(prefix string, n int) []byte {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{Label: fmt.Sprintf("%s%d", prefix, i+1), Width: 612, Height: 792}
	}
	return Build(pages...)
}

// Decode parses a fake document back into its pages.
func Decode(data []byte) ([]Page, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	if !sc.Scan() || sc.Text() != header {
		return nil, errors.New("not a fake document")
	}
	var pages []Page
	for sc.Scan() {
		var p Page
		if _, err := fmt.Sscanf(sc.Text(), "%g %g %d %s", &p.Width, &p.Height, &p.Rotation, &p.Label); err != nil {
			return nil, fmt.Errorf("page %d: %w", len(pages), err)
		}
		pages = append(pages, p)
	}
	return pages, sc.Err()
}

// Labels returns the page labels of a fake document.
func Labels(data []byte) []string {
	pages, err := Decode(data)
	if err != nil {
		return nil
	}
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Label
	}
	return out
}

// Codec is a document.Codec over fake documents. It counts parses and can
// be told to stall, to exercise deadlines.
type Codec struct {
	parses atomic.Int64
	Delay  time.Duration

	mu     sync.Mutex
	images [][]document.ImagePage
}

var _ document.Codec = (*Codec)(nil)

// Parses returns how many times Parse has been called.
func (c *Codec) Parses() int { return int(c.parses.Load()) }

// ImageCalls returns the placements passed to each ImagePages call.
func (c *Codec) ImageCalls() [][]document.ImagePage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]document.ImagePage(nil), c.images...)
}

func (c *Codec) Parse(data []byte) (document.Document, error) {
	c.parses.Add(1)
	if c.Delay > 0 {
		time.Sleep(c.Delay)
	}
	pages, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return &Doc{pages: pages}, nil
}

func (c *Codec) NewOutput() document.Output { return &Output{} }

func (c *Codec) ImagePages(pages []document.ImagePage) ([]byte, error) {
	if len(pages) == 0 {
		return nil, errors.New("no images")
	}
	c.mu.Lock()
	c.images = append(c.images, pages)
	c.mu.Unlock()
	out := make([]Page, len(pages))
	for i, p := range pages {
		out[i] = Page{Label: fmt.Sprintf("img%d", i+1), Width: p.PageWidth, Height: p.PageHeight}
	}
	return Build(out...), nil
}

// Doc is a parsed fake document.
type Doc struct {
	pages []Page
}

func (d *Doc) PageCount() int { return len(d.pages) }

func (d *Doc) Page(index int) (document.PageInfo, error) {
	if index < 0 || index >= len(d.pages) {
		return document.PageInfo{}, fmt.Errorf("page %d out of range", index)
	}
	p := d.pages[index]
	return document.PageInfo{Index: index, Width: p.Width, Height: p.Height, Rotation: p.Rotation}, nil
}

// Output collects copied pages.
type Output struct {
	pages []Page
}

func (o *Output) AddPage(src document.Document, index, rotation int, keepRotation bool) error {
	d, ok := src.(*Doc)
	if !ok {
		return errors.New("foreign document")
	}
	if index < 0 || index >= len(d.pages) {
		return fmt.Errorf("page %d out of range", index)
	}
	p := d.pages[index]
	if !keepRotation {
		p.Rotation = rotation
	}
	o.pages = append(o.pages, p)
	return nil
}

func (o *Output) PageCount() int { return len(o.pages) }

func (o *Output) Bytes() ([]byte, error) {
	if len(o.pages) == 0 {
		return nil, errors.New("empty output")
	}
	return Build(o.pages...), nil
}
