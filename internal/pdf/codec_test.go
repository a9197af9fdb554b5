package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfdesk/internal/document"
	"github.com/local/pdfdesk/internal/filetype"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

func testPNG(t *testing.T, w, h int, alpha uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{G: 180, B: 40, A: alpha})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// samplePDF builds a document with the given page sizes from images.
func samplePDF(t *testing.T, sizes ...[2]float64) []byte {
	t.Helper()
	jpg := testJPEG(t, 8, 6)
	var pages []document.ImagePage
	for _, s := range sizes {
		pages = append(pages, document.ImagePage{
			Data: jpg, Kind: filetype.JPEG, PixelWidth: 8, PixelHeight: 6,
			PageWidth: s[0], PageHeight: s[1], X: 36, Y: 36, Width: s[0] - 72, Height: s[1] - 72,
		})
	}
	data, err := NewCodec().ImagePages(pages)
	require.NoError(t, err)
	return data
}

// imageDicts returns the image XObjects of data.
func imageDicts(t *testing.T, data []byte) []types.StreamDict {
	t.Helper()
	ctx, err := api.ReadContext(bytes.NewReader(data), NewCodec().conf)
	require.NoError(t, err)
	var out []types.StreamDict
	for _, e := range ctx.Table {
		if e == nil || e.Free {
			continue
		}
		sd, ok := e.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if st := sd.Subtype(); st != nil && *st == "Image" {
			out = append(out, sd)
		}
	}
	return out
}

func TestImagePagesLayout(t *testing.T) {
	data, err := NewCodec().ImagePages([]document.ImagePage{
		{Data: testJPEG(t, 4, 3), Kind: filetype.JPEG, PageWidth: 595.28, PageHeight: 841.89, X: 36, Y: 100.5, Width: 523.28, Height: 392.46},
		{Data: testPNG(t, 2, 2, 128), Kind: filetype.PNG, PageWidth: 2, PageHeight: 2, Width: 2, Height: 2},
	})
	require.NoError(t, err)

	pages, err := Inspect(data)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.InDelta(t, 595.28, pages[0].Width, 0.01)
	assert.InDelta(t, 841.89, pages[0].Height, 0.01)
	assert.InDelta(t, 2, pages[1].Width, 0.01)

	var dct, masked int
	for _, sd := range imageDicts(t, data) {
		if f, ok := sd.Find("Filter"); ok && f.String() == "DCTDecode" {
			dct++
		}
		if _, ok := sd.Find("SMask"); ok {
			masked++
		}
	}
	assert.Equal(t, 1, dct)
	assert.Equal(t, 1, masked)
}

func TestPlacementDrawsIntoRectangle(t *testing.T) {
	got := placement(document.ImagePage{X: 36, Y: 100.5, Width: 523.28, Height: 392.46})
	assert.Equal(t, "q 523.28 0 0 392.46 36 100.5 cm /Im0 Do Q", got)
}

func TestImagePagesOpaquePNGHasNoMask(t *testing.T) {
	data, err := NewCodec().ImagePages([]document.ImagePage{
		{Data: testPNG(t, 3, 3, 255), Kind: filetype.PNG, PageWidth: 3, PageHeight: 3, Width: 3, Height: 3},
	})
	require.NoError(t, err)
	for _, sd := range imageDicts(t, data) {
		_, ok := sd.Find("SMask")
		assert.False(t, ok)
	}
}

func TestImagePagesRejectsUnknownKind(t *testing.T) {
	_, err := NewCodec().ImagePages([]document.ImagePage{{Data: []byte("x"), Kind: filetype.PDF}})
	assert.Error(t, err)
	_, err = NewCodec().ImagePages(nil)
	assert.Error(t, err)
}

func TestParseImagePDF(t *testing.T) {
	data := samplePDF(t, [2]float64{612, 792}, [2]float64{842, 595})
	doc, err := NewCodec().Parse(data)
	require.NoError(t, err)
	require.Equal(t, 2, doc.PageCount())

	p, err := doc.Page(1)
	require.NoError(t, err)
	assert.InDelta(t, 842, p.Width, 0.01)
	assert.InDelta(t, 595, p.Height, 0.01)
	assert.Equal(t, 0, p.Rotation)

	_, err = doc.Page(2)
	assert.Error(t, err)
}

func TestParseGarbage(t *testing.T) {
	_, err := NewCodec().Parse([]byte("%PDF-1.4\nnot really"))
	assert.Error(t, err)
}

func TestOutputReordersAndRotates(t *testing.T) {
	codec := NewCodec()
	src, err := codec.Parse(samplePDF(t, [2]float64{100, 200}, [2]float64{300, 400}, [2]float64{500, 600}))
	require.NoError(t, err)

	out := codec.NewOutput()
	require.NoError(t, out.AddPage(src, 2, 90, false))
	require.NoError(t, out.AddPage(src, 0, 0, true))
	assert.Equal(t, 2, out.PageCount())

	data, err := out.Bytes()
	require.NoError(t, err)
	pages, err := Inspect(data)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.InDelta(t, 500, pages[0].Width, 0.01)
	assert.Equal(t, 90, pages[0].Rotation)
	assert.InDelta(t, 100, pages[1].Width, 0.01)
	assert.Equal(t, 0, pages[1].Rotation)
}

func TestOutputRejectsForeignDocument(t *testing.T) {
	out := NewCodec().NewOutput()
	assert.Error(t, out.AddPage(nil, 0, 0, true))
	_, err := out.Bytes()
	assert.Error(t, err)
}
