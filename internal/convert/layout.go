package convert

import "strings"

// PaperOriginal sizes each page to its image.
const PaperOriginal = "original"

// Orientations.
const (
	OrientationAuto      = "auto"
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// Margin is kept clear on every side of a named paper size, in points.
const Margin = 36.0

// PaperSize is a portrait sheet size in points.
type PaperSize struct {
	Width  float64
	Height float64
}

var paperSizes = map[string]PaperSize{
	"a4":     {595.28, 841.89},
	"letter": {612, 792},
	"legal":  {612, 1008},
	"a3":     {841.89, 1190.55},
	"a5":     {419.53, 595.28},
}

// LookupPaper returns the named size. Unknown names report false.
func LookupPaper(name string) (PaperSize, bool) {
	p, ok := paperSizes[strings.ToLower(name)]
	return p, ok
}

// Paper is the page sizing policy for image conversion.
type Paper struct {
	Size        string
	Orientation string
}

// Layout is a page and the rectangle the image is drawn into, in points
// from the bottom-left corner.
type Layout struct {
	PageWidth  float64
	PageHeight float64
	X, Y       float64
	Width      float64
	Height     float64
}

// PlaceImage lays out one w x h pixel image. The original size, and any
// unknown paper name, gives a page the size of the image. A named size is
// oriented (auto turns landscape for wide images) and the image is scaled
// uniformly to fit inside the margins and centered.
func PlaceImage(w, h int, paper Paper) Layout {
	iw, ih := float64(w), float64(h)
	size, ok := LookupPaper(paper.Size)
	if !ok || w <= 0 || h <= 0 {
		return Layout{PageWidth: iw, PageHeight: ih, Width: iw, Height: ih}
	}

	landscape := paper.Orientation == OrientationLandscape ||
		(paper.Orientation == OrientationAuto || paper.Orientation == "") && w > h
	pw, ph := size.Width, size.Height
	if landscape {
		pw, ph = ph, pw
	}
	scale := min((pw-2*Margin)/iw, (ph-2*Margin)/ih)
	dw, dh := iw*scale, ih*scale
	return Layout{
		PageWidth:  pw,
		PageHeight: ph,
		X:          (pw - dw) / 2,
		Y:          (ph - dh) / 2,
		Width:      dw,
		Height:     dh,
	}
}
