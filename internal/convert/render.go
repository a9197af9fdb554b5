package convert

import (
	"math"

	"github.com/local/pdfdesk/internal/document"
)

// JPEG quality tiers.
const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"
)

// DefaultDPI is the render resolution used when none is asked for.
const DefaultDPI = 150

// TierQuality maps a tier onto a JPEG quality. Unknown tiers are low.
func TierQuality(tier string) int {
	switch tier {
	case TierHigh:
		return 95
	case TierMedium:
		return 80
	default:
		return 60
	}
}

// RenderedPage is the expected raster of one page.
type RenderedPage struct {
	Page    int `json:"page"`
	Width   int `json:"width"`
	Height  int `json:"height"`
	Quality int `json:"quality"`
}

// RenderPlan describes how a document is rasterized.
type RenderPlan struct {
	DPI     int
	Scale   float64
	Quality int
	Pages   []RenderedPage
}

// RenderParams computes per-page pixel sizes at dpi (scale dpi/72). Pages
// turned by 90 or 270 degrees swap width and height. A non-positive dpi
// gives 72, which is point size.
func RenderParams(pages []document.PageInfo, dpi int, tier string) RenderPlan {
	if dpi <= 0 {
		dpi = 72
	}
	plan := RenderPlan{
		DPI:     dpi,
		Scale:   float64(dpi) / 72,
		Quality: TierQuality(tier),
		Pages:   make([]RenderedPage, len(pages)),
	}
	for i, p := range pages {
		w, h := p.Width, p.Height
		if p.Rotation == 90 || p.Rotation == 270 {
			w, h = h, w
		}
		plan.Pages[i] = RenderedPage{
			Page:    p.Index + 1,
			Width:   int(math.Round(w * plan.Scale)),
			Height:  int(math.Round(h * plan.Scale)),
			Quality: plan.Quality,
		}
	}
	return plan
}
