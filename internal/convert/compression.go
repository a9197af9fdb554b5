// Package convert holds the conversion policies: compression settings,
// image page layout and render parameters.
package convert

import (
	"math"

	"github.com/local/pdfdesk/internal/apperr"
)

// Compression levels.
const (
	LevelLow         = "low"
	LevelRecommended = "recommended"
	LevelExtreme     = "extreme"
)

// Params is the raster round-trip setting used to recompress a document.
type Params struct {
	Quality int `json:"quality"`
	DPI     int `json:"dpi"`
}

var levelParams = map[string]Params{
	LevelLow:         {Quality: 85, DPI: 150},
	LevelRecommended: {Quality: 70, DPI: 120},
	LevelExtreme:     {Quality: 50, DPI: 96},
}

// CompressionParams returns the fixed setting for a named level.
func CompressionParams(level string) (Params, error) {
	p, ok := levelParams[level]
	if !ok {
		return Params{}, apperr.New(apperr.InvalidInput, "Unknown compression level %q.", level)
	}
	return p, nil
}

// TargetParams picks a setting from the ratio of the wanted size to the
// current size. It is a heuristic; callers measure what they actually got.
func TargetParams(targetBytes, originalBytes int64) (Params, error) {
	if targetBytes <= 0 || originalBytes <= 0 {
		return Params{}, apperr.New(apperr.InvalidInput, "Target size must be positive.")
	}
	ratio := float64(targetBytes) / float64(originalBytes)
	switch {
	case ratio >= 0.7:
		return Params{Quality: 85, DPI: 150}, nil
	case ratio >= 0.5:
		return Params{Quality: 70, DPI: 120}, nil
	case ratio >= 0.3:
		return Params{Quality: 55, DPI: 100}, nil
	case ratio >= 0.2:
		return Params{Quality: 45, DPI: 85}, nil
	default:
		return Params{Quality: 35, DPI: 72}, nil
	}
}

// Reduction is the achieved size reduction in whole percent, never negative.
func Reduction(originalBytes, compressedBytes int64) int {
	if originalBytes <= 0 {
		return 0
	}
	r := int(math.Round((1 - float64(compressedBytes)/float64(originalBytes)) * 100))
	return max(r, 0)
}
