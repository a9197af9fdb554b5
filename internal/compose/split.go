package compose

import (
	"github.com/local/pdfdesk/internal/apperr"
)

// Range is a 1-based inclusive page range. End zero means End == Start.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of pages in r.
func (r Range) Len() int { return r.End - r.Start + 1 }

// Plan turns the range into a run over source id.
func (r Range) Plan(id string) Plan { return Pages(id, r.Start-1, r.End-1) }

// SplitRanges clamps every range to [1, pageCount]. A range left empty by
// clamping is rejected rather than silently producing nothing.
func SplitRanges(pageCount int, ranges []Range) ([]Range, error) {
	if len(ranges) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "At least one page range is required.")
	}
	if pageCount < 1 {
		return nil, apperr.New(apperr.EmptyOutput, "Document has no pages.")
	}
	out := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.End == 0 {
			r.End = r.Start
		}
		c := Range{Start: max(r.Start, 1), End: min(r.End, pageCount)}
		if c.Start > c.End {
			return nil, apperr.New(apperr.InvalidInput, "Invalid page range %d-%d for a %d page document.", r.Start, r.End, pageCount)
		}
		out = append(out, c)
	}
	return out, nil
}

// ExtractAll is one single-page range per page.
func ExtractAll(pageCount int) []Range {
	out := make([]Range, pageCount)
	for i := range out {
		out[i] = Range{Start: i + 1, End: i + 1}
	}
	return out
}
