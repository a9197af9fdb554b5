package compose

import (
	"context"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/document"
)

// SourcePage is one slot of a composition plan.
type SourcePage struct {
	SourceID  string
	PageIndex int
	// Rotation is absolute: it replaces the source page's rotation.
	Rotation int
	// KeepRotation carries the source page's own rotation through and
	// ignores Rotation.
	KeepRotation bool
	Deleted      bool
}

// Plan is the exact page order of one output document.
type Plan []SourcePage

// Live returns how many entries are not deleted.
func (p Plan) Live() int {
	n := 0
	for _, sp := range p {
		if !sp.Deleted {
			n++
		}
	}
	return n
}

// NormalizeRotation maps deg onto {0, 90, 180, 270}. Negative values wrap;
// anything not a multiple of 90 is rejected.
func NormalizeRotation(deg int) (int, error) {
	if deg%90 != 0 {
		return 0, apperr.New(apperr.InvalidInput, "Rotation must be a multiple of 90 degrees, got %d.", deg)
	}
	r := deg % 360
	if r < 0 {
		r += 360
	}
	return r, nil
}

// FileLevel expands ids into every page of each source, in source order,
// with the source rotations untouched. Sources are resolved through cache,
// so passing the same cache to Compose parses nothing twice.
func (e *Engine) FileLevel(ctx context.Context, ids []string, cache *document.Cache) (Plan, error) {
	var plan Plan
	for _, id := range ids {
		doc, err := e.resolve(ctx, id, cache)
		if err != nil {
			return nil, err
		}
		for i := 0; i < doc.PageCount(); i++ {
			plan = append(plan, SourcePage{SourceID: id, PageIndex: i, KeepRotation: true})
		}
	}
	return plan, nil
}

// Pages builds a contiguous run of 0-based pages [from, to] of one source.
func Pages(id string, from, to int) Plan {
	plan := make(Plan, 0, to-from+1)
	for i := from; i <= to; i++ {
		plan = append(plan, SourcePage{SourceID: id, PageIndex: i, KeepRotation: true})
	}
	return plan
}
