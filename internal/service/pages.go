package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/compose"
	"github.com/local/pdfdesk/internal/document"
	"github.com/local/pdfdesk/internal/logger"
)

// MergePage selects one page of one merge input.
type MergePage struct {
	FileID    string `json:"fileId"`
	PageIndex int    `json:"pageIndex"`
}

// MergeRequest concatenates files, or interleaves their pages when Pages
// is set.
type MergeRequest struct {
	FileIDs []string    `json:"fileIds"`
	Order   []string    `json:"order"`
	Pages   []MergePage `json:"pages"`
}

func (s *Service) Merge(ctx context.Context, req MergeRequest) (out Output, err error) {
	defer observe("merge", time.Now(), &err)
	if len(req.FileIDs) < 2 {
		return Output{}, apperr.New(apperr.InvalidInput, "At least 2 files required for merge.")
	}
	cache := document.NewCache()
	var plan compose.Plan
	first := req.FileIDs[0]
	allowed := make(map[string]bool, len(req.FileIDs))
	for _, id := range req.FileIDs {
		allowed[id] = true
	}
	if req.Pages != nil {
		for _, p := range req.Pages {
			if !allowed[p.FileID] {
				return Output{}, apperr.New(apperr.SourceNotFound, "File %s not found.", p.FileID)
			}
			plan = append(plan, compose.SourcePage{SourceID: p.FileID, PageIndex: p.PageIndex, KeepRotation: true})
		}
		if len(req.Pages) > 0 {
			first = req.Pages[0].FileID
		}
	} else {
		ids := req.FileIDs
		if len(req.Order) > 0 {
			for _, id := range req.Order {
				if !allowed[id] {
					return Output{}, apperr.New(apperr.SourceNotFound, "File %s not found.", id)
				}
			}
			ids = req.Order
		}
		first = ids[0]
		if plan, err = s.engine.FileLevel(ctx, ids, cache); err != nil {
			return Output{}, err
		}
	}

	res, err := s.engine.Compose(ctx, plan, cache)
	if err != nil {
		return Output{}, err
	}
	return s.saveOutput(res.Data, "merged_"+s.baseName(first, "document")+".pdf", res.PageCount)
}

// SplitRequest splits one document by ranges, or into single pages.
type SplitRequest struct {
	FileID     string          `json:"fileId"`
	ExtractAll bool            `json:"extractAll"`
	Ranges     []compose.Range `json:"ranges"`
}

// SplitResult lists one output per range.
type SplitResult struct {
	Files      []Output `json:"files"`
	TotalPages int      `json:"totalPages"`
}

func (s *Service) Split(ctx context.Context, req SplitRequest) (res SplitResult, err error) {
	defer observe("split", time.Now(), &err)
	cache := document.NewCache()
	doc, err := s.loader.Resolve(ctx, req.FileID, cache)
	if err != nil {
		return SplitResult{}, err
	}
	total := doc.PageCount()

	var ranges []compose.Range
	if req.ExtractAll {
		ranges = compose.ExtractAll(total)
	} else if ranges, err = compose.SplitRanges(total, req.Ranges); err != nil {
		return SplitResult{}, err
	}
	if len(ranges) == 0 {
		return SplitResult{}, apperr.New(apperr.EmptyOutput, "Document has no pages.")
	}

	base := s.baseName(req.FileID, "document")
	res = SplitResult{Files: make([]Output, 0, len(ranges)), TotalPages: total}
	defer func() {
		// a failed split leaves nothing behind
		if err != nil {
			for _, f := range res.Files {
				_, _ = s.files.Delete(f.FileID)
			}
			res = SplitResult{}
		}
	}()
	for _, r := range ranges {
		composed, cerr := s.engine.Compose(ctx, r.Plan(req.FileID), cache)
		if cerr != nil {
			return res, cerr
		}
		name := fmt.Sprintf("split_%s_pages%d-%d.pdf", base, r.Start, r.End)
		if req.ExtractAll {
			name = fmt.Sprintf("split_%s_page%d.pdf", base, r.Start)
		}
		out, serr := s.saveOutput(composed.Data, name, composed.PageCount)
		if serr != nil {
			return res, serr
		}
		res.Files = append(res.Files, out)
	}
	logger.Document(zerolog.InfoLevel, "split", req.FileID, res.TotalPages).Int("outputs", len(res.Files)).Msg("split complete")
	return res, nil
}

// OrganizePage is one slot of the organized document. SourceFile defaults
// to the request's FileID; Rotation is absolute.
type OrganizePage struct {
	Index      int    `json:"index"`
	Rotation   int    `json:"rotation"`
	Deleted    bool   `json:"deleted"`
	SourceFile string `json:"sourceFile,omitempty"`
}

// OrganizeOperations is the single-source form: an optional page order,
// rotations keyed by page index and deleted page indexes.
type OrganizeOperations struct {
	Order     []int          `json:"order"`
	Rotations map[string]int `json:"rotations"`
	Deletions []int          `json:"deletions"`
}

type OrganizeRequest struct {
	FileID     string              `json:"fileId"`
	Pages      []OrganizePage      `json:"pages"`
	Operations *OrganizeOperations `json:"operations"`
}

func (s *Service) Organize(ctx context.Context, req OrganizeRequest) (out Output, err error) {
	defer observe("organize", time.Now(), &err)
	cache := document.NewCache()
	doc, err := s.loader.Resolve(ctx, req.FileID, cache)
	if err != nil {
		return Output{}, err
	}

	var plan compose.Plan
	if req.Pages != nil {
		for _, p := range req.Pages {
			src := p.SourceFile
			if src == "" {
				src = req.FileID
			}
			plan = append(plan, compose.SourcePage{SourceID: src, PageIndex: p.Index, Rotation: p.Rotation, Deleted: p.Deleted})
		}
	} else {
		if plan, err = legacyPlan(req.FileID, doc.PageCount(), req.Operations); err != nil {
			return Output{}, err
		}
	}

	res, err := s.engine.Compose(ctx, plan, cache)
	if err != nil {
		return Output{}, err
	}
	return s.saveOutput(res.Data, "organized_"+s.baseName(req.FileID, "document")+".pdf", res.PageCount)
}

func legacyPlan(id string, pageCount int, ops *OrganizeOperations) (compose.Plan, error) {
	if ops == nil {
		ops = &OrganizeOperations{}
	}
	order := ops.Order
	if order == nil {
		order = make([]int, pageCount)
		for i := range order {
			order[i] = i
		}
	}
	deleted := make(map[int]bool, len(ops.Deletions))
	for _, d := range ops.Deletions {
		deleted[d] = true
	}
	rotations := make(map[int]int, len(ops.Rotations))
	for k, v := range ops.Rotations {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, apperr.New(apperr.InvalidInput, "Invalid page index %q in rotations.", k)
		}
		rotations[idx] = v
	}

	plan := make(compose.Plan, 0, len(order))
	for _, idx := range order {
		sp := compose.SourcePage{SourceID: id, PageIndex: idx, Deleted: deleted[idx], KeepRotation: true}
		if r, ok := rotations[idx]; ok {
			sp.Rotation, sp.KeepRotation = r, false
		}
		plan = append(plan, sp)
	}
	return plan, nil
}

// DocInfo is the page geometry of a document.
type DocInfo struct {
	PageCount int                 `json:"pageCount"`
	Pages     []document.PageInfo `json:"pages"`
}

func (s *Service) Info(ctx context.Context, id string) (info DocInfo, err error) {
	defer observe("info", time.Now(), &err)
	doc, err := s.loader.Resolve(ctx, id, document.NewCache())
	if err != nil {
		return DocInfo{}, err
	}
	return docInfo(doc)
}

func docInfo(doc document.Document) (DocInfo, error) {
	info := DocInfo{PageCount: doc.PageCount(), Pages: make([]document.PageInfo, doc.PageCount())}
	for i := range info.Pages {
		p, err := doc.Page(i)
		if err != nil {
			return DocInfo{}, apperr.Wrap(apperr.CorruptDocument, err, "Failed to read PDF document.")
		}
		info.Pages[i] = p
	}
	return info, nil
}
