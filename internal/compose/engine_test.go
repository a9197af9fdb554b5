package compose_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/compose"
	"github.com/local/pdfdesk/internal/document"
	"github.com/local/pdfdesk/internal/document/documenttest"
	"github.com/local/pdfdesk/internal/filestore"
	"github.com/local/pdfdesk/internal/filetype"
)

type fixture struct {
	store  *filestore.Store
	codec  *documenttest.Codec
	engine *compose.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := filestore.New(filestore.Options{
		UploadDir: filepath.Join(dir, "uploads"),
		OutputDir: filepath.Join(dir, "outputs"),
	})
	require.NoError(t, err)
	codec := &documenttest.Codec{}
	loader := document.NewLoader(store, codec, time.Second)
	return &fixture{store: store, codec: codec, engine: compose.NewEngine(loader, time.Second)}
}

func (f *fixture) add(t *testing.T, data []byte) string {
	t.Helper()
	rec, err := f.store.SaveBytes(filestore.Uploads, filetype.PDF, data, "s", "src.pdf")
	require.NoError(t, err)
	return rec.ID
}

func labels(prefix string, from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

func TestFileLevelSingleSourceRoundTrip(t *testing.T) {
	f := newFixture(t)
	src := documenttest.Build(
		documenttest.Page{Label: "p1", Width: 612, Height: 792},
		documenttest.Page{Label: "p2", Width: 612, Height: 792, Rotation: 90},
		documenttest.Page{Label: "p3", Width: 595, Height: 842},
	)
	id := f.add(t, src)

	cache := document.NewCache()
	plan, err := f.engine.FileLevel(context.Background(), []string{id}, cache)
	require.NoError(t, err)
	res, err := f.engine.Compose(context.Background(), plan, cache)
	require.NoError(t, err)

	assert.Equal(t, 3, res.PageCount)
	assert.Equal(t, src, res.Data)
	assert.Equal(t, 1, f.codec.Parses())
}

func TestMergeFileLevelScenario(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, documenttest.Labeled("A", 3))
	b := f.add(t, documenttest.Labeled("B", 5))

	cache := document.NewCache()
	plan, err := f.engine.FileLevel(context.Background(), []string{a, b}, cache)
	require.NoError(t, err)
	res, err := f.engine.Compose(context.Background(), plan, cache)
	require.NoError(t, err)

	assert.Equal(t, 8, res.PageCount)
	assert.Equal(t, append(labels("A", 1, 3), labels("B", 1, 5)...), documenttest.Labels(res.Data))
}

func TestPageLevelFullOrderEqualsFileLevel(t *testing.T) {
	f := newFixture(t)
	ids := []string{
		f.add(t, documenttest.Labeled("A", 2)),
		f.add(t, documenttest.Labeled("B", 4)),
		f.add(t, documenttest.Labeled("C", 1)),
	}
	counts := []int{2, 4, 1}

	fileLevel, err := f.engine.FileLevel(context.Background(), ids, nil)
	require.NoError(t, err)
	want, err := f.engine.Compose(context.Background(), fileLevel, nil)
	require.NoError(t, err)

	var pageLevel compose.Plan
	for i, id := range ids {
		pageLevel = append(pageLevel, compose.Pages(id, 0, counts[i]-1)...)
	}
	got, err := f.engine.Compose(context.Background(), pageLevel, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMergeOfLargeSourcesParsesEachOnce(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for _, p := range []string{"a", "b", "c"} {
		ids = append(ids, f.add(t, documenttest.Labeled(p, 100)))
	}
	// Interleave: page i of every source in turn.
	var plan compose.Plan
	for i := 0; i < 100; i++ {
		for _, id := range ids {
			plan = append(plan, compose.SourcePage{SourceID: id, PageIndex: i, KeepRotation: true})
		}
	}
	res, err := f.engine.Compose(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.Equal(t, 300, res.PageCount)
	assert.Equal(t, 3, f.codec.Parses())
	assert.Equal(t, []string{"a1", "b1", "c1", "a2"}, documenttest.Labels(res.Data)[:4])
}

func TestRotationIsAbsolute(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, documenttest.Build(documenttest.Page{Label: "p1", Width: 100, Height: 200, Rotation: 270}))

	first, err := f.engine.Compose(context.Background(), compose.Plan{{SourceID: id, Rotation: 90}}, nil)
	require.NoError(t, err)
	rec, err := f.store.SaveBytes(filestore.Outputs, filetype.PDF, first.Data, "s", "")
	require.NoError(t, err)

	second, err := f.engine.Compose(context.Background(), compose.Plan{{SourceID: rec.ID, Rotation: 90}}, nil)
	require.NoError(t, err)
	pages, err := documenttest.Decode(second.Data)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 90, pages[0].Rotation)
}

func TestKeepRotationPreservesSource(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, documenttest.Build(documenttest.Page{Label: "p1", Width: 100, Height: 200, Rotation: 180}))
	res, err := f.engine.Compose(context.Background(), compose.Plan{{SourceID: id, Rotation: 90, KeepRotation: true}}, nil)
	require.NoError(t, err)
	pages, err := documenttest.Decode(res.Data)
	require.NoError(t, err)
	assert.Equal(t, 180, pages[0].Rotation)
}

func TestOrganizeReorderRotateDeleteInsert(t *testing.T) {
	f := newFixture(t)
	main := f.add(t, documenttest.Labeled("M", 3))
	other := f.add(t, documenttest.Labeled("O", 2))

	plan := compose.Plan{
		{SourceID: main, PageIndex: 2, Rotation: -90},
		{SourceID: other, PageIndex: 1},
		{SourceID: main, PageIndex: 0, Deleted: true},
		{SourceID: main, PageIndex: 1, Rotation: 450},
	}
	res, err := f.engine.Compose(context.Background(), plan, nil)
	require.NoError(t, err)
	pages, err := documenttest.Decode(res.Data)
	require.NoError(t, err)

	require.Len(t, pages, 3)
	assert.Equal(t, []string{"M3", "O2", "M2"}, documenttest.Labels(res.Data))
	assert.Equal(t, 270, pages[0].Rotation)
	assert.Equal(t, 0, pages[1].Rotation)
	assert.Equal(t, 90, pages[2].Rotation)
}

func TestDeletedEntriesAreNeverResolved(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, documenttest.Labeled("p", 1))
	plan := compose.Plan{
		{SourceID: id},
		{SourceID: "gone", PageIndex: 99, Deleted: true},
	}
	res, err := f.engine.Compose(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PageCount)
}

func TestAllDeletedIsEmptyOutput(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, documenttest.Labeled("p", 2))
	plan := compose.Plan{{SourceID: id, Deleted: true}, {SourceID: id, PageIndex: 1, Deleted: true}}

	_, err := f.engine.Compose(context.Background(), plan, nil)
	assert.True(t, errors.Is(err, apperr.ErrEmptyOutput))
	assert.Equal(t, 0, f.codec.Parses())

	_, err = f.engine.Compose(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, apperr.ErrEmptyOutput))
}

func TestUnknownSourceFailsWholeComposition(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, documenttest.Labeled("p", 2))
	plan := compose.Plan{{SourceID: id}, {SourceID: "missing"}}

	res, err := f.engine.Compose(context.Background(), plan, nil)
	assert.True(t, errors.Is(err, apperr.ErrSourceNotFound))
	assert.Empty(t, res.Data)
}

func TestOutOfRangePageIndex(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, documenttest.Labeled("p", 2))
	for _, idx := range []int{2, -1} {
		_, err := f.engine.Compose(context.Background(), compose.Plan{{SourceID: id, PageIndex: idx}}, nil)
		assert.True(t, errors.Is(err, apperr.ErrInvalidPageIndex), "index %d", idx)
	}
}

func TestBadRotationRejected(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, documenttest.Labeled("p", 1))
	_, err := f.engine.Compose(context.Background(), compose.Plan{{SourceID: id, Rotation: 45}}, nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestSplitScenario(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, documenttest.Labeled("p", 10))

	ranges, err := compose.SplitRanges(10, []compose.Range{{Start: 1, End: 3}, {Start: 5, End: 5}})
	require.NoError(t, err)
	require.Len(t, ranges, 2)

	var outputs [][]string
	for _, r := range ranges {
		res, err := f.engine.Compose(context.Background(), r.Plan(id), nil)
		require.NoError(t, err)
		assert.Equal(t, r.Len(), res.PageCount)
		outputs = append(outputs, documenttest.Labels(res.Data))
	}
	assert.Equal(t, [][]string{{"p1", "p2", "p3"}, {"p5"}}, outputs)
}

func TestSplitSinglePageRangesEqualExtractAll(t *testing.T) {
	var singles []compose.Range
	for i := 1; i <= 4; i++ {
		singles = append(singles, compose.Range{Start: i, End: i})
	}
	got, err := compose.SplitRanges(4, singles)
	require.NoError(t, err)
	assert.Equal(t, compose.ExtractAll(4), got)
}
