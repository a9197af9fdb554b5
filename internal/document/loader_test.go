package document_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/document"
	"github.com/local/pdfdesk/internal/document/documenttest"
	"github.com/local/pdfdesk/internal/filestore"
	"github.com/local/pdfdesk/internal/filetype"
)

func newStore(t *testing.T) *filestore.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := filestore.New(filestore.Options{
		UploadDir: filepath.Join(dir, "uploads"),
		OutputDir: filepath.Join(dir, "outputs"),
	})
	require.NoError(t, err)
	return s
}

func TestResolveParsesEachSourceOnce(t *testing.T) {
	store := newStore(t)
	codec := &documenttest.Codec{}
	loader := document.NewLoader(store, codec, time.Second)

	var ids []string
	for _, prefix := range []string{"a", "b", "c"} {
		rec, err := store.SaveBytes(filestore.Uploads, filetype.PDF, documenttest.Labeled(prefix, 100), "s", prefix+".pdf")
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	cache := document.NewCache()
	for page := 0; page < 100; page++ {
		for _, id := range ids {
			doc, err := loader.Resolve(context.Background(), id, cache)
			require.NoError(t, err)
			assert.Equal(t, 100, doc.PageCount())
		}
	}
	assert.Equal(t, 3, codec.Parses())
	assert.Equal(t, 3, cache.Len())
}

func TestResolveConcurrentSameID(t *testing.T) {
	store := newStore(t)
	codec := &documenttest.Codec{Delay: 10 * time.Millisecond}
	loader := document.NewLoader(store, codec, time.Second)
	rec, err := store.SaveBytes(filestore.Uploads, filetype.PDF, documenttest.Labeled("p", 2), "s", "p.pdf")
	require.NoError(t, err)

	cache := document.NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := loader.Resolve(context.Background(), rec.ID, cache)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, codec.Parses())
}

func TestSeparateCachesParseAgain(t *testing.T) {
	store := newStore(t)
	codec := &documenttest.Codec{}
	loader := document.NewLoader(store, codec, time.Second)
	rec, err := store.SaveBytes(filestore.Uploads, filetype.PDF, documenttest.Labeled("p", 1), "s", "p.pdf")
	require.NoError(t, err)

	_, err = loader.Resolve(context.Background(), rec.ID, document.NewCache())
	require.NoError(t, err)
	_, err = loader.Resolve(context.Background(), rec.ID, document.NewCache())
	require.NoError(t, err)
	assert.Equal(t, 2, codec.Parses())
}

func TestResolveUnknownID(t *testing.T) {
	loader := document.NewLoader(newStore(t), &documenttest.Codec{}, time.Second)
	_, err := loader.Resolve(context.Background(), "nope", document.NewCache())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestResolveImageIsNotADocument(t *testing.T) {
	store := newStore(t)
	loader := document.NewLoader(store, &documenttest.Codec{}, time.Second)
	rec, err := store.SaveBytes(filestore.Uploads, filetype.PNG, []byte("png"), "s", "a.png")
	require.NoError(t, err)

	_, err = loader.Resolve(context.Background(), rec.ID, document.NewCache())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestResolveCorrupt(t *testing.T) {
	store := newStore(t)
	loader := document.NewLoader(store, &documenttest.Codec{}, time.Second)
	rec, err := store.SaveBytes(filestore.Uploads, filetype.PDF, []byte("%PDF-1.7 garbage"), "s", "bad.pdf")
	require.NoError(t, err)

	_, err = loader.Resolve(context.Background(), rec.ID, document.NewCache())
	assert.True(t, errors.Is(err, apperr.ErrCorruptDocument))
}

func TestResolveParseTimeout(t *testing.T) {
	store := newStore(t)
	codec := &documenttest.Codec{Delay: 200 * time.Millisecond}
	loader := document.NewLoader(store, codec, 20*time.Millisecond)
	rec, err := store.SaveBytes(filestore.Uploads, filetype.PDF, documenttest.Labeled("p", 1), "s", "p.pdf")
	require.NoError(t, err)

	_, err = loader.Resolve(context.Background(), rec.ID, document.NewCache())
	assert.True(t, errors.Is(err, apperr.ErrCorruptDocument))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBoundedReturnsResult(t *testing.T) {
	v, err := document.Bounded(context.Background(), time.Second, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
