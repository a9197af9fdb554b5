package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfdesk/internal/api"
	"github.com/local/pdfdesk/internal/document/documenttest"
	"github.com/local/pdfdesk/internal/filestore"
	"github.com/local/pdfdesk/internal/limiter"
	"github.com/local/pdfdesk/internal/service"
	"github.com/local/pdfdesk/internal/statuscheck"
)

type testServer struct {
	*httptest.Server
	store *filestore.Store
}

func newServer(t *testing.T, mutate func(*api.Dependencies)) *testServer {
	t.Helper()
	dir := t.TempDir()
	uploads, outputs := filepath.Join(dir, "uploads"), filepath.Join(dir, "outputs")
	store, err := filestore.New(filestore.Options{UploadDir: uploads, OutputDir: outputs})
	require.NoError(t, err)
	svc := service.New(store, &documenttest.Codec{}, service.Options{
		ParseTimeout:     time.Second,
		SerializeTimeout: time.Second,
	})
	deps := api.Dependencies{
		Service:      svc,
		Health:       statuscheck.New(statuscheck.Options{UploadDir: uploads, OutputDir: outputs, Tracked: store.Len}),
		MaxJSONBytes: 1 << 20,
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := httptest.NewServer(api.New(deps).Handler())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store}
}

type file struct {
	name string
	data []byte
}

func (ts *testServer) upload(t *testing.T, session string, files ...file) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		fw, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if session != "" {
		req.Header.Set("X-Session-ID", session)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) postJSON(t *testing.T, path string, v any) *http.Response {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func uploadedIDs(t *testing.T, body map[string]any) []string {
	t.Helper()
	files, ok := body["files"].([]any)
	require.True(t, ok)
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.(map[string]any)["id"].(string)
	}
	return ids
}

func TestUploadMergeDownload(t *testing.T) {
	ts := newServer(t, nil)

	resp := ts.upload(t, "sess-42",
		file{"report.pdf", documenttest.Labeled("a", 2)},
		file{"notes.txt", []byte("just text")},
		file{"b.pdf", documenttest.Labeled("b", 1)},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "sess-42", body["sessionId"])
	assert.EqualValues(t, 30, body["expiresIn"])
	ids := uploadedIDs(t, body)
	require.Len(t, ids, 2)

	resp = ts.postJSON(t, "/api/merge", map[string]any{"fileIds": ids})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	merged := decode(t, resp)
	assert.Equal(t, "merged_report.pdf", merged["filename"])
	assert.EqualValues(t, 3, merged["pageCount"])
	assert.Greater(t, merged["expiry"].(float64), float64(time.Now().UnixMilli()))

	dl, err := http.Get(ts.URL + "/api/download/" + merged["fileId"].(string) + "?filename=mine.pdf")
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, "application/pdf", dl.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename=mine.pdf`, dl.Header.Get("Content-Disposition"))
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "b1"}, documenttest.Labels(data))
}

func TestUploadWithoutValidFiles(t *testing.T) {
	ts := newServer(t, nil)
	resp := ts.upload(t, "", file{"x.pdf", []byte("nope")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "No valid files uploaded.", body["error"])
}

func TestErrorResponses(t *testing.T) {
	ts := newServer(t, nil)

	resp := ts.postJSON(t, "/api/merge", map[string]any{"fileIds": []string{"a", "b"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "File a not found.", body["error"])

	resp = ts.postJSON(t, "/api/merge", map[string]any{"fileIds": []string{"only-one"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "At least 2 files required for merge.", body["error"])

	resp, err := http.Post(ts.URL+"/api/split", "application/json", strings.NewReader("{broken"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid JSON body.", decode(t, resp)["error"])

	resp, err = http.Get(ts.URL + "/api/pdf-info/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestJSONBodyLimit(t *testing.T) {
	ts := newServer(t, func(d *api.Dependencies) { d.MaxJSONBytes = 64 })
	resp := ts.postJSON(t, "/api/compress-save", map[string]any{"images": []string{strings.Repeat("A", 200)}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Request body too large.", decode(t, resp)["error"])
}

func TestSplitAndInfo(t *testing.T) {
	ts := newServer(t, nil)
	ids := uploadedIDs(t, decode(t, ts.upload(t, "", file{"book.pdf", documenttest.Labeled("p", 4)})))

	resp := ts.postJSON(t, "/api/split", map[string]any{
		"fileId": ids[0],
		"ranges": []map[string]int{{"start": 1, "end": 2}, {"start": 3, "end": 4}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.EqualValues(t, 4, body["totalPages"])
	files := body["files"].([]any)
	require.Len(t, files, 2)
	assert.Equal(t, "split_book_pages3-4.pdf", files[1].(map[string]any)["filename"])

	resp, err := http.Get(ts.URL + "/api/pdf-info/" + ids[0])
	require.NoError(t, err)
	info := decode(t, resp)
	assert.EqualValues(t, 4, info["pageCount"])
	page := info["pages"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 612, page["width"])
	assert.EqualValues(t, 0, page["rotation"])
}

func TestDeleteAndExpiry(t *testing.T) {
	ts := newServer(t, nil)
	ids := uploadedIDs(t, decode(t, ts.upload(t, "", file{"a.pdf", documenttest.Labeled("p", 1)})))
	id := ids[0]

	resp, err := http.Get(ts.URL + "/api/expiry/" + id)
	require.NoError(t, err)
	body := decode(t, resp)
	assert.InDelta(t, 1800, body["remainingSeconds"].(float64), 2)

	resp = ts.postJSON(t, "/api/expiry/"+id+"/extend", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["success"])

	del := func() *http.Response {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/delete/"+id, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}
	resp = del()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "File deleted.", decode(t, resp)["message"])
	resp = del()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 0, ts.store.Len())
}

func TestRenderWithoutRenderer(t *testing.T) {
	ts := newServer(t, nil)
	ids := uploadedIDs(t, decode(t, ts.upload(t, "", file{"a.pdf", documenttest.Labeled("p", 1)})))

	resp, err := http.Get(ts.URL + "/api/render/" + ids[0] + "/1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal server error.", decode(t, resp)["error"])

	resp, err = http.Get(ts.URL + "/api/render/" + ids[0] + "/x")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUploadRateLimit(t *testing.T) {
	mem := limiter.NewMemory(nil)
	ts := newServer(t, func(d *api.Dependencies) {
		d.APILimit = limiter.NewFixedWindow("api", 100, time.Minute, mem)
		d.UploadLimit = limiter.NewFixedWindow("upload", 1, time.Minute, mem)
	})

	resp := ts.upload(t, "", file{"a.pdf", documenttest.Labeled("p", 1)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("RateLimit-Remaining"))
	resp.Body.Close()

	resp = ts.upload(t, "", file{"a.pdf", documenttest.Labeled("p", 1)})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Too many requests, please try again later.", body["error"])

	// other routes only count against the general window
	resp, err := http.Get(ts.URL + "/api/expiry/unknown")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

type failingCounter struct{}

func (failingCounter) Hit(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, assert.AnError
}

func TestRateLimitFailsOpen(t *testing.T) {
	ts := newServer(t, func(d *api.Dependencies) {
		d.APILimit = limiter.NewFixedWindow("api", 1, time.Minute, failingCounter{})
	})
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/api/expiry/unknown")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestSecurityHeadersAndPreflight(t *testing.T) {
	ts := newServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	health := decode(t, resp)
	assert.Equal(t, true, health["ok"])

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/merge", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-Session-ID")
}
