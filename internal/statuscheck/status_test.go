package statuscheck

import (
    "context"
    "errors"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type bucket struct{ err error }

func (b bucket) Ping(context.Context, string) error { return b.err }

func TestSummaryDirsDecideReadiness(t *testing.T) {
    dir := t.TempDir()
    c := New(Options{
        UploadDir: dir,
        OutputDir: dir,
        Redis:     pinger{errors.New("dial tcp: connection refused")},
        Tracked:   func() int { return 3 },
    })
    s := c.Summary(context.Background())
    assert.True(t, s.OK)
    assert.True(t, s.Uploads.OK)
    assert.False(t, s.Redis.OK)
    assert.True(t, s.Redis.Optional)
    assert.False(t, s.S3.OK)
    assert.Equal(t, 3, s.TrackedFiles)
}

func TestSummaryMissingDir(t *testing.T) {
    c := New(Options{UploadDir: filepath.Join(t.TempDir(), "absent"), OutputDir: t.TempDir()})
    s := c.Summary(context.Background())
    assert.False(t, s.OK)
    assert.False(t, s.Uploads.OK)
    assert.True(t, s.Outputs.OK)
}

func TestSummaryOptionalServicesUp(t *testing.T) {
    dir := t.TempDir()
    c := New(Options{UploadDir: dir, OutputDir: dir, Redis: pinger{}, S3: bucket{}, S3Bucket: "docs"})
    s := c.Summary(context.Background())
    assert.True(t, s.Redis.OK)
    assert.True(t, s.S3.OK)
}

func TestTrimError(t *testing.T) {
    long := errors.New(string(make([]byte, 300)))
    assert.Len(t, trimError(long), 120)
    assert.Equal(t, "", trimError(nil))
}
