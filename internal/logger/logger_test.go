package logger

import (
    "bytes"
    "encoding/json"
    "errors"
    "path/filepath"
    "testing"

    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestInitWritesRotatedFile(t *testing.T) {
    file := filepath.Join(t.TempDir(), "logs", "pdfdesk.log")
    require.NoError(t, Init(Options{Level: "debug", File: file, MaxSizeMB: 1, Service: "pdfdesk"}))
    defer Close()

    log.Info().Str("file_id", "abc").Msg("hello")
    assert.FileExists(t, file)
    assert.Equal(t, zerolog.DebugLevel, log.Logger.GetLevel())
}

func TestInitBadLevelFallsBackToInfo(t *testing.T) {
    require.NoError(t, Init(Options{Level: "chatty"}))
    assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel())
}

// capture points the global logger at a buffer for the test.
func capture(t *testing.T) *bytes.Buffer {
    t.Helper()
    prev := log.Logger
    t.Cleanup(func() { log.Logger = prev })
    var buf bytes.Buffer
    log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
    return &buf
}

func lastEvent(t *testing.T, buf *bytes.Buffer) map[string]any {
    t.Helper()
    lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
    var ev map[string]any
    require.NoError(t, json.Unmarshal(lines[len(lines)-1], &ev))
    return ev
}

func TestDocumentEventFields(t *testing.T) {
    buf := capture(t)

    Document(zerolog.InfoLevel, "output", "f-1", 4).Msg("output stored")
    ev := lastEvent(t, buf)
    assert.Equal(t, "info", ev["level"])
    assert.Equal(t, "output", ev[FieldOperation])
    assert.Equal(t, "f-1", ev[FieldFileID])
    assert.EqualValues(t, 4, ev[FieldPages])

    File(zerolog.WarnLevel, "expire", "f-2").Err(errors.New("busy")).Msg("unlink failed")
    ev = lastEvent(t, buf)
    assert.Equal(t, "warn", ev["level"])
    assert.Equal(t, "f-2", ev[FieldFileID])
    assert.Equal(t, "busy", ev["error"])
    assert.NotContains(t, ev, FieldPages)
}

func TestOperationAndLifecycleEvents(t *testing.T) {
    buf := capture(t)

    Operation(zerolog.ErrorLevel, "merge", 0).Msg("operation failed")
    ev := lastEvent(t, buf)
    assert.Equal(t, "error", ev["level"])
    assert.Equal(t, "merge", ev[FieldOperation])
    assert.Contains(t, ev, "took")

    Lifecycle("sweeper", "started").Msg("file sweeper started")
    ev = lastEvent(t, buf)
    assert.Equal(t, "sweeper", ev["component"])
    assert.Equal(t, "started", ev["state"])
}

func TestEventsBelowLevelAreDropped(t *testing.T) {
    buf := capture(t)
    log.Logger = log.Logger.Level(zerolog.InfoLevel)

    File(zerolog.DebugLevel, "store", "f-3").Msg("file tracked")
    assert.Zero(t, buf.Len())
}
