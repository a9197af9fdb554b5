package filestore

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/local/pdfdesk/internal/filetype"
)

// Area is one of the two backing directories.
type Area int

const (
	Uploads Area = iota
	Outputs
)

func (a Area) String() string {
	if a == Outputs {
		return "outputs"
	}
	return "uploads"
}

// Record is the tracked metadata of one file on disk. Records are values:
// the store never hands out a pointer into its own maps.
type Record struct {
	ID           string
	Path         string
	Owner        string
	OriginalName string
	Size         int64
	Kind         filetype.Kind
	Area         Area
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the record is past its expiry at now.
func (r Record) Expired(now time.Time) bool { return !r.ExpiresAt.After(now) }

// Remaining returns the time left before expiry, never negative.
func (r Record) Remaining(now time.Time) time.Duration {
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// BaseName returns the original name without its extension, or fallback
// when the record has no original name.
func (r Record) BaseName(fallback string) string {
	name := strings.TrimSpace(r.OriginalName)
	if name == "" {
		return fallback
	}
	name = filepath.Base(name)
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "" {
		return fallback
	}
	return name
}

// idFromPath derives the record id from a <uuid>.<ext> file name.
func idFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
