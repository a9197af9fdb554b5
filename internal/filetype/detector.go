package filetype

import (
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is one of the file kinds the service accepts.
type Kind int

const (
	Unknown Kind = iota
	PDF
	JPEG
	PNG
)

// SniffLen is how many leading bytes are enough for detection.
const SniffLen = 3072

func (k Kind) String() string {
	switch k {
	case PDF:
		return "pdf"
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	default:
		return "unknown"
	}
}

// Extension returns the on-disk extension, including the dot.
func (k Kind) Extension() string {
	switch k {
	case PDF:
		return ".pdf"
	case JPEG:
		return ".jpg"
	case PNG:
		return ".png"
	default:
		return ""
	}
}

// ContentType returns the MIME type served for the kind.
func (k Kind) ContentType() string {
	switch k {
	case PDF:
		return "application/pdf"
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// IsImage reports whether the kind is a raster image.
func (k Kind) IsImage() bool { return k == JPEG || k == PNG }

// Validate classifies head (the leading bytes of a file) by its magic bytes,
// never by a claimed name or content type. ok is false for anything that is
// not a PDF, JPEG or PNG.
func Validate(head []byte) (kind Kind, ok bool) {
	if len(head) > SniffLen {
		head = head[:SniffLen]
	}
	mtype := mimetype.Detect(head)
walk:
	for m := mtype; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/pdf"):
			kind = PDF
		case m.Is("image/jpeg"):
			kind = JPEG
		case m.Is("image/png"):
			kind = PNG
		default:
			continue
		}
		break walk
	}
	log.Debug().Str("mime", mtype.String()).Str("kind", kind.String()).Msg("sniffed file type")
	return kind, kind != Unknown
}

// ValidateReader sniffs the head of r. The caller is responsible for
// rewinding r if it needs the bytes again.
func ValidateReader(r io.Reader) (Kind, bool, error) {
	buf := make([]byte, SniffLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Unknown, false, fmt.Errorf("failed to read file head: %w", err)
	}
	kind, ok := Validate(buf[:n])
	return kind, ok, nil
}

// ValidateFile sniffs the file at path.
func ValidateFile(path string) (Kind, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return Unknown, false, fmt.Errorf("failed to detect file type: %w", err)
	}
	defer f.Close()
	return ValidateReader(f)
}
