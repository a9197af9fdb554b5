package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/filestore"
	"github.com/local/pdfdesk/internal/filetype"
	"github.com/local/pdfdesk/internal/metrics"
)

// FileInfo describes one tracked upload.
type FileInfo struct {
	ID           string `json:"id"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	Expiry       int64  `json:"expiry"`
}

func fileInfo(rec filestore.Record) FileInfo {
	return FileInfo{ID: rec.ID, OriginalName: rec.OriginalName, Size: rec.Size, Expiry: expiryMillis(rec)}
}

// Incoming is one uploaded part.
type Incoming struct {
	Name string
	Body io.Reader
}

// UploadResult is the outcome of an upload request.
type UploadResult struct {
	SessionID string     `json:"sessionId"`
	Files     []FileInfo `json:"files"`
	// ExpiresIn is the lifetime in minutes.
	ExpiresIn int `json:"expiresIn"`
}

// Upload stores every part next returns until io.EOF. Parts whose magic
// bytes are not PDF, JPEG or PNG are dropped without failing the request.
// Any request-level failure removes the files already stored.
func (s *Service) Upload(ctx context.Context, session string, next func() (Incoming, error)) (res UploadResult, err error) {
	defer observe("upload", time.Now(), &err)
	if session == "" {
		session = uuid.NewString()
	}
	res = UploadResult{SessionID: session, Files: []FileInfo{}, ExpiresIn: int(s.files.TTL() / time.Minute)}

	seen := 0
	defer func() {
		if err != nil {
			for _, f := range res.Files {
				_, _ = s.files.Delete(f.ID)
			}
			res = UploadResult{}
		}
	}()
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		in, nerr := next()
		if errors.Is(nerr, io.EOF) {
			break
		}
		if nerr != nil {
			return res, nerr
		}
		seen++
		if seen > s.opts.MaxFiles {
			return res, apperr.New(apperr.TooMany, "Too many files. Maximum is %d files.", s.opts.MaxFiles)
		}
		rec, ok, serr := s.accept(filestore.Uploads, session, in)
		if serr != nil {
			return res, serr
		}
		if ok {
			res.Files = append(res.Files, fileInfo(rec))
		}
	}
	if len(res.Files) == 0 {
		return res, apperr.New(apperr.InvalidInput, "No valid files uploaded.")
	}
	log.Info().Str("session", session).Int("received", seen).Int("accepted", len(res.Files)).Msg("upload stored")
	return res, nil
}

// accept sniffs the head of in and stores it when it is a supported kind.
func (s *Service) accept(area filestore.Area, owner string, in Incoming) (filestore.Record, bool, error) {
	var head bytes.Buffer
	kind, ok, err := filetype.ValidateReader(io.TeeReader(in.Body, &head))
	if err != nil {
		return filestore.Record{}, false, apperr.Wrap(apperr.InvalidInput, err, "Could not read uploaded file.")
	}
	body := io.MultiReader(&head, in.Body)
	if !ok {
		metrics.IncUploadRejected()
		log.Debug().Str("name", in.Name).Msg("dropping upload with unsupported magic bytes")
		_, _ = io.Copy(io.Discard, body)
		return filestore.Record{}, false, nil
	}
	rec, err := s.files.Save(area, kind, body, owner, sanitizeName(in.Name, "file"+kind.Extension()))
	if err != nil {
		return filestore.Record{}, false, err
	}
	return rec, true, nil
}

// Import fetches a remote reference into the uploads area with the same
// validation as Upload.
func (s *Service) Import(ctx context.Context, session, ref, name string) (info FileInfo, err error) {
	defer observe("import", time.Now(), &err)
	if s.opts.Fetcher == nil {
		return FileInfo{}, apperr.New(apperr.InvalidInput, "Import is disabled.")
	}
	if ref == "" {
		return FileInfo{}, apperr.New(apperr.InvalidInput, "A url is required.")
	}
	obj, err := s.opts.Fetcher.Fetch(ctx, ref)
	if err != nil {
		return FileInfo{}, err
	}
	if name == "" {
		name = obj.Name
	}
	if session == "" {
		session = uuid.NewString()
	}
	rec, ok, err := s.accept(filestore.Uploads, session, Incoming{Name: name, Body: bytes.NewReader(obj.Data)})
	if err != nil {
		return FileInfo{}, err
	}
	if !ok {
		return FileInfo{}, apperr.New(apperr.InvalidInput, "Only PDF, JPEG and PNG files are supported.")
	}
	return fileInfo(rec), nil
}
