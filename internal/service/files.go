package service

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/filestore"
)

// Open returns the record of id with its file opened for reading. The
// handle stays readable even if the record is swept meanwhile.
func (s *Service) Open(id string) (filestore.Record, *os.File, error) {
	rec, err := s.files.Get(id)
	if err != nil {
		return filestore.Record{}, nil, err
	}
	f, err := os.Open(rec.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return filestore.Record{}, nil, apperr.Wrap(apperr.NotFound, err, "File not found.")
		}
		return filestore.Record{}, nil, fmt.Errorf("open %s: %w", id, err)
	}
	return rec, f, nil
}

// Delete removes id. Unknown ids are NotFound.
func (s *Service) Delete(id string) error {
	ok, err := s.files.Delete(id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.NotFound, "File not found.")
	}
	return nil
}

// ExpiryInfo reports when a file expires.
type ExpiryInfo struct {
	Expiry           int64 `json:"expiry"`
	RemainingSeconds int64 `json:"remainingSeconds"`
}

func expiryInfo(rec filestore.Record, now time.Time) ExpiryInfo {
	return ExpiryInfo{
		Expiry:           expiryMillis(rec),
		RemainingSeconds: int64(math.Floor(rec.Remaining(now).Seconds())),
	}
}

func (s *Service) Expiry(id string) (ExpiryInfo, error) {
	rec, err := s.files.Get(id)
	if err != nil {
		return ExpiryInfo{}, err
	}
	return expiryInfo(rec, s.files.Now()), nil
}

// Extend re-tracks id for another full lifetime.
func (s *Service) Extend(id string) (ExpiryInfo, error) {
	rec, err := s.files.Retrack(id)
	if err != nil {
		return ExpiryInfo{}, err
	}
	return expiryInfo(rec, s.files.Now()), nil
}
