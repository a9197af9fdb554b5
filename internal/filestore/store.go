package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfdesk/internal/apperr"
	"github.com/local/pdfdesk/internal/filetype"
	"github.com/local/pdfdesk/internal/logger"
	"github.com/local/pdfdesk/internal/metrics"
)

const (
	// DefaultTTL is the fixed lifetime of every tracked file.
	DefaultTTL = 30 * time.Minute
	// DefaultSweepInterval is how often expired files are removed.
	DefaultSweepInterval = 60 * time.Second

	shardCount       = 32
	maxUnlinkRetries = 3
)

// Options configures a Store.
type Options struct {
	UploadDir     string
	OutputDir     string
	TTL           time.Duration
	SweepInterval time.Duration
	// MaxFileSize bounds Save; zero means unbounded.
	MaxFileSize int64
	// Now and Remove are swapped out by tests.
	Now    func() time.Time
	Remove func(path string) error
}

type shard struct {
	mu      sync.RWMutex
	records map[string]Record
}

type orphan struct {
	path     string
	attempts int
}

// Store tracks ephemeral files and removes them once they expire. The map is
// sharded by id; no shard lock is ever held across file I/O. Removal is
// mark-then-unlink: a record leaves its shard before its file is unlinked, so
// lookups fail fast and exactly one remover owns the unlink.
type Store struct {
	opts   Options
	shards [shardCount]shard
	count  atomic.Int64

	orphanMu sync.Mutex
	orphans  []orphan

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Expired   int
	Unlinked  int
	Failed    int
	Retried   int
	Abandoned int
}

// New creates the backing directories and an empty store.
func New(opts Options) (*Store, error) {
	if opts.UploadDir == "" || opts.OutputDir == "" {
		return nil, errors.New("filestore: upload and output dirs are required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Remove == nil {
		opts.Remove = os.Remove
	}
	for _, dir := range []string{opts.UploadDir, opts.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	s := &Store{opts: opts}
	for i := range s.shards {
		s.shards[i].records = make(map[string]Record)
	}
	return s, nil
}

// Now reads the store's clock.
func (s *Store) Now() time.Time { return s.opts.Now() }

// TTL returns the lifetime given to new records.
func (s *Store) TTL() time.Duration { return s.opts.TTL }

// Dir returns the backing directory of an area.
func (s *Store) Dir(area Area) string {
	if area == Outputs {
		return s.opts.OutputDir
	}
	return s.opts.UploadDir
}

// Len returns the number of tracked records.
func (s *Store) Len() int { return int(s.count.Load()) }

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.shards[h.Sum32()%shardCount]
}

// Put registers a file that already exists at path. The id is the file's
// base name without extension.
func (s *Store) Put(path, owner, originalName string, kind filetype.Kind) (Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Record{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Record{}, apperr.New(apperr.InvalidInput, "path %s is a directory", path)
	}
	area := Uploads
	if filepath.Clean(filepath.Dir(path)) == filepath.Clean(s.opts.OutputDir) {
		area = Outputs
	}
	now := s.opts.Now()
	rec := Record{
		ID:           idFromPath(path),
		Path:         path,
		Owner:        owner,
		OriginalName: originalName,
		Size:         info.Size(),
		Kind:         kind,
		Area:         area,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.opts.TTL),
	}

	sh := s.shardFor(rec.ID)
	sh.mu.Lock()
	if _, exists := sh.records[rec.ID]; exists {
		sh.mu.Unlock()
		return Record{}, apperr.New(apperr.InvalidInput, "file %s is already tracked", rec.ID)
	}
	sh.records[rec.ID] = rec
	sh.mu.Unlock()

	metrics.SetTrackedFiles(s.count.Add(1))
	metrics.IncFileEvent("stored")
	logger.File(zerolog.DebugLevel, "store", rec.ID).Str("area", area.String()).Str("kind", kind.String()).
		Int64("size", rec.Size).Time("expires_at", rec.ExpiresAt).Msg("file tracked")
	return rec, nil
}

// Save streams r into a new <uuid>.<ext> file of the given area and tracks
// it. The file is written to a temp name and renamed into place, so a failed
// or oversized write leaves nothing behind.
func (s *Store) Save(area Area, kind filetype.Kind, r io.Reader, owner, originalName string) (Record, error) {
	if kind.Extension() == "" {
		return Record{}, apperr.New(apperr.InvalidInput, "unsupported file kind")
	}
	dir := s.Dir(area)
	id := uuid.NewString()
	tmp, err := os.CreateTemp(dir, "."+id+"-*.tmp")
	if err != nil {
		return Record{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	src := r
	if s.opts.MaxFileSize > 0 {
		src = io.LimitReader(r, s.opts.MaxFileSize+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return Record{}, fmt.Errorf("write %s: %w", area, err)
	}
	if s.opts.MaxFileSize > 0 && n > s.opts.MaxFileSize {
		cleanup()
		return Record{}, apperr.New(apperr.TooLarge, "File too large. Maximum size is %dMB.", s.opts.MaxFileSize>>20)
	}

	final := filepath.Join(dir, id+kind.Extension())
	if err := os.Rename(tmpPath, final); err != nil {
		cleanup()
		return Record{}, fmt.Errorf("rename into place: %w", err)
	}
	rec, err := s.Put(final, owner, originalName, kind)
	if err != nil {
		_ = os.Remove(final)
		return Record{}, err
	}
	return rec, nil
}

// SaveBytes is Save for an in-memory payload.
func (s *Store) SaveBytes(area Area, kind filetype.Kind, data []byte, owner, originalName string) (Record, error) {
	return s.Save(area, kind, bytes.NewReader(data), owner, originalName)
}

// Get returns the live record for id. Records past their expiry are treated
// as gone even before the sweeper reaches them.
func (s *Store) Get(id string) (Record, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	rec, ok := sh.records[id]
	sh.mu.RUnlock()
	if !ok || rec.Expired(s.opts.Now()) {
		return Record{}, apperr.New(apperr.NotFound, "File not found.")
	}
	return rec, nil
}

// ReadFile returns the record and the full contents of its file. A record
// whose file has vanished is reported as NotFound.
func (s *Store) ReadFile(id string) (Record, []byte, error) {
	rec, err := s.Get(id)
	if err != nil {
		return Record{}, nil, err
	}
	data, err := os.ReadFile(rec.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, nil, apperr.Wrap(apperr.NotFound, err, "File not found.")
		}
		return Record{}, nil, fmt.Errorf("read %s: %w", rec.ID, err)
	}
	return rec, data, nil
}

// Retrack extends a live record's expiry to now + TTL.
func (s *Store) Retrack(id string) (Record, error) {
	now := s.opts.Now()
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.records[id]
	if !ok || rec.Expired(now) {
		return Record{}, apperr.New(apperr.NotFound, "File not found.")
	}
	rec.ExpiresAt = now.Add(s.opts.TTL)
	sh.records[id] = rec
	return rec, nil
}

// take removes id from its shard and returns what was there.
func (s *Store) take(id string) (Record, bool) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	rec, ok := sh.records[id]
	if ok {
		delete(sh.records, id)
	}
	sh.mu.Unlock()
	if ok {
		metrics.SetTrackedFiles(s.count.Add(-1))
	}
	return rec, ok
}

// Delete removes the record and its file. It returns false, nil when id is
// not tracked, including when a concurrent sweep or delete got there first.
func (s *Store) Delete(id string) (bool, error) {
	rec, ok := s.take(id)
	if !ok {
		return false, nil
	}
	metrics.IncFileEvent("deleted")
	if err := s.unlink(rec.Path); err != nil {
		s.queueOrphan(rec.Path)
		logger.File(zerolog.WarnLevel, "delete", id).Err(err).Msg("unlink failed, queued for retry")
		return true, nil
	}
	logger.File(zerolog.DebugLevel, "delete", id).Msg("file deleted")
	return true, nil
}

// Sweep drops every record with ExpiresAt <= now and then unlinks the files.
// Unlink failures are logged and retried on later sweeps; the records stay
// dropped either way.
func (s *Store) Sweep(now time.Time) SweepResult {
	var expired []Record
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, rec := range sh.records {
			if rec.Expired(now) {
				expired = append(expired, rec)
				delete(sh.records, id)
			}
		}
		sh.mu.Unlock()
	}
	if len(expired) > 0 {
		metrics.SetTrackedFiles(s.count.Add(-int64(len(expired))))
	}

	res := SweepResult{Expired: len(expired)}
	res.Retried, res.Abandoned = s.retryOrphans()

	for _, rec := range expired {
		if err := s.unlink(rec.Path); err != nil {
			res.Failed++
			s.queueOrphan(rec.Path)
			logger.File(zerolog.WarnLevel, "expire", rec.ID).Err(err).Msg("unlink failed, record dropped")
			continue
		}
		res.Unlinked++
	}

	metrics.AddFileEvents("expired", res.Expired)
	metrics.AddFileEvents("unlink_failed", res.Failed)
	metrics.AddFileEvents("abandoned", res.Abandoned)
	if res.Expired > 0 || res.Retried > 0 {
		log.Info().Int("expired", res.Expired).Int("unlinked", res.Unlinked).Int("failed", res.Failed).
			Int("retried", res.Retried).Int("abandoned", res.Abandoned).Msg("sweep complete")
	}
	return res
}

func (s *Store) unlink(path string) error {
	err := s.opts.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) queueOrphan(path string) {
	s.orphanMu.Lock()
	s.orphans = append(s.orphans, orphan{path: path})
	s.orphanMu.Unlock()
}

// retryOrphans retries files whose unlink failed earlier. Paths still failing
// after maxUnlinkRetries are abandoned.
func (s *Store) retryOrphans() (retried, abandoned int) {
	s.orphanMu.Lock()
	pending := s.orphans
	s.orphans = nil
	s.orphanMu.Unlock()

	var keep []orphan
	for _, o := range pending {
		retried++
		if err := s.unlink(o.path); err != nil {
			o.attempts++
			if o.attempts >= maxUnlinkRetries {
				abandoned++
				log.Error().Err(err).Str("path", filepath.Base(o.path)).Msg("giving up on unlink")
				continue
			}
			keep = append(keep, o)
		}
	}
	if len(keep) > 0 {
		s.orphanMu.Lock()
		s.orphans = append(s.orphans, keep...)
		s.orphanMu.Unlock()
	}
	return retried, abandoned
}

// Start runs the sweeper in the background until Close.
func (s *Store) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.Run(ctx)
	}()
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	logger.Lifecycle("sweeper", "started").Dur("interval", s.opts.SweepInterval).Dur("ttl", s.opts.TTL).Msg("file sweeper started")
	for {
		select {
		case <-ctx.Done():
			logger.Lifecycle("sweeper", "stopped").Msg("file sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(s.opts.Now())
		}
	}
}

// Close stops the sweeper and removes every tracked file. Nothing survives
// the process.
func (s *Store) Close() error {
	s.runMu.Lock()
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	s.runMu.Unlock()

	var ids []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for id := range sh.records {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	var errs []error
	for _, id := range ids {
		if _, err := s.Delete(id); err != nil {
			errs = append(errs, err)
		}
	}
	s.retryOrphans()
	logger.Lifecycle("filestore", "closed").Int("purged", len(ids)).Msg("file store closed")
	return errors.Join(errs...)
}
