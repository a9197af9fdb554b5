package filestore

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
)

// managedName matches the files this store creates: <uuid>.<ext> and the
// .<uuid>-*.tmp names used while writing.
var managedName = regexp.MustCompile(`^(\.?[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})(\.(pdf|jpg|png)|-[0-9]+\.tmp)$`)

// PurgeStale removes files in both backing directories that this store
// created in an earlier run and no longer tracks, once older than maxAge.
// Records live only in memory, so a restart would otherwise leak them.
func (s *Store) PurgeStale(maxAge time.Duration) int {
	now := s.opts.Now()
	removed := 0
	for _, dir := range []string{s.opts.UploadDir, s.opts.OutputDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("purge: cannot list dir")
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !managedName.MatchString(e.Name()) {
				continue
			}
			if _, err := s.Get(idFromPath(e.Name())); err == nil {
				continue
			}
			info, err := e.Info()
			if err != nil || now.Sub(info.ModTime()) < maxAge {
				continue
			}
			if err := s.unlink(filepath.Join(dir, e.Name())); err != nil {
				log.Warn().Err(err).Str("file", e.Name()).Msg("purge: unlink failed")
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("purged stale files from previous run")
	}
	return removed
}
