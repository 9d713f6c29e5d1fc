package prefs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Backup copies the preference database to a directory on a fixed cadence
// and prunes copies older than the retention window. Disabled when dir is
// empty or the store runs on the memory fallback.
type Backup struct {
	store         *Store
	path          string
	dir           string
	retentionDays int
	logger        *zerolog.Logger
}

// NewBackup configures periodic backups of the database at path.
func NewBackup(store *Store, path, dir string, retentionDays int, logger *zerolog.Logger) *Backup {
	return &Backup{
		store:         store,
		path:          path,
		dir:           dir,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run takes an immediate backup, then one per day until the context is
// cancelled.
func (b *Backup) Run(ctx context.Context) {
	if b.dir == "" || b.store.db == nil {
		b.logger.Info().Msg("preference backups disabled")
		return
	}

	if err := b.Perform(); err != nil {
		b.logger.Error().Err(err).Msg("initial preference backup failed")
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Perform(); err != nil {
				b.logger.Error().Err(err).Msg("preference backup failed")
			}
			b.prune()
		}
	}
}

// Perform writes one timestamped copy of the database file.
func (b *Backup) Perform() error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("prefs_%s.db", time.Now().Format("20060102_150405"))
	target := filepath.Join(b.dir, name)

	source, err := os.Open(b.path)
	if err != nil {
		return err
	}
	defer source.Close()

	dest, err := os.Create(target)
	if err != nil {
		return err
	}
	defer dest.Close()

	if _, err := io.Copy(dest, source); err != nil {
		return err
	}
	b.logger.Info().Str("path", target).Msg("preference database backed up")
	return nil
}

// prune removes backups older than the retention window.
func (b *Backup) prune() {
	if b.retentionDays <= 0 {
		return
	}
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		b.logger.Error().Err(err).Msg("read backup directory failed")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -b.retentionDays)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "prefs_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			b.logger.Info().Str("file", entry.Name()).Msg("removing expired preference backup")
			_ = os.Remove(filepath.Join(b.dir, entry.Name()))
		}
	}
}
