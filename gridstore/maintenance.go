package gridstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
)

// IntegrityStats reports the outcome of a full hint scan.
type IntegrityStats struct {
	Hints     int64
	CountMeta int64
	Duration  time.Duration
}

// CountMatches reports whether the stored count agrees with the scan.
func (s IntegrityStats) CountMatches() bool { return s.Hints == s.CountMeta }

// Checkpoint writes a consistent copy of the store to dest, which must not
// exist yet.
func (s *Store) Checkpoint(dest string) error {
	if s == nil || s.db == nil {
		return errNotOpen
	}
	if strings.TrimSpace(dest) == "" {
		return errors.New("gridstore: checkpoint destination is empty")
	}
	if err := s.db.Checkpoint(dest, pebble.WithFlushedWAL()); err != nil {
		return fmt.Errorf("gridstore: checkpoint %s: %w", dest, err)
	}
	return nil
}

// Verify decodes every hint in the open store. maxDuration <= 0 means no limit.
func (s *Store) Verify(ctx context.Context, maxDuration time.Duration) (IntegrityStats, error) {
	if s == nil || s.db == nil {
		return IntegrityStats{}, errNotOpen
	}
	return verifyDB(ctx, s.db, maxDuration)
}

// VerifyCheckpoint opens a checkpoint read-only and scans it.
func VerifyCheckpoint(ctx context.Context, path string, maxDuration time.Duration) (IntegrityStats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return IntegrityStats{}, fmt.Errorf("gridstore: checkpoint stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return IntegrityStats{}, fmt.Errorf("gridstore: checkpoint %s is not a directory", path)
	}
	db, err := pebble.Open(path, &pebble.Options{ReadOnly: true})
	if err != nil {
		return IntegrityStats{}, fmt.Errorf("gridstore: checkpoint open %s: %w", path, err)
	}
	defer db.Close()
	return verifyDB(ctx, db, maxDuration)
}

func verifyDB(ctx context.Context, db *pebble.DB, maxDuration time.Duration) (IntegrityStats, error) {
	start := time.Now()
	if maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxDuration)
		defer cancel()
	}
	var stats IntegrityStats
	if count, err := readCountMeta(db); err == nil {
		stats.CountMeta = count
	}

	iter, err := db.NewIter(iterOptionsForPrefix(callPrefix))
	if err != nil {
		return stats, fmt.Errorf("gridstore: verify iterator: %w", err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("gridstore: verify interrupted after %d hints: %w", stats.Hints, err)
		}
		if _, err := decodeHintValue(iter.Value()); err != nil {
			return stats, fmt.Errorf("gridstore: verify %q: %w", iter.Key(), err)
		}
		stats.Hints++
	}
	if err := iter.Error(); err != nil {
		return stats, fmt.Errorf("gridstore: verify iterate: %w", err)
	}
	stats.Duration = time.Since(start)
	return stats, nil
}
