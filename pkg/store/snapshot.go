package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Snapshotter periodically writes the alert and feed stores to JSON files for
// the dashboard to read between polling cycles. Writes are atomic: a temp
// file is written, fsynced, and renamed over the target.
type Snapshotter struct {
	alertStore *AlertStore
	feedStore  *FeedStore
	dataDir    string
	interval   time.Duration
	logger     zerolog.Logger
}

// NewSnapshotter creates a snapshot writer for the given stores
func NewSnapshotter(alertStore *AlertStore, feedStore *FeedStore, dataDir string, interval time.Duration, logger zerolog.Logger) *Snapshotter {
	return &Snapshotter{
		alertStore: alertStore,
		feedStore:  feedStore,
		dataDir:    dataDir,
		interval:   interval,
		logger:     logger.With().Str("component", "snapshotter").Logger(),
	}
}

// Run writes snapshots on the configured cadence until the context is done,
// flushing one final snapshot on shutdown
func (s *Snapshotter) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.writeAll()
			return nil
		case <-ticker.C:
			s.writeAll()
		}
	}
}

func (s *Snapshotter) writeAll() {
	if err := writeJSONAtomic(filepath.Join(s.dataDir, "live_alerts.json"), s.alertStore.Recent(0)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write alert snapshot")
	}
	if err := writeJSONAtomic(filepath.Join(s.dataDir, "live_feed.json"), s.feedStore.Recent(0)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write feed snapshot")
	}
}

// writeJSONAtomic writes v as indented JSON via a temp file and rename, so
// readers never observe a partial file
func writeJSONAtomic(path string, v interface{}) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
