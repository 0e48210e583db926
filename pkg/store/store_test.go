package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-defense/skywatch/pkg/alerts"
	"github.com/helios-defense/skywatch/pkg/feeds"
)

func mkAlert(source alerts.Source, fp string, ts time.Time) alerts.Alert {
	return alerts.Candidate{
		Category:  alerts.CategoryGPSSpoofSuspected,
		Severity:  alerts.SeverityWarning,
		EntityID:  "BEY-GPS-01",
		Timestamp: ts,
		Summary:   "test alert " + fp,
	}.Build(source, fp)
}

// TestAppendAndRecent verifies newest-first merged reads
func TestAppendAndRecent(t *testing.T) {
	s := NewAlertStore(10)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.Append(mkAlert(alerts.SourceSim, "a", t0))
	s.Append(mkAlert(alerts.SourceDonki, "b", t0.Add(2*time.Second)))
	s.Append(mkAlert(alerts.SourceSim, "c", t0.Add(1*time.Second)))

	got := s.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Fingerprint)
	assert.Equal(t, "c", got[1].Fingerprint)
	assert.Equal(t, "a", got[2].Fingerprint)

	limited := s.Recent(2)
	require.Len(t, limited, 2)
	assert.Equal(t, "b", limited[0].Fingerprint)
}

// TestSince verifies the ascending since-timestamp read
func TestSince(t *testing.T) {
	s := NewAlertStore(10)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.Append(mkAlert(alerts.SourceSim, "old", t0))
	s.Append(mkAlert(alerts.SourceDonki, "mid", t0.Add(10*time.Second)))
	s.Append(mkAlert(alerts.SourceSim, "new", t0.Add(20*time.Second)))

	got := s.Since(t0.Add(10 * time.Second))
	require.Len(t, got, 2)
	assert.Equal(t, "mid", got[0].Fingerprint)
	assert.Equal(t, "new", got[1].Fingerprint)
}

// TestEvictionRetainsNewest verifies capacity keeps the N most recent alerts
func TestEvictionRetainsNewest(t *testing.T) {
	const capacity = 5
	s := NewAlertStore(capacity)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		s.Append(mkAlert(alerts.SourceSim, fmt.Sprintf("fp-%02d", i), t0.Add(time.Duration(i)*time.Second)))
	}

	assert.Equal(t, capacity, s.Len())
	got := s.Recent(0)
	require.Len(t, got, capacity)
	assert.Equal(t, "fp-11", got[0].Fingerprint, "newest retained")
	assert.Equal(t, "fp-07", got[4].Fingerprint, "oldest retained is N back")
}

// TestPartitionsIsolated verifies per-source capacity and merge-on-read
func TestPartitionsIsolated(t *testing.T) {
	s := NewAlertStore(2)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		ts := t0.Add(time.Duration(i) * time.Second)
		s.Append(mkAlert(alerts.SourceSim, fmt.Sprintf("sim-%d", i), ts))
		s.Append(mkAlert(alerts.SourceDonki, fmt.Sprintf("donki-%d", i), ts))
	}

	// Each partition keeps its own most recent two
	assert.Equal(t, 4, s.Len())
	got := s.Recent(0)
	fps := make(map[string]bool, len(got))
	for _, a := range got {
		fps[a.Fingerprint] = true
	}
	assert.True(t, fps["sim-3"] && fps["sim-2"] && fps["donki-3"] && fps["donki-2"])
}

// TestConcurrentReadersAndWriters verifies reads tolerate concurrent appends
func TestConcurrentReadersAndWriters(t *testing.T) {
	s := NewAlertStore(100)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			src := alerts.SourceSim
			if w%2 == 1 {
				src = alerts.SourceDonki
			}
			for i := 0; i < 50; i++ {
				s.Append(mkAlert(src, fmt.Sprintf("w%d-%d", w, i), t0.Add(time.Duration(i)*time.Millisecond)))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Recent(10)
				s.Since(t0)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, s.Len())
}

// TestFeedStore verifies feed record retention and ordering
func TestFeedStore(t *testing.T) {
	s := NewFeedStore(3)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.Append(feeds.NewTelemetryRecord(feeds.TelemetrySample{
			EntityID:  "BEY-GPS-01",
			Timestamp: t0.Add(time.Duration(i) * time.Second),
			Latitude:  33.89,
			Longitude: 35.47,
		}))
	}
	s.Append(feeds.NewWeatherRecord(feeds.WeatherEvent{
		EventID:   "evt-1",
		Category:  feeds.WeatherSolarFlare,
		Timestamp: t0.Add(10 * time.Second),
	}))

	assert.Equal(t, 4, s.Len(), "telemetry partition capped at 3 plus one weather record")

	got := s.Recent(0)
	require.Len(t, got, 4)
	assert.Equal(t, feeds.RecordWeather, got[0].Kind)
}

// TestSnapshotterWritesReadableJSON verifies the atomic snapshot files
func TestSnapshotterWritesReadableJSON(t *testing.T) {
	dir := t.TempDir()
	alertStore := NewAlertStore(10)
	feedStore := NewFeedStore(10)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	alertStore.Append(mkAlert(alerts.SourceSim, "snap-fp", t0))
	feedStore.Append(feeds.NewWeatherRecord(feeds.WeatherEvent{
		EventID:   "evt-1",
		Category:  feeds.WeatherCME,
		Timestamp: t0,
	}))

	snap := NewSnapshotter(alertStore, feedStore, dir, time.Second, zerolog.Nop())
	snap.writeAll()

	alertData, err := os.ReadFile(filepath.Join(dir, "live_alerts.json"))
	require.NoError(t, err)
	var gotAlerts []alerts.Alert
	require.NoError(t, json.Unmarshal(alertData, &gotAlerts))
	require.Len(t, gotAlerts, 1)
	assert.Equal(t, "snap-fp", gotAlerts[0].Fingerprint)

	feedData, err := os.ReadFile(filepath.Join(dir, "live_feed.json"))
	require.NoError(t, err)
	var gotFeed []feeds.Record
	require.NoError(t, json.Unmarshal(feedData, &gotFeed))
	require.Len(t, gotFeed, 1)
	require.NotNil(t, gotFeed[0].Weather)
	assert.Equal(t, feeds.WeatherCME, gotFeed[0].Weather.Category)
}
