// Package store provides the bounded, append-only alert and feed stores read
// by the dashboard. Partitions are per source so each detector's writer never
// contends with the other's; partitions are merged only at read time.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/helios-defense/skywatch/pkg/alerts"
	"github.com/helios-defense/skywatch/pkg/feeds"
)

// AlertStore holds admitted alerts, oldest-evicted at capacity
type AlertStore struct {
	mu         sync.RWMutex
	capacity   int
	partitions map[alerts.Source][]alerts.Alert
}

// NewAlertStore creates a store retaining up to capacity alerts per source
func NewAlertStore(capacity int) *AlertStore {
	return &AlertStore{
		capacity:   capacity,
		partitions: make(map[alerts.Source][]alerts.Alert),
	}
}

// Append adds an alert to its source partition, evicting the oldest entry
// when the partition is full. Alerts are never mutated after append.
func (s *AlertStore) Append(a alerts.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part := append(s.partitions[a.Source], a)
	if len(part) > s.capacity {
		part = part[len(part)-s.capacity:]
	}
	s.partitions[a.Source] = part
}

// Recent returns up to n alerts merged across partitions, newest first
func (s *AlertStore) Recent(n int) []alerts.Alert {
	s.mu.RLock()
	merged := s.mergedLocked()
	s.mu.RUnlock()

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if n > 0 && len(merged) > n {
		merged = merged[:n]
	}
	return merged
}

// Since returns all alerts at or after ts, merged across partitions and
// ordered oldest first
func (s *AlertStore) Since(ts time.Time) []alerts.Alert {
	s.mu.RLock()
	merged := s.mergedLocked()
	s.mu.RUnlock()

	filtered := merged[:0:0]
	for _, a := range merged {
		if !a.Timestamp.Before(ts) {
			filtered = append(filtered, a)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})
	return filtered
}

// Len returns the total number of retained alerts
func (s *AlertStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, part := range s.partitions {
		total += len(part)
	}
	return total
}

// mergedLocked copies all partitions into one slice; caller holds s.mu
func (s *AlertStore) mergedLocked() []alerts.Alert {
	total := 0
	for _, part := range s.partitions {
		total += len(part)
	}
	merged := make([]alerts.Alert, 0, total)
	for _, part := range s.partitions {
		merged = append(merged, part...)
	}
	return merged
}

// FeedStore holds raw feed records, oldest-evicted at capacity
type FeedStore struct {
	mu         sync.RWMutex
	capacity   int
	partitions map[feeds.RecordKind][]feeds.Record
}

// NewFeedStore creates a feed store retaining up to capacity records per kind
func NewFeedStore(capacity int) *FeedStore {
	return &FeedStore{
		capacity:   capacity,
		partitions: make(map[feeds.RecordKind][]feeds.Record),
	}
}

// Append adds a feed record to its kind partition
func (s *FeedStore) Append(r feeds.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part := append(s.partitions[r.Kind], r)
	if len(part) > s.capacity {
		part = part[len(part)-s.capacity:]
	}
	s.partitions[r.Kind] = part
}

// Recent returns up to n feed records merged across kinds, newest first
func (s *FeedStore) Recent(n int) []feeds.Record {
	s.mu.RLock()
	total := 0
	for _, part := range s.partitions {
		total += len(part)
	}
	merged := make([]feeds.Record, 0, total)
	for _, part := range s.partitions {
		merged = append(merged, part...)
	}
	s.mu.RUnlock()

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp().After(merged[j].Timestamp())
	})
	if n > 0 && len(merged) > n {
		merged = merged[:n]
	}
	return merged
}

// Len returns the total number of retained feed records
func (s *FeedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, part := range s.partitions {
		total += len(part)
	}
	return total
}
