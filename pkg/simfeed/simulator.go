// Package simfeed generates the synthetic cyber/GPS telemetry stream. The
// receiver drifts in a small random walk around a base coordinate; with a
// configurable probability a cycle injects an anomaly (a spoof-style position
// jump, or degraded accuracy with a weak signal) for the detector to catch.
package simfeed

import (
	"math"
	"math/rand"
	"time"

	"github.com/helios-defense/skywatch/pkg/feeds"
)

// Base coordinate for the simulated receiver (Beirut airport vicinity)
const (
	BaseLat = 33.8953
	BaseLon = 35.4744
)

// DefaultAnomalyRate is the per-cycle probability of an injected anomaly
const DefaultAnomalyRate = 0.18

type anomalyKind int

const (
	anomalyNone anomalyKind = iota
	anomalySpoofJump
	anomalyJamming
)

// Simulator produces telemetry samples for a single receiver
type Simulator struct {
	rng         *rand.Rand
	entityID    string
	lat         float64
	lon         float64
	anomalyRate float64
}

// Option configures a Simulator
type Option func(*Simulator)

// WithSeed fixes the random source, for reproducible runs and tests
func WithSeed(seed int64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithAnomalyRate overrides the injected-anomaly probability
func WithAnomalyRate(rate float64) Option {
	return func(s *Simulator) {
		s.anomalyRate = rate
	}
}

// WithStart overrides the initial position
func WithStart(lat, lon float64) Option {
	return func(s *Simulator) {
		s.lat = lat
		s.lon = lon
	}
}

// New creates a simulator for the given receiver ID
func New(entityID string, opts ...Option) *Simulator {
	s := &Simulator{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		entityID:    entityID,
		lat:         BaseLat,
		lon:         BaseLon,
		anomalyRate: DefaultAnomalyRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next advances the simulation one step and returns the sample at the given
// instant. Samples are immutable once produced.
func (s *Simulator) Next(now time.Time) feeds.TelemetrySample {
	kind := anomalyNone
	if s.rng.Float64() < s.anomalyRate {
		if s.rng.Intn(2) == 0 {
			kind = anomalySpoofJump
		} else {
			kind = anomalyJamming
		}
	}

	// Nominal drift: a few meters per step
	s.lat += s.rng.Float64()*0.0001 - 0.00005
	s.lon += s.rng.Float64()*0.0001 - 0.00005

	accuracy := 1.5 + s.rng.Float64()*3.5
	signal := -125.0 + s.rng.Float64()*10

	switch kind {
	case anomalySpoofJump:
		// Jump well clear of the base position; accuracy degrades with it
		s.lat = BaseLat + 0.01 + s.rng.Float64()*0.04
		s.lon = BaseLon + 0.01 + s.rng.Float64()*0.04
		accuracy = 10 + s.rng.Float64()*40
	case anomalyJamming:
		accuracy = 50 + s.rng.Float64()*150
		signal = -160 + s.rng.Float64()*20
	}

	return feeds.TelemetrySample{
		EntityID:         s.entityID,
		Timestamp:        now,
		Latitude:         round6(s.lat),
		Longitude:        round6(s.lon),
		AccuracyM:        round1(accuracy),
		SignalStrengthDB: round1(signal),
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
