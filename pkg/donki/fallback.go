package donki

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helios-defense/skywatch/pkg/feeds"
)

// fallbackTemplate describes one synthetic event the fallback set replays
type fallbackTemplate struct {
	category  feeds.WeatherCategory
	magnitude float64
}

// The static fallback set mirrors a quiet day of space weather: a couple of
// flares, one CME, one geomagnetic disturbance
var defaultFallbackSet = []fallbackTemplate{
	{category: feeds.WeatherSolarFlare},
	{category: feeds.WeatherSolarFlare},
	{category: feeds.WeatherCME},
	{category: feeds.WeatherGeomagneticStorm, magnitude: 4},
}

// Fallback replays a fixed local event set, re-stamped to the pull time so
// rate statistics behave the same as with live data
type Fallback struct {
	templates []fallbackTemplate
	mu        sync.Mutex
	pull      int
}

// NewFallback creates the default static fallback provider
func NewFallback() *Fallback {
	return &Fallback{templates: defaultFallbackSet}
}

// Events returns the fallback set stamped at the current instant. Event IDs
// are unique per pull so retained feed records stay distinguishable.
func (f *Fallback) Events(_ context.Context, _ time.Time) ([]feeds.WeatherEvent, error) {
	f.mu.Lock()
	f.pull++
	pull := f.pull
	f.mu.Unlock()

	now := time.Now().UTC()
	events := make([]feeds.WeatherEvent, 0, len(f.templates))
	for i, tmpl := range f.templates {
		event := feeds.WeatherEvent{
			EventID:   fmt.Sprintf("fallback-%s-%d-%d", tmpl.category, pull, i),
			Category:  tmpl.category,
			Timestamp: now,
		}
		if tmpl.magnitude > 0 {
			m := tmpl.magnitude
			event.Magnitude = &m
		}
		events = append(events, event)
	}
	return events, nil
}

// Feed is the provider the weather detector consumes: it tries the primary
// provider and substitutes the fallback on ErrUnavailable without surfacing
// an error upward. The switch is logged once per outage, not per cycle.
type Feed struct {
	primary  Provider
	fallback Provider
	logger   zerolog.Logger
	degraded bool
}

// NewFeed wraps a primary provider with fallback substitution
func NewFeed(primary, fallback Provider, logger zerolog.Logger) *Feed {
	return &Feed{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "weather_feed").Logger(),
	}
}

// Events yields the next batch of weather events, from the primary when
// healthy and the fallback otherwise
func (f *Feed) Events(ctx context.Context, since time.Time) ([]feeds.WeatherEvent, error) {
	events, err := f.primary.Events(ctx, since)
	if err == nil {
		if f.degraded {
			f.degraded = false
			f.logger.Info().Msg("External weather provider recovered")
		}
		return events, nil
	}

	if !f.degraded {
		f.degraded = true
		f.logger.Info().Err(err).Msg("External weather provider unavailable, using local fallback set")
	}
	return f.fallback.Events(ctx, since)
}
