package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helios-defense/skywatch/pkg/alerts"
	"github.com/helios-defense/skywatch/pkg/donki"
	"github.com/helios-defense/skywatch/pkg/feeds"
	"github.com/helios-defense/skywatch/pkg/policy"
	"github.com/helios-defense/skywatch/pkg/store"
)

// fetchLookback is how far back each provider pull queries. Providers return
// overlapping batches; the seen-ID set keeps repeats out of the counts.
const fetchLookback = 72 * time.Hour

// categoryState tracks the rate statistics for one weather category
type categoryState struct {
	arrivals    []time.Time
	windowStart time.Time
	windowCount int
	baseline    baseline
}

// WeatherDetector counts event arrivals per category over a rolling window
// and compares each window against a sliding baseline of completed windows.
// Single-goroutine like the GPS detector.
type WeatherDetector struct {
	policy   policy.Policy
	pipeline *Pipeline
	provider donki.Provider
	feed     *store.FeedStore
	logger   zerolog.Logger

	states map[feeds.WeatherCategory]*categoryState
	seen   map[string]time.Time
}

// NewWeatherDetector creates the space-weather detector
func NewWeatherDetector(pol policy.Policy, pipeline *Pipeline, provider donki.Provider, feed *store.FeedStore, logger zerolog.Logger) *WeatherDetector {
	return &WeatherDetector{
		policy:   pol,
		pipeline: pipeline,
		provider: provider,
		feed:     feed,
		logger:   logger.With().Str("component", "weather_detector").Logger(),
		states:   make(map[feeds.WeatherCategory]*categoryState),
		seen:     make(map[string]time.Time),
	}
}

// Observe counts one event arrival and evaluates the rate rule for its
// category. Events already seen by ID are ignored; arrival time, not the
// event's own timestamp, drives the window so historical batches from the
// provider do not skew the rate.
func (d *WeatherDetector) Observe(ctx context.Context, event feeds.WeatherEvent, now time.Time) {
	if _, dup := d.seen[event.EventID]; dup {
		return
	}
	d.seen[event.EventID] = now

	st := d.state(event.Category)
	d.rollWindows(st, now)

	st.windowCount++
	st.arrivals = append(st.arrivals, now)
	st.arrivals = trimBefore(st.arrivals, now.Add(-d.policy.RateWindow))
	count := len(st.arrivals)

	if !st.baseline.Ready() {
		return
	}

	mean, stddev := st.baseline.MeanStddev()
	z := (float64(count) - mean) / stddev
	if z < d.policy.RateZScoreThreshold {
		return
	}

	severity := alerts.SeverityWarning
	if z >= 2*d.policy.RateZScoreThreshold {
		severity = alerts.SeverityCritical
	}
	d.pipeline.Offer(ctx, alerts.Candidate{
		Category:  alerts.CategoryWeatherRateAnomaly,
		Severity:  severity,
		EntityID:  string(event.Category),
		Timestamp: now,
		Summary: fmt.Sprintf("%s event rate %d per window, %.1f sigma above baseline %.1f",
			event.Category, count, z, mean),
		Details: alerts.Details{Rate: &alerts.RateDetails{
			Category:       event.Category,
			WindowCount:    count,
			BaselineMean:   mean,
			BaselineStddev: stddev,
			ZScore:         z,
		}},
	})
}

func (d *WeatherDetector) state(category feeds.WeatherCategory) *categoryState {
	st, ok := d.states[category]
	if !ok {
		st = &categoryState{baseline: newSlidingBaseline()}
		d.states[category] = st
	}
	return st
}

// rollWindows pushes every window completed before now into the baseline.
// Idle spans contribute zero-count windows so the baseline reflects quiet
// periods too.
func (d *WeatherDetector) rollWindows(st *categoryState, now time.Time) {
	if st.windowStart.IsZero() {
		st.windowStart = now
		return
	}
	for !now.Before(st.windowStart.Add(d.policy.RateWindow)) {
		st.baseline.Push(st.windowCount)
		st.windowStart = st.windowStart.Add(d.policy.RateWindow)
		st.windowCount = 0
	}
}

// pruneSeen drops seen-ID entries old enough that the provider no longer
// returns them
func (d *WeatherDetector) pruneSeen(now time.Time) {
	cutoff := now.Add(-fetchLookback)
	for id, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, id)
		}
	}
}

func trimBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return times[i:]
}

// Run drives the weather producer loop until the context is cancelled. Every
// cycle pulls from the provider (live or fallback), records new events in the
// raw feed, and updates the rate statistics.
func (d *WeatherDetector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.policy.WeatherInterval)
	defer ticker.Stop()
	sweep := time.NewTicker(d.policy.DedupWindow / 2)
	defer sweep.Stop()

	d.logger.Info().
		Dur("interval", d.policy.WeatherInterval).
		Msg("Weather producer started")

	// First pull without waiting out a full interval
	d.pull(ctx, time.Now().UTC())

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Weather producer stopping")
			return nil
		case now := <-sweep.C:
			d.pipeline.Sweep(now.UTC())
		case now := <-ticker.C:
			d.pull(ctx, now.UTC())
		}
	}
}

func (d *WeatherDetector) pull(ctx context.Context, now time.Time) {
	events, err := d.provider.Events(ctx, now.Add(-fetchLookback))
	if err != nil {
		// Only reachable with a bare provider; the Feed wrapper recovers
		// unavailability internally
		d.logger.Warn().Err(err).Msg("Weather pull failed")
		return
	}

	for _, event := range events {
		if _, dup := d.seen[event.EventID]; dup {
			continue
		}
		d.feed.Append(feeds.NewWeatherRecord(event))
		d.Observe(ctx, event, now)
	}
	d.pruneSeen(now)
}
