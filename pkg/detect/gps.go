package detect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helios-defense/skywatch/pkg/alerts"
	"github.com/helios-defense/skywatch/pkg/feeds"
	"github.com/helios-defense/skywatch/pkg/geo"
	"github.com/helios-defense/skywatch/pkg/policy"
	"github.com/helios-defense/skywatch/pkg/store"
)

// Sampler yields the next telemetry sample; satisfied by simfeed.Simulator
type Sampler interface {
	Next(now time.Time) feeds.TelemetrySample
}

// GPSDetector evaluates telemetry samples against the movement and signal
// rules. Per-entity last-fix state lives here; all methods are driven by the
// single producer goroutine, so no locking is needed.
type GPSDetector struct {
	policy   policy.Policy
	pipeline *Pipeline
	sampler  Sampler
	feed     *store.FeedStore
	logger   zerolog.Logger
	lastFix  map[string]geo.Fix
}

// NewGPSDetector creates the telemetry detector
func NewGPSDetector(pol policy.Policy, pipeline *Pipeline, sampler Sampler, feed *store.FeedStore, logger zerolog.Logger) *GPSDetector {
	return &GPSDetector{
		policy:   pol,
		pipeline: pipeline,
		sampler:  sampler,
		feed:     feed,
		logger:   logger.With().Str("component", "gps_detector").Logger(),
	}
}

// Process evaluates one sample. Samples with invalid coordinates are rejected
// without advancing per-entity state; out-of-order samples raise a diagnostic
// and are likewise discarded. Accuracy and signal checks apply to every valid
// sample, including an entity's first.
func (d *GPSDetector) Process(ctx context.Context, sample feeds.TelemetrySample) {
	if !geo.ValidCoordinate(sample.Latitude, sample.Longitude) {
		d.logger.Warn().
			Str("entity_id", sample.EntityID).
			Float64("latitude", sample.Latitude).
			Float64("longitude", sample.Longitude).
			Msg("Rejecting sample with invalid coordinates")
		return
	}

	if d.lastFix == nil {
		d.lastFix = make(map[string]geo.Fix)
	}
	fix := geo.Fix{Lat: sample.Latitude, Lon: sample.Longitude, Time: sample.Timestamp}

	if prev, seen := d.lastFix[sample.EntityID]; seen {
		if !d.checkMovement(ctx, sample, prev, fix) {
			return
		}
	}

	d.checkSignal(ctx, sample)
	d.lastFix[sample.EntityID] = fix
}

// checkMovement applies the speed gate and jump rules against the previous
// fix. Returns false when the sample must be discarded without a state update.
func (d *GPSDetector) checkMovement(ctx context.Context, sample feeds.TelemetrySample, prev, fix geo.Fix) bool {
	speed, err := geo.ImpliedSpeedKmh(prev, fix)
	if err != nil {
		if errors.Is(err, geo.ErrNonPositiveInterval) {
			d.pipeline.Offer(ctx, alerts.Candidate{
				Category:  alerts.CategoryOutOfOrderSample,
				Severity:  alerts.SeverityInfo,
				EntityID:  sample.EntityID,
				Timestamp: sample.Timestamp,
				Summary: fmt.Sprintf("Entity %s reported a sample at or before its previous fix (%s vs %s)",
					sample.EntityID, sample.Timestamp.Format(time.RFC3339), prev.Time.Format(time.RFC3339)),
			})
			return false
		}
		d.logger.Warn().Err(err).Str("entity_id", sample.EntityID).Msg("Speed computation failed")
		return false
	}

	distance, _ := geo.DistanceKm(prev.Lat, prev.Lon, fix.Lat, fix.Lon)
	elapsed := fix.Time.Sub(prev.Time)

	details := alerts.Details{GPS: &alerts.GPSDetails{
		ImpliedSpeedKmh: speed,
		DistanceKm:      distance,
		ElapsedSeconds:  elapsed.Seconds(),
		Latitude:        fix.Lat,
		Longitude:       fix.Lon,
	}}

	// The speed gate and the jump rule are independent; a single displacement
	// can raise both
	if speed > d.policy.SpeedGateKmh {
		severity := alerts.SeverityWarning
		if speed > policy.CriticalSeverityMultiple*d.policy.SpeedGateKmh {
			severity = alerts.SeverityCritical
		}
		d.pipeline.Offer(ctx, alerts.Candidate{
			Category:  alerts.CategoryGPSSpoofSuspected,
			Severity:  severity,
			EntityID:  sample.EntityID,
			Timestamp: sample.Timestamp,
			Summary: fmt.Sprintf("Entity %s implied speed %.0f km/h exceeds %.0f km/h gate",
				sample.EntityID, speed, d.policy.SpeedGateKmh),
			Details: details,
		})
	}
	if distance > d.policy.JumpDistanceKm && elapsed <= d.policy.JumpMaxElapsed {
		d.pipeline.Offer(ctx, alerts.Candidate{
			Category:  alerts.CategoryGPSJump,
			Severity:  alerts.SeverityWarning,
			EntityID:  sample.EntityID,
			Timestamp: sample.Timestamp,
			Summary: fmt.Sprintf("Entity %s jumped %.1f km in %.0f s",
				sample.EntityID, distance, elapsed.Seconds()),
			Details: details,
		})
	}
	return true
}

// checkSignal applies the accuracy and signal-strength thresholds
func (d *GPSDetector) checkSignal(ctx context.Context, sample feeds.TelemetrySample) {
	if sample.AccuracyM >= d.policy.DegradedAccuracyM {
		d.pipeline.Offer(ctx, alerts.Candidate{
			Category:  alerts.CategoryGPSAccuracyDegraded,
			Severity:  alerts.SeverityWarning,
			EntityID:  sample.EntityID,
			Timestamp: sample.Timestamp,
			Summary: fmt.Sprintf("Entity %s position accuracy degraded to %.1f m",
				sample.EntityID, sample.AccuracyM),
			Details: alerts.Details{Signal: &alerts.SignalDetails{
				AccuracyM:        sample.AccuracyM,
				SignalStrengthDB: sample.SignalStrengthDB,
			}},
		})
	}

	if sample.SignalStrengthDB <= d.policy.WeakSignalDB {
		d.pipeline.Offer(ctx, alerts.Candidate{
			Category:  alerts.CategoryGPSJammingSuspected,
			Severity:  alerts.SeverityWarning,
			EntityID:  sample.EntityID,
			Timestamp: sample.Timestamp,
			Summary: fmt.Sprintf("Entity %s signal strength %.1f dB below %.1f dB floor",
				sample.EntityID, sample.SignalStrengthDB, d.policy.WeakSignalDB),
			Details: alerts.Details{Signal: &alerts.SignalDetails{
				AccuracyM:        sample.AccuracyM,
				SignalStrengthDB: sample.SignalStrengthDB,
			}},
		})
	}
}

// Run drives the telemetry producer loop until the context is cancelled.
// Every cycle pulls one sample, records it in the raw feed, and evaluates it.
func (d *GPSDetector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.policy.SimInterval)
	defer ticker.Stop()
	sweep := time.NewTicker(d.policy.DedupWindow / 2)
	defer sweep.Stop()

	d.logger.Info().
		Dur("interval", d.policy.SimInterval).
		Msg("Telemetry producer started")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Telemetry producer stopping")
			return nil
		case now := <-sweep.C:
			d.pipeline.Sweep(now.UTC())
		case now := <-ticker.C:
			sample := d.sampler.Next(now.UTC())
			d.feed.Append(feeds.NewTelemetryRecord(sample))
			d.Process(ctx, sample)
		}
	}
}
