// Package detect houses the two detectors and the shared admission pipeline
// that turns their candidates into stored, broadcast alerts
package detect

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/helios-defense/skywatch/pkg/alerts"
	"github.com/helios-defense/skywatch/pkg/dedup"
	"github.com/helios-defense/skywatch/pkg/store"
)

// Publisher delivers admitted alerts to an external bus. Optional; a nil
// publisher is skipped.
type Publisher interface {
	Publish(ctx context.Context, a alerts.Alert) error
}

// Broadcaster pushes admitted alerts to connected dashboard clients.
// Optional; a nil broadcaster is skipped.
type Broadcaster interface {
	Broadcast(a alerts.Alert)
}

// Archiver persists admitted alerts durably. Optional; a nil archiver is
// skipped.
type Archiver interface {
	InsertAlert(ctx context.Context, a alerts.Alert) error
}

// Metrics holds the pipeline counters, labeled by alert source
type Metrics struct {
	Candidates *prometheus.CounterVec
	Admitted   *prometheus.CounterVec
	Suppressed *prometheus.CounterVec
	Errors     *prometheus.CounterVec
}

// NewMetrics registers the pipeline counters with the given registry
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_alert_candidates_total",
			Help: "Alert candidates produced by detectors",
		}, []string{"source"}),
		Admitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_alerts_admitted_total",
			Help: "Candidates admitted past deduplication",
		}, []string{"source"}),
		Suppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_alerts_suppressed_total",
			Help: "Candidates suppressed as duplicates",
		}, []string{"source"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_pipeline_errors_total",
			Help: "Downstream delivery errors (bus publish)",
		}, []string{"source"}),
	}
}

// Pipeline is the single admission path for one producer: fingerprint the
// candidate, consult the dedup window, then fan the admitted alert out to the
// store and the optional collaborators. Each producer owns one Pipeline keyed
// by its source, so two detectors never share dedup state.
type Pipeline struct {
	source      alerts.Source
	window      *dedup.Window
	dedupWindow time.Duration
	alertStore  *store.AlertStore
	publisher   Publisher
	broadcaster Broadcaster
	archiver    Archiver
	metrics     *Metrics
	logger      zerolog.Logger
}

// PipelineOption configures optional pipeline collaborators
type PipelineOption func(*Pipeline)

// WithPublisher attaches an external alert bus
func WithPublisher(p Publisher) PipelineOption {
	return func(pl *Pipeline) {
		pl.publisher = p
	}
}

// WithBroadcaster attaches a live dashboard broadcaster
func WithBroadcaster(b Broadcaster) PipelineOption {
	return func(pl *Pipeline) {
		pl.broadcaster = b
	}
}

// WithArchiver attaches a durable alert archive
func WithArchiver(a Archiver) PipelineOption {
	return func(pl *Pipeline) {
		pl.archiver = a
	}
}

// NewPipeline creates the admission pipeline for one alert source
func NewPipeline(source alerts.Source, dedupWindow time.Duration, alertStore *store.AlertStore, metrics *Metrics, logger zerolog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		source:      source,
		window:      dedup.NewWindow(dedupWindow),
		dedupWindow: dedupWindow,
		alertStore:  alertStore,
		metrics:     metrics,
		logger:      logger.With().Str("component", "pipeline").Str("source", string(source)).Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Offer runs one candidate through fingerprinting and dedup. The returned
// alert is valid only when admitted is true. Timestamps come from the
// candidate, not the wall clock, so replaying the same input stream yields
// the same admissions.
func (p *Pipeline) Offer(ctx context.Context, c alerts.Candidate) (alerts.Alert, bool) {
	source := string(p.source)
	p.metrics.Candidates.WithLabelValues(source).Inc()

	fingerprint := alerts.Fingerprint(c.Category, p.source, c.EntityID, c.Timestamp, p.dedupWindow)
	if p.window.Check(fingerprint, c.Timestamp) == dedup.Suppress {
		p.metrics.Suppressed.WithLabelValues(source).Inc()
		p.logger.Debug().
			Str("fingerprint", fingerprint).
			Str("category", string(c.Category)).
			Msg("Candidate suppressed")
		return alerts.Alert{}, false
	}

	alert := c.Build(p.source, fingerprint)
	p.alertStore.Append(alert)
	p.metrics.Admitted.WithLabelValues(source).Inc()

	p.logger.Info().
		Str("alert_id", alert.ID).
		Str("category", string(alert.Category)).
		Str("severity", alert.Severity.String()).
		Str("entity_id", alert.EntityID).
		Msg("Alert admitted")

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, alert); err != nil {
			p.metrics.Errors.WithLabelValues(source).Inc()
			p.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("Bus publish failed")
		}
	}
	if p.archiver != nil {
		if err := p.archiver.InsertAlert(ctx, alert); err != nil {
			p.metrics.Errors.WithLabelValues(source).Inc()
			p.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("Archive insert failed")
		}
	}
	if p.broadcaster != nil {
		p.broadcaster.Broadcast(alert)
	}

	return alert, true
}

// Sweep evicts stale dedup entries; called by the owning producer loop
func (p *Pipeline) Sweep(now time.Time) {
	if removed := p.window.Sweep(now); removed > 0 {
		p.logger.Debug().Int("removed", removed).Msg("Dedup window swept")
	}
}

// DedupStats exposes the dedup counters for the stats endpoint
func (p *Pipeline) DedupStats() dedup.Stats {
	return p.window.Stats()
}
