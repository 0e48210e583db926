// Package alertbus publishes admitted alerts to NATS JetStream for external
// consumers. The bus is optional; the service runs without it.
package alertbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/helios-defense/skywatch/pkg/alerts"
)

// StreamConfig defines the alert stream
var StreamConfig = jetstream.StreamConfig{
	Name:              "ALERTS",
	Description:       "Admitted fused alerts",
	Subjects:          []string{"alert.>"},
	Retention:         jetstream.LimitsPolicy,
	MaxBytes:          256 * 1024 * 1024, // 256MB
	MaxAge:            24 * time.Hour,
	Storage:           jetstream.FileStorage,
	Replicas:          1,
	Discard:           jetstream.DiscardOld,
	MaxMsgsPerSubject: 100000,
}

// Publisher delivers alerts onto the ALERTS stream
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger zerolog.Logger
}

// Connect establishes the NATS connection and ensures the alert stream
// exists
func Connect(ctx context.Context, url, name string, logger zerolog.Logger) (*Publisher, error) {
	busLogger := logger.With().Str("component", "alertbus").Logger()
	busLogger.Info().Str("url", url).Msg("Connecting to NATS")

	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			busLogger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			busLogger.Info().Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.Stream(ctx, StreamConfig.Name); err != nil {
		if _, err := js.CreateStream(ctx, StreamConfig); err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create alert stream: %w", err)
		}
	}

	busLogger.Info().Msg("Connected to NATS with JetStream")
	return &Publisher{nc: nc, js: js, logger: busLogger}, nil
}

// Subject returns the per-alert subject, alert.<source>.<severity>
func Subject(a alerts.Alert) string {
	return fmt.Sprintf("alert.%s.%s", strings.ToLower(string(a.Source)), a.Severity)
}

// Publish delivers one alert. The fingerprint rides along as the JetStream
// message ID so the stream deduplicates any redelivery.
func (p *Publisher) Publish(ctx context.Context, a alerts.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode alert %s: %w", a.ID, err)
	}

	if _, err := p.js.Publish(ctx, Subject(a), data, jetstream.WithMsgID(a.Fingerprint)); err != nil {
		return fmt.Errorf("failed to publish alert %s: %w", a.ID, err)
	}
	return nil
}

// Close drains the connection
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("NATS drain failed")
	}
}
