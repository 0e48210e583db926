// Package postgres provides the optional durable alert archive. The in-memory
// store bounds what the dashboard sees; the archive keeps everything.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-defense/skywatch/pkg/alerts"
)

// Archive wraps pgxpool.Pool with alert persistence methods
type Archive struct {
	*pgxpool.Pool
}

// NewArchiveFromURL creates an archive from a connection URL
func NewArchiveFromURL(ctx context.Context, url string) (*Archive, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Archive{Pool: pool}, nil
}

// EnsureSchema creates the alert table if it does not exist
func (a *Archive) EnsureSchema(ctx context.Context) error {
	_, err := a.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS alerts (
			id          UUID PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			category    TEXT NOT NULL,
			severity    TEXT NOT NULL,
			source      TEXT NOT NULL,
			entity_id   TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL,
			summary     TEXT NOT NULL,
			details     JSONB NOT NULL DEFAULT '{}',
			impacts     JSONB NOT NULL DEFAULT '[]',
			archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_occurred_at ON alerts (occurred_at DESC);
		CREATE INDEX IF NOT EXISTS idx_alerts_fingerprint ON alerts (fingerprint);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure alert schema: %w", err)
	}
	return nil
}

// InsertAlert archives one admitted alert
func (a *Archive) InsertAlert(ctx context.Context, alert alerts.Alert) error {
	details, err := json.Marshal(alert.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details for alert %s: %w", alert.ID, err)
	}
	impacts, err := json.Marshal(alert.Impacts)
	if err != nil {
		return fmt.Errorf("failed to encode impacts for alert %s: %w", alert.ID, err)
	}

	_, err = a.Exec(ctx, `
		INSERT INTO alerts (id, fingerprint, category, severity, source, entity_id, occurred_at, summary, details, impacts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		alert.ID, alert.Fingerprint, string(alert.Category), alert.Severity.String(),
		string(alert.Source), alert.EntityID, alert.Timestamp, alert.Summary, details, impacts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// RecentAlerts returns up to limit archived alerts, newest first
func (a *Archive) RecentAlerts(ctx context.Context, limit int) ([]alerts.Alert, error) {
	rows, err := a.Query(ctx, `
		SELECT id, fingerprint, category, severity, source, entity_id, occurred_at, summary, details, impacts
		FROM alerts
		ORDER BY occurred_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []alerts.Alert
	for rows.Next() {
		var (
			alert               alerts.Alert
			severityName        string
			occurredAt          time.Time
			detailsRaw, impacts []byte
		)
		if err := rows.Scan(
			&alert.ID, &alert.Fingerprint, &alert.Category, &severityName,
			&alert.Source, &alert.EntityID, &occurredAt, &alert.Summary,
			&detailsRaw, &impacts,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}

		severity, err := alerts.ParseSeverity(severityName)
		if err != nil {
			return nil, fmt.Errorf("alert %s: %w", alert.ID, err)
		}
		alert.Severity = severity
		alert.Timestamp = occurredAt
		if err := json.Unmarshal(detailsRaw, &alert.Details); err != nil {
			return nil, fmt.Errorf("alert %s: failed to decode details: %w", alert.ID, err)
		}
		if err := json.Unmarshal(impacts, &alert.Impacts); err != nil {
			return nil, fmt.Errorf("alert %s: failed to decode impacts: %w", alert.ID, err)
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

// Health checks database connectivity
func (a *Archive) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return a.Ping(ctx)
}
