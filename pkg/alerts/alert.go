// Package alerts defines the alert model shared by every detector: the closed
// category set, ordered severities, per-category detail payloads, and the
// fingerprint that gives each logical condition a stable identity.
package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helios-defense/skywatch/pkg/feeds"
)

// Source identifies which detector produced an alert
type Source string

const (
	SourceSim   Source = "SIM"
	SourceDonki Source = "DONKI"
)

// Severity is the ordered alert severity: info < warning < critical
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// String returns the wire name of the severity
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalJSON encodes the severity as its wire name
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a severity wire name
func (s *Severity) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"info"`:
		*s = SeverityInfo
	case `"warning"`:
		*s = SeverityWarning
	case `"critical"`:
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %s", data)
	}
	return nil
}

// ParseSeverity resolves a severity wire name
func ParseSeverity(name string) (Severity, error) {
	switch name {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "critical":
		return SeverityCritical, nil
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// Category is the closed set of alert categories
type Category string

const (
	CategoryGPSSpoofSuspected   Category = "GPS_SPOOF_SUSPECTED"
	CategoryGPSJump             Category = "GPS_JUMP"
	CategoryGPSAccuracyDegraded Category = "GPS_ACCURACY_DEGRADED"
	CategoryGPSJammingSuspected Category = "GPS_JAMMING_SUSPECTED"
	CategoryWeatherRateAnomaly  Category = "WEATHER_RATE_ANOMALY"
	CategoryOutOfOrderSample    Category = "OUT_OF_ORDER_SAMPLE"
)

// GPSDetails carries the movement figures behind a GPS alert
type GPSDetails struct {
	ImpliedSpeedKmh float64 `json:"implied_speed_kmh,omitempty"`
	DistanceKm      float64 `json:"distance_km,omitempty"`
	ElapsedSeconds  float64 `json:"elapsed_seconds,omitempty"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
}

// SignalDetails carries signal-quality figures for accuracy/jamming alerts
type SignalDetails struct {
	AccuracyM        float64 `json:"accuracy_m,omitempty"`
	SignalStrengthDB float64 `json:"signal_strength_db,omitempty"`
}

// RateDetails carries the statistics behind a rate-anomaly alert
type RateDetails struct {
	Category       feeds.WeatherCategory `json:"category"`
	WindowCount    int                   `json:"window_count"`
	BaselineMean   float64               `json:"baseline_mean"`
	BaselineStddev float64               `json:"baseline_stddev"`
	ZScore         float64               `json:"z_score"`
}

// Details is the per-category structured payload. Exactly one field is set,
// matching the alert category.
type Details struct {
	GPS    *GPSDetails    `json:"gps,omitempty"`
	Signal *SignalDetails `json:"signal,omitempty"`
	Rate   *RateDetails   `json:"rate,omitempty"`
}

// Alert is an admitted, immutable alert record
type Alert struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Source      Source    `json:"source"`
	EntityID    string    `json:"entity_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Summary     string    `json:"summary"`
	Details     Details   `json:"details"`
	Impacts     []Impact  `json:"impacts,omitempty"`
}

// Candidate is a detector-produced alert before fingerprinting and dedup
type Candidate struct {
	Category  Category
	Severity  Severity
	EntityID  string
	Timestamp time.Time
	Summary   string
	Details   Details
}

// Build finalizes a candidate into an Alert with the given identity fields
func (c Candidate) Build(source Source, fingerprint string) Alert {
	return Alert{
		ID:          uuid.New().String(),
		Fingerprint: fingerprint,
		Category:    c.Category,
		Severity:    c.Severity,
		Source:      source,
		EntityID:    c.EntityID,
		Timestamp:   c.Timestamp,
		Summary:     c.Summary,
		Details:     c.Details,
		Impacts:     ImpactsFor(c.Category),
	}
}
