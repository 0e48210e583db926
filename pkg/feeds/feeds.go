// Package feeds defines the raw telemetry and space-weather records consumed
// by the detectors
package feeds

import "time"

// TelemetrySample is a single GPS/cyber track fix produced by the simulator
type TelemetrySample struct {
	EntityID         string    `json:"entity_id"`
	Timestamp        time.Time `json:"timestamp"`
	Latitude         float64   `json:"latitude"`  // degrees, ±90
	Longitude        float64   `json:"longitude"` // degrees, ±180
	ReportedSpeedKmh *float64  `json:"reported_speed_kmh,omitempty"`
	AccuracyM        float64   `json:"accuracy_m"`
	SignalStrengthDB float64   `json:"signal_strength_db"`
}

// WeatherCategory identifies the kind of space-weather event
type WeatherCategory string

const (
	WeatherSolarFlare       WeatherCategory = "solar_flare"
	WeatherCME              WeatherCategory = "cme"
	WeatherGeomagneticStorm WeatherCategory = "geomagnetic_storm"
	WeatherRadiationStorm   WeatherCategory = "radiation_storm"
	WeatherRadiationBelt    WeatherCategory = "radiation_belt"
)

// WeatherCategories lists every category, for exhaustive iteration
var WeatherCategories = []WeatherCategory{
	WeatherSolarFlare,
	WeatherCME,
	WeatherGeomagneticStorm,
	WeatherRadiationStorm,
	WeatherRadiationBelt,
}

// WeatherEvent is a single space-weather event from the external provider
// or the local fallback set
type WeatherEvent struct {
	EventID   string          `json:"event_id"`
	Category  WeatherCategory `json:"category"`
	Timestamp time.Time       `json:"timestamp"`
	Magnitude *float64        `json:"magnitude,omitempty"`
}

// RecordKind discriminates the payload of a feed Record
type RecordKind string

const (
	RecordTelemetry RecordKind = "telemetry"
	RecordWeather   RecordKind = "weather"
)

// Record is the persisted feed envelope, round-tripping either sample kind
type Record struct {
	Kind      RecordKind       `json:"kind"`
	Telemetry *TelemetrySample `json:"telemetry,omitempty"`
	Weather   *WeatherEvent    `json:"weather,omitempty"`
}

// NewTelemetryRecord wraps a telemetry sample as a feed record
func NewTelemetryRecord(s TelemetrySample) Record {
	return Record{Kind: RecordTelemetry, Telemetry: &s}
}

// NewWeatherRecord wraps a weather event as a feed record
func NewWeatherRecord(e WeatherEvent) Record {
	return Record{Kind: RecordWeather, Weather: &e}
}

// Timestamp returns the payload timestamp regardless of kind
func (r Record) Timestamp() time.Time {
	switch r.Kind {
	case RecordTelemetry:
		if r.Telemetry != nil {
			return r.Telemetry.Timestamp
		}
	case RecordWeather:
		if r.Weather != nil {
			return r.Weather.Timestamp
		}
	}
	return time.Time{}
}
