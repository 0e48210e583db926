// Package policy resolves the flat key→value configuration into the immutable
// threshold policy shared by both detectors. Resolution happens once at
// startup; any invalid value is fatal so the system never runs with undefined
// thresholds.
package policy

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Documented defaults, used when a key is absent from the configuration
const (
	DefaultSpeedGateKmh        = 1200.0
	DefaultJumpDistanceKm      = 5.0
	DefaultJumpMaxElapsed      = 30 * time.Second
	DefaultDedupWindow         = 60 * time.Second
	DefaultRateWindow          = 60 * time.Second
	DefaultRateZScoreThreshold = 3.0
	DefaultDegradedAccuracyM   = 30.0
	DefaultWeakSignalDB        = -140.0
	DefaultMaxAlerts           = 500
	DefaultMaxFeedItems        = 1000
	DefaultSimInterval         = time.Second
	DefaultWeatherInterval     = 60 * time.Second

	// CriticalSeverityMultiple scales warning thresholds up to critical:
	// a reading this many times over its gate escalates the alert
	CriticalSeverityMultiple = 3.0
)

// Policy holds every resolved threshold. Read-only for the lifetime of a run;
// shared by value with both detectors.
type Policy struct {
	SpeedGateKmh        float64
	JumpDistanceKm      float64
	JumpMaxElapsed      time.Duration
	DedupWindow         time.Duration
	RateWindow          time.Duration
	RateZScoreThreshold float64
	DegradedAccuracyM   float64
	WeakSignalDB        float64
	MaxAlerts           int
	MaxFeedItems        int
	SimInterval         time.Duration
	WeatherInterval     time.Duration
}

// Default returns the policy with every key at its documented default
func Default() Policy {
	return Policy{
		SpeedGateKmh:        DefaultSpeedGateKmh,
		JumpDistanceKm:      DefaultJumpDistanceKm,
		JumpMaxElapsed:      DefaultJumpMaxElapsed,
		DedupWindow:         DefaultDedupWindow,
		RateWindow:          DefaultRateWindow,
		RateZScoreThreshold: DefaultRateZScoreThreshold,
		DegradedAccuracyM:   DefaultDegradedAccuracyM,
		WeakSignalDB:        DefaultWeakSignalDB,
		MaxAlerts:           DefaultMaxAlerts,
		MaxFeedItems:        DefaultMaxFeedItems,
		SimInterval:         DefaultSimInterval,
		WeatherInterval:     DefaultWeatherInterval,
	}
}

// Lookup resolves a configuration key; the second return reports presence
type Lookup func(key string) (string, bool)

// FromEnv resolves the policy from process environment variables
func FromEnv() (Policy, error) {
	return Resolve(os.LookupEnv)
}

// FromMap resolves the policy from a flat map, for tests and embedding
func FromMap(m map[string]string) (Policy, error) {
	return Resolve(func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	})
}

// Resolve builds the policy from a flat key→value mapping. Missing keys fall
// back to defaults; malformed or out-of-range values return an error.
func Resolve(lookup Lookup) (Policy, error) {
	p := Default()

	var err error
	if p.SpeedGateKmh, err = resolveFloat(lookup, "SPEED_GATE_KMH", p.SpeedGateKmh); err != nil {
		return Policy{}, err
	}
	if p.JumpDistanceKm, err = resolveFloat(lookup, "JUMP_DISTANCE_KM", p.JumpDistanceKm); err != nil {
		return Policy{}, err
	}
	if p.JumpMaxElapsed, err = resolveDuration(lookup, "JUMP_MAX_ELAPSED", p.JumpMaxElapsed); err != nil {
		return Policy{}, err
	}
	if p.DedupWindow, err = resolveDuration(lookup, "DEDUP_WINDOW", p.DedupWindow); err != nil {
		return Policy{}, err
	}
	if p.RateWindow, err = resolveDuration(lookup, "RATE_WINDOW", p.RateWindow); err != nil {
		return Policy{}, err
	}
	if p.RateZScoreThreshold, err = resolveFloat(lookup, "RATE_ZSCORE_THRESHOLD", p.RateZScoreThreshold); err != nil {
		return Policy{}, err
	}
	if p.DegradedAccuracyM, err = resolveFloat(lookup, "DEGRADED_ACCURACY_M", p.DegradedAccuracyM); err != nil {
		return Policy{}, err
	}
	if p.WeakSignalDB, err = resolveSignedFloat(lookup, "WEAK_SIGNAL_DB", p.WeakSignalDB); err != nil {
		return Policy{}, err
	}
	if p.MaxAlerts, err = resolveInt(lookup, "MAX_ALERTS", p.MaxAlerts); err != nil {
		return Policy{}, err
	}
	if p.MaxFeedItems, err = resolveInt(lookup, "MAX_FEED_ITEMS", p.MaxFeedItems); err != nil {
		return Policy{}, err
	}
	if p.SimInterval, err = resolveDuration(lookup, "SIM_INTERVAL", p.SimInterval); err != nil {
		return Policy{}, err
	}
	if p.WeatherInterval, err = resolveDuration(lookup, "WEATHER_INTERVAL", p.WeatherInterval); err != nil {
		return Policy{}, err
	}

	return p, nil
}

func resolveFloat(lookup Lookup, key string, def float64) (float64, error) {
	raw, ok := lookup(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("policy %s: invalid value %q: %w", key, raw, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("policy %s: must be positive, got %v", key, v)
	}
	return v, nil
}

// resolveSignedFloat allows negative values (signal strength thresholds are dB)
func resolveSignedFloat(lookup Lookup, key string, def float64) (float64, error) {
	raw, ok := lookup(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("policy %s: invalid value %q: %w", key, raw, err)
	}
	return v, nil
}

func resolveInt(lookup Lookup, key string, def int) (int, error) {
	raw, ok := lookup(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("policy %s: invalid value %q: %w", key, raw, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("policy %s: must be positive, got %d", key, v)
	}
	return v, nil
}

func resolveDuration(lookup Lookup, key string, def time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || raw == "" {
		return def, nil
	}
	// Accept plain seconds or Go duration syntax
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("policy %s: must be positive, got %d", key, secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("policy %s: invalid value %q: %w", key, raw, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("policy %s: must be positive, got %v", key, v)
	}
	return v, nil
}
