// Package donki ingests space-weather events from a DONKI-style HTTP provider,
// degrading to a local static event set when the provider is unavailable
package donki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/helios-defense/skywatch/pkg/feeds"
)

// DefaultBaseURL is the NASA DONKI API root
const DefaultBaseURL = "https://api.nasa.gov/DONKI"

// ErrUnavailable indicates the external provider could not serve events;
// callers substitute the fallback set instead of propagating it
var ErrUnavailable = errors.New("donki: provider unavailable")

// Provider yields timestamped space-weather events
type Provider interface {
	Events(ctx context.Context, since time.Time) ([]feeds.WeatherEvent, error)
}

// endpoint → event category mapping for the DONKI API
var endpointCategories = []struct {
	endpoint string
	category feeds.WeatherCategory
}{
	{"FLR", feeds.WeatherSolarFlare},
	{"CME", feeds.WeatherCME},
	{"GST", feeds.WeatherGeomagneticStorm},
	{"SEP", feeds.WeatherRadiationStorm},
	{"RBE", feeds.WeatherRadiationBelt},
}

// Client fetches events over HTTP. Requests run behind a circuit breaker so a
// flapping provider fails fast to the fallback instead of stalling the
// producer loop on every cycle.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]feeds.WeatherEvent]
	logger     zerolog.Logger
}

// NewClient creates a DONKI client. An empty baseURL uses the public API.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	breaker := gobreaker.NewCircuitBreaker[[]feeds.WeatherEvent](gobreaker.Settings{
		Name:    "donki",
		Timeout: 5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    breaker,
		logger:     logger.With().Str("component", "donki").Logger(),
	}
}

// Events fetches all event categories since the given time. Any transport or
// decode failure of a whole endpoint yields ErrUnavailable; individually
// malformed items are skipped with a diagnostic.
func (c *Client) Events(ctx context.Context, since time.Time) ([]feeds.WeatherEvent, error) {
	events, err := c.breaker.Execute(func() ([]feeds.WeatherEvent, error) {
		return c.fetchAll(ctx, since)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	return events, nil
}

func (c *Client) fetchAll(ctx context.Context, since time.Time) ([]feeds.WeatherEvent, error) {
	var all []feeds.WeatherEvent
	for _, ec := range endpointCategories {
		events, err := c.fetchEndpoint(ctx, ec.endpoint, ec.category, since)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}
	return all, nil
}

// donkiItem covers the identity and timing fields across all DONKI endpoints
type donkiItem struct {
	FlrID      string  `json:"flrID"`
	ActivityID string  `json:"activityID"`
	GstID      string  `json:"gstID"`
	SepID      string  `json:"sepID"`
	RbeID      string  `json:"rbeID"`
	BeginTime  string  `json:"beginTime"`
	StartTime  string  `json:"startTime"`
	EventTime  string  `json:"eventTime"`
	KpIndex    float64 `json:"kpIndex"`
}

func (c *Client) fetchEndpoint(ctx context.Context, endpoint string, category feeds.WeatherCategory, since time.Time) ([]feeds.WeatherEvent, error) {
	u, err := url.Parse(c.baseURL + "/" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse url for %s: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("startDate", since.UTC().Format("2006-01-02"))
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", endpoint, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	var items []donkiItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	events := make([]feeds.WeatherEvent, 0, len(items))
	for _, item := range items {
		event, err := item.toEvent(category)
		if err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Skipping malformed event")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (item donkiItem) toEvent(category feeds.WeatherCategory) (feeds.WeatherEvent, error) {
	id := firstNonEmpty(item.FlrID, item.ActivityID, item.GstID, item.SepID, item.RbeID)
	if id == "" {
		return feeds.WeatherEvent{}, errors.New("event has no identifier")
	}

	raw := firstNonEmpty(item.BeginTime, item.StartTime, item.EventTime)
	if raw == "" {
		return feeds.WeatherEvent{}, errors.New("event has no timestamp")
	}
	ts, err := parseDonkiTime(raw)
	if err != nil {
		return feeds.WeatherEvent{}, fmt.Errorf("event %s: %w", id, err)
	}

	event := feeds.WeatherEvent{
		EventID:   id,
		Category:  category,
		Timestamp: ts,
	}
	if item.KpIndex > 0 {
		kp := item.KpIndex
		event.Magnitude = &kp
	}
	return event, nil
}

// parseDonkiTime accepts DONKI's minute-resolution form and full RFC3339
func parseDonkiTime(raw string) (time.Time, error) {
	if ts, err := time.Parse("2006-01-02T15:04Z", raw); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
	}
	return ts, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
