package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-defense/skywatch/pkg/alerts"
	"github.com/helios-defense/skywatch/pkg/detect"
	"github.com/helios-defense/skywatch/pkg/feeds"
	"github.com/helios-defense/skywatch/pkg/policy"
	"github.com/helios-defense/skywatch/pkg/store"
)

func seedAlert(s *store.AlertStore, source alerts.Source, severity alerts.Severity, category alerts.Category, ts time.Time) alerts.Alert {
	a := alerts.Alert{
		ID:          uuid.New().String(),
		Fingerprint: uuid.New().String(),
		Category:    category,
		Severity:    severity,
		Source:      source,
		EntityID:    "sat-1",
		Timestamp:   ts,
		Summary:     "test alert",
	}
	s.Append(a)
	return a
}

func newAlertRouter(alertStore *store.AlertStore, pipelines map[alerts.Source]*detect.Pipeline, archive ArchiveReader) http.Handler {
	h := NewAlertHandler(alertStore, pipelines, archive, zerolog.Nop())
	r := chi.NewRouter()
	r.Use(CorrelationID)
	r.Mount("/api/v1/alerts", h.Routes())
	r.Get("/api/v1/stats", h.Stats)
	return r
}

// TestListAlerts verifies ordering, limits and filters of the alert listing
func TestListAlerts(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	alertStore := store.NewAlertStore(100)
	seedAlert(alertStore, alerts.SourceSim, alerts.SeverityWarning, alerts.CategoryGPSSpoofSuspected, base)
	seedAlert(alertStore, alerts.SourceSim, alerts.SeverityCritical, alerts.CategoryGPSJump, base.Add(time.Minute))
	seedAlert(alertStore, alerts.SourceDonki, alerts.SeverityInfo, alerts.CategoryWeatherRateAnomaly, base.Add(2*time.Minute))

	router := newAlertRouter(alertStore, nil, nil)

	tests := []struct {
		name       string
		query      string
		wantTotal  int
		wantAlerts int
		wantStatus int
	}{
		{name: "all alerts", query: "", wantTotal: 3, wantAlerts: 3, wantStatus: http.StatusOK},
		{name: "limit truncates but total counts all matches", query: "?limit=2", wantTotal: 3, wantAlerts: 2, wantStatus: http.StatusOK},
		{name: "source filter", query: "?source=DONKI", wantTotal: 1, wantAlerts: 1, wantStatus: http.StatusOK},
		{name: "severity is a floor", query: "?severity=warning", wantTotal: 2, wantAlerts: 2, wantStatus: http.StatusOK},
		{name: "category filter", query: "?category=GPS_JUMP", wantTotal: 1, wantAlerts: 1, wantStatus: http.StatusOK},
		{name: "since filter", query: "?since=" + base.Add(30*time.Second).Format(time.RFC3339), wantTotal: 2, wantAlerts: 2, wantStatus: http.StatusOK},
		{name: "bad limit", query: "?limit=zero", wantStatus: http.StatusBadRequest},
		{name: "bad since", query: "?since=yesterday", wantStatus: http.StatusBadRequest},
		{name: "bad severity", query: "?severity=extreme", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts"+tt.query, nil)
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp AlertListResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantTotal, resp.Total)
			assert.Len(t, resp.Alerts, tt.wantAlerts)
			assert.NotEmpty(t, resp.CorrelationID)
		})
	}
}

// TestListAlertsOrdering verifies newest-first by default, oldest-first
// with since
func TestListAlertsOrdering(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	alertStore := store.NewAlertStore(100)
	oldest := seedAlert(alertStore, alerts.SourceSim, alerts.SeverityWarning, alerts.CategoryGPSJump, base)
	newest := seedAlert(alertStore, alerts.SourceSim, alerts.SeverityWarning, alerts.CategoryGPSSpoofSuspected, base.Add(time.Minute))

	router := newAlertRouter(alertStore, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	var resp AlertListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Alerts, 2)
	assert.Equal(t, newest.ID, resp.Alerts[0].ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts?since="+base.Format(time.RFC3339), nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Alerts, 2)
	assert.Equal(t, oldest.ID, resp.Alerts[0].ID)
}

type stubArchive struct {
	alerts []alerts.Alert
	err    error
	limit  int
}

func (s *stubArchive) RecentAlerts(_ context.Context, limit int) ([]alerts.Alert, error) {
	s.limit = limit
	return s.alerts, s.err
}

// TestListArchived verifies the archive listing and that it 404s when no
// archive is configured
func TestListArchived(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	alertStore := store.NewAlertStore(100)

	archived := alerts.Alert{
		ID:          uuid.New().String(),
		Fingerprint: uuid.New().String(),
		Category:    alerts.CategoryGPSJump,
		Severity:    alerts.SeverityWarning,
		Source:      alerts.SourceSim,
		EntityID:    "sat-1",
		Timestamp:   base,
		Summary:     "archived alert",
	}

	t.Run("archive enabled", func(t *testing.T) {
		archive := &stubArchive{alerts: []alerts.Alert{archived}}
		router := newAlertRouter(alertStore, nil, archive)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/archive?limit=25", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp AlertListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Alerts, 1)
		assert.Equal(t, archived.ID, resp.Alerts[0].ID)
		assert.Equal(t, 1, resp.Total)
		assert.Equal(t, 25, archive.limit)
	})

	t.Run("archive read failure", func(t *testing.T) {
		archive := &stubArchive{err: context.DeadlineExceeded}
		router := newAlertRouter(alertStore, nil, archive)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/archive", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("archive disabled", func(t *testing.T) {
		router := newAlertRouter(alertStore, nil, nil)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/archive", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// TestStats verifies the stats endpoint reflects pipeline dedup counters
func TestStats(t *testing.T) {
	pol := policy.Default()
	alertStore := store.NewAlertStore(pol.MaxAlerts)
	metrics := detect.NewMetrics(prometheus.NewRegistry())
	pipeline := detect.NewPipeline(alerts.SourceSim, pol.DedupWindow, alertStore, metrics, zerolog.Nop())

	candidate := alerts.Candidate{
		Category:  alerts.CategoryGPSJump,
		Severity:  alerts.SeverityWarning,
		EntityID:  "sat-1",
		Timestamp: time.Date(2024, 6, 1, 12, 0, 30, 0, time.UTC),
	}
	pipeline.Offer(context.Background(), candidate)
	pipeline.Offer(context.Background(), candidate)

	router := newAlertRouter(alertStore, map[alerts.Source]*detect.Pipeline{alerts.SourceSim: pipeline}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.StoredAlerts)
	simStats, ok := resp.Sources["SIM"]
	require.True(t, ok)
	assert.Equal(t, int64(1), simStats.Dedup.Admitted)
	assert.Equal(t, int64(1), simStats.Dedup.Suppressed)
}

// TestListFeed verifies the feed listing and kind filter
func TestListFeed(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	feedStore := store.NewFeedStore(100)
	feedStore.Append(feeds.NewTelemetryRecord(feeds.TelemetrySample{
		EntityID: "sat-1", Timestamp: base, Latitude: 33.9, Longitude: 35.5,
	}))
	feedStore.Append(feeds.NewWeatherRecord(feeds.WeatherEvent{
		EventID: "flr-1", Category: feeds.WeatherSolarFlare, Timestamp: base.Add(time.Second),
	}))

	h := NewFeedHandler(feedStore, zerolog.Nop())
	r := chi.NewRouter()
	r.Use(CorrelationID)
	r.Mount("/api/v1/feed", h.Routes())

	tests := []struct {
		name       string
		query      string
		wantTotal  int
		wantStatus int
	}{
		{name: "all records", query: "", wantTotal: 2, wantStatus: http.StatusOK},
		{name: "telemetry only", query: "?kind=telemetry", wantTotal: 1, wantStatus: http.StatusOK},
		{name: "weather only", query: "?kind=weather", wantTotal: 1, wantStatus: http.StatusOK},
		{name: "unknown kind", query: "?kind=seismic", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed"+tt.query, nil))
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp FeedListResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantTotal, resp.Total)
		})
	}
}

// TestCorrelationIDMiddleware verifies caller-supplied IDs are honored
func TestCorrelationIDMiddleware(t *testing.T) {
	var got string
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetCorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", got)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}
