package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/helios-defense/skywatch/pkg/alerts"
	"github.com/helios-defense/skywatch/pkg/dedup"
	"github.com/helios-defense/skywatch/pkg/detect"
	"github.com/helios-defense/skywatch/pkg/store"
)

const defaultAlertLimit = 100

// ArchiveReader reads durably archived alerts; satisfied by postgres.Archive
type ArchiveReader interface {
	RecentAlerts(ctx context.Context, limit int) ([]alerts.Alert, error)
}

// AlertHandler serves the alert read API
type AlertHandler struct {
	store     *store.AlertStore
	pipelines map[alerts.Source]*detect.Pipeline
	archive   ArchiveReader
	logger    zerolog.Logger
}

// NewAlertHandler creates the alert handler. Pipelines are consulted only for
// the stats endpoint; a nil archive disables the archive listing.
func NewAlertHandler(alertStore *store.AlertStore, pipelines map[alerts.Source]*detect.Pipeline, archive ArchiveReader, logger zerolog.Logger) *AlertHandler {
	return &AlertHandler{
		store:     alertStore,
		pipelines: pipelines,
		archive:   archive,
		logger:    logger.With().Str("handler", "alerts").Logger(),
	}
}

// Routes returns the alert routes
func (h *AlertHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListAlerts)
	r.Get("/archive", h.ListArchived)

	return r
}

// AlertListResponse represents the response for listing alerts. Total counts
// every match; Alerts carries at most Limit of them.
type AlertListResponse struct {
	Alerts        []alerts.Alert `json:"alerts"`
	Total         int            `json:"total"`
	Limit         int            `json:"limit"`
	CorrelationID string         `json:"correlation_id"`
}

// ListAlerts handles GET /api/v1/alerts. Without a since parameter the
// newest alerts come first; with one, matches are returned oldest first.
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	limit := defaultAlertLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer", correlationID)
			return
		}
		limit = l
	}

	var listed []alerts.Alert
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp", correlationID)
			return
		}
		listed = h.store.Since(since)
	} else {
		listed = h.store.Recent(0)
	}

	if sourceStr := r.URL.Query().Get("source"); sourceStr != "" {
		listed = filterAlerts(listed, func(a alerts.Alert) bool {
			return string(a.Source) == sourceStr
		})
	}
	if severityStr := r.URL.Query().Get("severity"); severityStr != "" {
		minSeverity, err := alerts.ParseSeverity(severityStr)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "severity must be info, warning or critical", correlationID)
			return
		}
		listed = filterAlerts(listed, func(a alerts.Alert) bool {
			return a.Severity >= minSeverity
		})
	}
	if categoryStr := r.URL.Query().Get("category"); categoryStr != "" {
		listed = filterAlerts(listed, func(a alerts.Alert) bool {
			return string(a.Category) == categoryStr
		})
	}

	total := len(listed)
	if len(listed) > limit {
		listed = listed[:limit]
	}

	WriteJSON(w, http.StatusOK, AlertListResponse{
		Alerts:        listed,
		Total:         total,
		Limit:         limit,
		CorrelationID: correlationID,
	})
}

// ListArchived handles GET /api/v1/alerts/archive, reading from the durable
// archive instead of the in-memory store. Returns 404 when archiving is off.
func (h *AlertHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	if h.archive == nil {
		WriteError(w, http.StatusNotFound, "alert archive is not enabled", correlationID)
		return
	}

	limit := defaultAlertLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer", correlationID)
			return
		}
		limit = l
	}

	archived, err := h.archive.RecentAlerts(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("archive read failed")
		WriteError(w, http.StatusInternalServerError, "archive read failed", correlationID)
		return
	}

	WriteJSON(w, http.StatusOK, AlertListResponse{
		Alerts:        archived,
		Total:         len(archived),
		Limit:         limit,
		CorrelationID: correlationID,
	})
}

func filterAlerts(in []alerts.Alert, keep func(alerts.Alert) bool) []alerts.Alert {
	out := in[:0:0]
	for _, a := range in {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// StatsResponse summarizes pipeline activity per source
type StatsResponse struct {
	Sources       map[string]SourceStats `json:"sources"`
	StoredAlerts  int                    `json:"stored_alerts"`
	CorrelationID string                 `json:"correlation_id"`
}

// SourceStats is one source's dedup counters
type SourceStats struct {
	Dedup dedup.Stats `json:"dedup"`
}

// Stats handles GET /api/v1/stats
func (h *AlertHandler) Stats(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	response := StatsResponse{
		Sources:       make(map[string]SourceStats, len(h.pipelines)),
		StoredAlerts:  h.store.Len(),
		CorrelationID: correlationID,
	}
	for source, pipeline := range h.pipelines {
		response.Sources[string(source)] = SourceStats{Dedup: pipeline.DedupStats()}
	}

	WriteJSON(w, http.StatusOK, response)
}
