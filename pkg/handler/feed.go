package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/helios-defense/skywatch/pkg/feeds"
	"github.com/helios-defense/skywatch/pkg/store"
)

const defaultFeedLimit = 200

// FeedHandler serves the raw feed read API
type FeedHandler struct {
	store  *store.FeedStore
	logger zerolog.Logger
}

// NewFeedHandler creates the feed handler
func NewFeedHandler(feedStore *store.FeedStore, logger zerolog.Logger) *FeedHandler {
	return &FeedHandler{
		store:  feedStore,
		logger: logger.With().Str("handler", "feed").Logger(),
	}
}

// Routes returns the feed routes
func (h *FeedHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListRecords)

	return r
}

// FeedListResponse represents the response for listing feed records
type FeedListResponse struct {
	Records       []feeds.Record `json:"records"`
	Total         int            `json:"total"`
	Limit         int            `json:"limit"`
	CorrelationID string         `json:"correlation_id"`
}

// ListRecords handles GET /api/v1/feed, newest records first
func (h *FeedHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	limit := defaultFeedLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer", correlationID)
			return
		}
		limit = l
	}

	records := h.store.Recent(limit)

	if kindStr := r.URL.Query().Get("kind"); kindStr != "" {
		kind := feeds.RecordKind(kindStr)
		if kind != feeds.RecordTelemetry && kind != feeds.RecordWeather {
			WriteError(w, http.StatusBadRequest, "kind must be telemetry or weather", correlationID)
			return
		}
		filtered := records[:0:0]
		for _, rec := range records {
			if rec.Kind == kind {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	WriteJSON(w, http.StatusOK, FeedListResponse{
		Records:       records,
		Total:         len(records),
		Limit:         limit,
		CorrelationID: correlationID,
	})
}
