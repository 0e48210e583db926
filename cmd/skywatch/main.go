// Package main provides the skywatch alert fusion service
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/helios-defense/skywatch/pkg/alertbus"
	"github.com/helios-defense/skywatch/pkg/alerts"
	"github.com/helios-defense/skywatch/pkg/detect"
	"github.com/helios-defense/skywatch/pkg/donki"
	"github.com/helios-defense/skywatch/pkg/handler"
	"github.com/helios-defense/skywatch/pkg/policy"
	"github.com/helios-defense/skywatch/pkg/postgres"
	"github.com/helios-defense/skywatch/pkg/simfeed"
	"github.com/helios-defense/skywatch/pkg/store"
)

// Config holds the service configuration outside the threshold policy
type Config struct {
	// Server settings
	HTTPAddr string
	HTTPPort int

	// External services; both optional
	NATSUrl     string
	PostgresURL string

	// Feeds
	DonkiBaseURL string
	DonkiAPIKey  string
	SimEntityID  string

	// Snapshots
	DataDir          string
	SnapshotInterval time.Duration

	// CORS settings
	CORSOrigins []string

	// Logging
	LogLevel string
	LogJSON  bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		HTTPAddr:         "0.0.0.0",
		HTTPPort:         8080,
		NATSUrl:          os.Getenv("NATS_URL"),
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		DonkiBaseURL:     getEnv("DONKI_BASE_URL", donki.DefaultBaseURL),
		DonkiAPIKey:      getEnv("DONKI_API_KEY", "DEMO_KEY"),
		SimEntityID:      getEnv("SIM_ENTITY_ID", "rx-beirut-1"),
		DataDir:          getEnv("DATA_DIR", "data"),
		SnapshotInterval: 5 * time.Second,
		CORSOrigins:      strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"), ","),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogJSON:          getEnv("LOG_JSON", "false") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Prometheus metrics
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skywatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	wsConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skywatch_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(wsConnectionsActive)
}

func main() {
	cfg := DefaultConfig()
	setupLogging(cfg)

	pol, err := policy.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid threshold policy")
	}

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Float64("speed_gate_kmh", pol.SpeedGateKmh).
		Dur("dedup_window", pol.DedupWindow).
		Str("donki_url", cfg.DonkiBaseURL).
		Msg("Starting skywatch")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Optional collaborators; absence degrades, never aborts
	bus := connectBus(ctx, cfg)
	archive := connectArchive(ctx, cfg)
	defer func() {
		if bus != nil {
			bus.Close()
		}
		if archive != nil {
			archive.Close()
		}
	}()

	// Stores and live stream
	alertStore := store.NewAlertStore(pol.MaxAlerts)
	feedStore := store.NewFeedStore(pol.MaxFeedItems)
	wsHub := handler.NewWebSocketHub(log.Logger)
	snapshotter := store.NewSnapshotter(alertStore, feedStore, cfg.DataDir, cfg.SnapshotInterval, log.Logger)

	// Pipelines, one per producer
	pipelineMetrics := detect.NewMetrics(prometheus.DefaultRegisterer)
	pipelineOpts := []detect.PipelineOption{detect.WithBroadcaster(wsHub)}
	if bus != nil {
		pipelineOpts = append(pipelineOpts, detect.WithPublisher(bus))
	}
	if archive != nil {
		pipelineOpts = append(pipelineOpts, detect.WithArchiver(archive))
	}
	simPipeline := detect.NewPipeline(alerts.SourceSim, pol.DedupWindow, alertStore, pipelineMetrics, log.Logger, pipelineOpts...)
	donkiPipeline := detect.NewPipeline(alerts.SourceDonki, pol.DedupWindow, alertStore, pipelineMetrics, log.Logger, pipelineOpts...)

	// Detectors
	simulator := simfeed.New(cfg.SimEntityID)
	gpsDetector := detect.NewGPSDetector(pol, simPipeline, simulator, feedStore, log.Logger)

	donkiClient := donki.NewClient(cfg.DonkiBaseURL, cfg.DonkiAPIKey, log.Logger)
	weatherFeed := donki.NewFeed(donkiClient, donki.NewFallback(), log.Logger)
	weatherDetector := detect.NewWeatherDetector(pol, donkiPipeline, weatherFeed, feedStore, log.Logger)

	pipelines := map[alerts.Source]*detect.Pipeline{
		alerts.SourceSim:   simPipeline,
		alerts.SourceDonki: donkiPipeline,
	}
	router := setupRouter(cfg, alertStore, feedStore, pipelines, archive, wsHub)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTPAddr, cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		return gpsDetector.Run(gCtx)
	})

	g.Go(func() error {
		return weatherDetector.Run(gCtx)
	})

	g.Go(func() error {
		return snapshotter.Run(gCtx)
	})

	// Update WebSocket connection gauge periodically
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				wsConnectionsActive.Set(float64(wsHub.ClientCount()))
			}
		}
	})

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Shutting down HTTP server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
	}

	log.Info().Msg("skywatch shutdown complete")
}

func setupLogging(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
}

// connectBus connects the optional NATS alert bus
func connectBus(ctx context.Context, cfg Config) *alertbus.Publisher {
	if cfg.NATSUrl == "" {
		log.Info().Msg("NATS_URL not set, alerts stay in-process")
		return nil
	}

	bus, err := alertbus.Connect(ctx, cfg.NATSUrl, "skywatch", log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without alert bus")
		return nil
	}
	return bus
}

// connectArchive connects the optional Postgres alert archive
func connectArchive(ctx context.Context, cfg Config) *postgres.Archive {
	if cfg.PostgresURL == "" {
		log.Info().Msg("POSTGRES_URL not set, alerts are not archived")
		return nil
	}

	archive, err := postgres.NewArchiveFromURL(ctx, cfg.PostgresURL)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to PostgreSQL, continuing without archive")
		return nil
	}
	if err := archive.EnsureSchema(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure archive schema, continuing without archive")
		archive.Close()
		return nil
	}
	log.Info().Msg("Connected to PostgreSQL archive")
	return archive
}

func setupRouter(cfg Config, alertStore *store.AlertStore, feedStore *store.FeedStore, pipelines map[alerts.Source]*detect.Pipeline, archive *postgres.Archive, wsHub *handler.WebSocketHub) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(handler.CorrelationID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(prometheusMiddleware)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Correlation-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", healthHandler(archive, wsHub))

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint
	wsOrigins := make([]string, 0, len(cfg.CORSOrigins))
	for _, origin := range cfg.CORSOrigins {
		wsOrigins = append(wsOrigins, strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://"))
	}
	r.Handle("/ws", handler.NewWebSocketHandler(wsHub, wsOrigins, log.Logger))

	// A nil *postgres.Archive must not become a non-nil interface
	var archiveReader handler.ArchiveReader
	if archive != nil {
		archiveReader = archive
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		alertHandler := handler.NewAlertHandler(alertStore, pipelines, archiveReader, log.Logger)
		r.Mount("/alerts", alertHandler.Routes())
		r.Get("/stats", alertHandler.Stats)

		feedHandler := handler.NewFeedHandler(feedStore, log.Logger)
		r.Mount("/feed", feedHandler.Routes())
	})

	return r
}

// requestLogger logs each HTTP request
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		correlationID := handler.GetCorrelationID(r.Context())

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Str("correlation_id", correlationID).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// prometheusMiddleware records HTTP metrics
func prometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, fmt.Sprintf("%d", ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
	})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	Components    map[string]string `json:"components"`
	CorrelationID string            `json:"correlation_id"`
}

var startTime = time.Now()

func healthHandler(archive *postgres.Archive, wsHub *handler.WebSocketHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		correlationID := handler.GetCorrelationID(ctx)

		response := HealthResponse{
			Status:        "healthy",
			Version:       "1.0.0",
			Uptime:        time.Since(startTime).Round(time.Second).String(),
			Components:    make(map[string]string),
			CorrelationID: correlationID,
		}

		if archive != nil {
			if err := archive.Health(ctx); err != nil {
				response.Components["postgres"] = "unhealthy: " + err.Error()
				response.Status = "degraded"
			} else {
				response.Components["postgres"] = "healthy"
			}
		} else {
			response.Components["postgres"] = "disabled"
		}
		response.Components["websocket_clients"] = fmt.Sprintf("%d", wsHub.ClientCount())

		handler.WriteJSON(w, http.StatusOK, response)
	}
}
