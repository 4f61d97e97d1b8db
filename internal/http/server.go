// Package http exposes the service's operational surface: health probes,
// Prometheus metrics, and a small JSON API over the capability dispatcher.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"harmonia/internal/core"
)

// Dispatcher is the capability surface the API forwards to.
type Dispatcher interface {
	LookupArtist(ctx context.Context, id string) (*core.Artist, error)
	LookupAlbum(ctx context.Context, id string) (*core.Album, error)
	SearchArtists(ctx context.Context, query string) ([]core.Artist, error)
	SearchAlbums(ctx context.Context, query string) ([]core.Album, error)
	SearchNewAlbums(ctx context.Context, query string) ([]core.Album, error)
}

// ProviderSettings persists the per-provider enabled flag.
type ProviderSettings interface {
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

// ProviderNotifier reacts to a provider being enabled or disabled.
type ProviderNotifier interface {
	Notify(name string, enabled bool)
}

type Server struct {
	config     *core.ServerConfig
	logger     *zap.Logger
	server     *http.Server
	metrics    *Metrics
	dispatcher Dispatcher
	settings   ProviderSettings
	notifier   ProviderNotifier
}

type Metrics struct {
	registry *prometheus.Registry

	DispatchTotal       *prometheus.CounterVec
	DispatchDuration    *prometheus.HistogramVec
	RoutingChangesTotal *prometheus.CounterVec
	ActiveProviders     prometheus.Gauge
	RegisteredProviders prometheus.Gauge
	OpenBreakers        prometheus.Gauge
}

func newMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harmonia_dispatch_total",
				Help: "Total number of capability dispatches",
			},
			[]string{"contract", "provider", "status"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harmonia_dispatch_duration_seconds",
				Help:    "Time spent in provider calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"contract"},
		),
		RoutingChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harmonia_routing_changes_total",
				Help: "Total number of active-provider changes",
			},
			[]string{"contract"},
		),
		ActiveProviders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harmonia_active_providers",
				Help: "Number of contracts with an active provider",
			},
		),
		RegisteredProviders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harmonia_registered_providers",
				Help: "Number of registered providers",
			},
		),
		OpenBreakers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harmonia_open_breakers",
				Help: "Number of currently open circuit breakers",
			},
		),
	}

	metrics.registry.MustRegister(
		metrics.DispatchTotal,
		metrics.DispatchDuration,
		metrics.RoutingChangesTotal,
		metrics.ActiveProviders,
		metrics.RegisteredProviders,
		metrics.OpenBreakers,
	)

	return metrics
}

func NewServer(config *core.ServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		config:  config,
		logger:  logger,
		metrics: newMetrics(),
	}

	s.server = createHTTPServer(config, s.setupRoutes())

	return s
}

// SetDispatcher wires the capability dispatcher after construction. The
// server doubles as the dispatcher's metrics recorder, so the two cannot be
// built in one shot.
func (s *Server) SetDispatcher(dispatcher Dispatcher) {
	s.dispatcher = dispatcher
}

// SetProviderAdmin wires the enable/disable surface: settings persists the
// flag, notifier tells the router to react.
func (s *Server) SetProviderAdmin(settings ProviderSettings, notifier ProviderNotifier) {
	s.settings = settings
	s.notifier = notifier
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"harmonia"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"harmonia"}`))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/api/providers", s.providersHandler)
	mux.HandleFunc("/api/artist", s.artistHandler)
	mux.HandleFunc("/api/album", s.albumHandler)
	mux.HandleFunc("/api/search/artists", s.searchArtistsHandler)
	mux.HandleFunc("/api/search/albums", s.searchAlbumsHandler)

	mux.HandleFunc("/", homeHandler)

	return mux
}

func createHTTPServer(config *core.ServerConfig, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func homeHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Harmonia</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">🎶 Harmonia</h1>
    <p>Provider-routed music metadata service</p>

    <h2>Endpoints</h2>
    <div class="endpoint">📊 <a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint">💚 <a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint">✅ <a href="/readyz">Ready</a> - Readiness check</div>
    <div class="endpoint">🔍 /api/search/albums?q= - Album search</div>
    <div class="endpoint">🔍 /api/search/artists?q= - Artist search</div>
</body>
</html>`))
}

// providersHandler toggles a provider: the flag is persisted first, then the
// router is notified so routing reacts in the same request.
func (s *Server) providersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, `{"error":"missing name parameter"}`, http.StatusBadRequest)
		return
	}
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		http.Error(w, `{"error":"invalid enabled parameter"}`, http.StatusBadRequest)
		return
	}

	if s.settings == nil || s.notifier == nil {
		http.Error(w, `{"error":"service not ready"}`, http.StatusServiceUnavailable)
		return
	}

	if err := s.settings.SetEnabled(r.Context(), name, enabled); err != nil {
		s.logger.Error("Failed to persist provider setting",
			zap.String("provider", name),
			zap.Error(err))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	s.notifier.Notify(name, enabled)

	s.writeJSON(w, map[string]interface{}{"provider": name, "enabled": enabled})
}

func (s *Server) artistHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, `{"error":"missing id parameter"}`, http.StatusBadRequest)
		return
	}

	d, ok := s.dispatch()
	if !ok {
		http.Error(w, `{"error":"service not ready"}`, http.StatusServiceUnavailable)
		return
	}

	artist, err := d.LookupArtist(r.Context(), id)
	if err != nil {
		s.writeDispatchError(w, "artist lookup", err)
		return
	}

	s.writeJSON(w, artist)
}

func (s *Server) albumHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, `{"error":"missing id parameter"}`, http.StatusBadRequest)
		return
	}

	d, ok := s.dispatch()
	if !ok {
		http.Error(w, `{"error":"service not ready"}`, http.StatusServiceUnavailable)
		return
	}

	album, err := d.LookupAlbum(r.Context(), id)
	if err != nil {
		s.writeDispatchError(w, "album lookup", err)
		return
	}

	s.writeJSON(w, album)
}

func (s *Server) searchArtistsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, `{"error":"missing q parameter"}`, http.StatusBadRequest)
		return
	}

	d, ok := s.dispatch()
	if !ok {
		http.Error(w, `{"error":"service not ready"}`, http.StatusServiceUnavailable)
		return
	}

	artists, err := d.SearchArtists(r.Context(), query)
	if err != nil {
		s.writeDispatchError(w, "artist search", err)
		return
	}

	s.writeJSON(w, artists)
}

func (s *Server) searchAlbumsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, `{"error":"missing q parameter"}`, http.StatusBadRequest)
		return
	}

	d, ok := s.dispatch()
	if !ok {
		http.Error(w, `{"error":"service not ready"}`, http.StatusServiceUnavailable)
		return
	}

	var albums []core.Album
	var err error
	if r.URL.Query().Get("new") == "true" {
		albums, err = d.SearchNewAlbums(r.Context(), query)
	} else {
		albums, err = d.SearchAlbums(r.Context(), query)
	}
	if err != nil {
		s.writeDispatchError(w, "album search", err)
		return
	}

	s.writeJSON(w, albums)
}

// dispatch guards against requests arriving before wiring completes.
func (s *Server) dispatch() (Dispatcher, bool) {
	return s.dispatcher, s.dispatcher != nil
}

// writeDispatchError maps a missing provider to 503: the capability is not
// currently installed, which is not a client error and not a crash.
func (s *Server) writeDispatchError(w http.ResponseWriter, operation string, err error) {
	if errors.Is(err, core.ErrNoProvider) {
		http.Error(w, `{"error":"no provider available"}`, http.StatusServiceUnavailable)
		return
	}

	s.logger.Error("API request failed",
		zap.String("operation", operation),
		zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

// RecordDispatch and ObserveDispatch satisfy the dispatcher's telemetry
// interface.
func (s *Server) RecordDispatch(contract, provider, status string) {
	s.metrics.DispatchTotal.WithLabelValues(contract, provider, status).Inc()
}

func (s *Server) ObserveDispatch(contract string, duration time.Duration) {
	s.metrics.DispatchDuration.WithLabelValues(contract).Observe(duration.Seconds())
}

func (s *Server) RecordRoutingChange(contract string) {
	s.metrics.RoutingChangesTotal.WithLabelValues(contract).Inc()
}

func (s *Server) SetActiveProviders(count int) {
	s.metrics.ActiveProviders.Set(float64(count))
}

func (s *Server) SetRegisteredProviders(count int) {
	s.metrics.RegisteredProviders.Set(float64(count))
}

func (s *Server) SetOpenBreakers(count int) {
	s.metrics.OpenBreakers.Set(float64(count))
}
