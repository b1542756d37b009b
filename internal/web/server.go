// Package web serves the operator surface of the dashboard: the rendered
// page, a JSON state endpoint, the form and pagination actions, and a
// cached proxy for recordings.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/gatewaydash/internal/api"
	"github.com/tejusbharadwaj/gatewaydash/internal/dashboard"
	"github.com/tejusbharadwaj/gatewaydash/internal/metrics"
	middleware "github.com/tejusbharadwaj/gatewaydash/internal/web/middlewares"
)

//go:embed templates/*.html
var templateFS embed.FS

// RecordingFetcher downloads recordings from the gateway.
type RecordingFetcher interface {
	FetchRecording(ctx context.Context, recordingPath string) (*api.Recording, error)
}

// Config tunes the HTTP surface.
type Config struct {
	RateLimit      float64
	RateLimitBurst int
	CacheSize      int
}

// Server is the operator HTTP handler.
type Server struct {
	dash       *dashboard.Dashboard
	recordings RecordingFetcher
	gatherer   prometheus.Gatherer
	logger     *logrus.Logger
	page       *template.Template
	handler    http.Handler
}

// NewServer builds the router. gatherer backs /metrics and may be nil.
func NewServer(d *dashboard.Dashboard, recordings RecordingFetcher, cfg Config, logger *logrus.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) (*Server, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	page, err := template.New("dashboard.html").Funcs(template.FuncMap{
		"stamp":       func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"placeholder": func() string { return dashboard.RecordingPlaceholder },
	}).ParseFS(templateFS, "templates/dashboard.html")
	if err != nil {
		return nil, err
	}

	cache, err := middleware.NewResponseCache(cfg.CacheSize, m)
	if err != nil {
		return nil, err
	}

	s := &Server{
		dash:       d,
		recordings: recordings,
		gatherer:   gatherer,
		logger:     logger,
		page:       page,
	}

	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Logging(logger), middleware.Metrics(m))

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	app := r.NewRoute().Subrouter()
	app.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateLimitBurst))
	app.HandleFunc("/", s.render("index")).Methods(http.MethodGet)
	app.HandleFunc("/panels", s.render("panels")).Methods(http.MethodGet)
	app.HandleFunc("/api/state", s.state).Methods(http.MethodGet)
	app.HandleFunc("/sensors", s.submitSensor).Methods(http.MethodPost)
	app.HandleFunc("/analysis", s.analysisPage).Methods(http.MethodGet)
	app.HandleFunc("/analysis/{action:next|prev|reload}", s.analysisAction).Methods(http.MethodPost)

	rec := app.PathPrefix("/recordings").Subrouter()
	rec.Use(cache.Middleware)
	rec.HandleFunc("/{path:.*}", s.recording).Methods(http.MethodGet)

	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(logger),
		handlers.PrintRecoveryStack(false),
	)(r)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
