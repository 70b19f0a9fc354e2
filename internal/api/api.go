// Package api exposes the telemetry queries over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kamilpajak/testpulse/internal/cluster"
	"github.com/kamilpajak/testpulse/internal/config"
	"github.com/kamilpajak/testpulse/internal/flaky"
	"github.com/kamilpajak/testpulse/internal/history"
	"github.com/kamilpajak/testpulse/internal/ingest"
	"github.com/kamilpajak/testpulse/internal/logging"
	"github.com/kamilpajak/testpulse/internal/notify"
	"github.com/kamilpajak/testpulse/internal/store"
	"github.com/kamilpajak/testpulse/internal/triage"
)

// maxBodyBytes caps uploaded record batches and reports.
const maxBodyBytes = 32 << 20

// Server is the API server.
type Server struct {
	store    *store.Store
	loader   *ingest.Loader
	hub      *notify.Hub
	cluster  *cluster.Clusterer
	flaky    *flaky.Analyzer
	history  *history.Aggregator
	triage   *triage.Comparator
	defaults config.AnalysisConfig
	limiter  *rate.Limiter
	log      logrus.FieldLogger
	mux      *http.ServeMux
}

// Config holds API server configuration.
type Config struct {
	Store *store.Store
	// Loader commits uploaded batches; one writing to Store is created when nil.
	Loader *ingest.Loader
	// Hub backs /api/events; the endpoint returns 503 when nil.
	Hub      *notify.Hub
	Analysis config.AnalysisConfig
	// RateLimit is requests per second across /api; 0 disables limiting.
	RateLimit float64
	RateBurst int
	Logger    logrus.FieldLogger
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:    cfg.Store,
		loader:   cfg.Loader,
		hub:      cfg.Hub,
		cluster:  cluster.New(cfg.Analysis.Clustering),
		flaky:    flaky.New(),
		history:  history.New(cfg.Store),
		triage:   triage.New(cfg.Store),
		defaults: cfg.Analysis,
		log:      cfg.Logger,
		mux:      http.NewServeMux(),
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.loader == nil {
		opts := []ingest.LoaderOption{ingest.WithLogger(s.log)}
		if cfg.Hub != nil {
			opts = append(opts, ingest.WithEmitter(cfg.Hub))
		}
		s.loader = ingest.NewLoader(cfg.Store, opts...)
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/dimensions", s.handleDimensions)
	s.mux.HandleFunc("POST /api/records", s.handleUpsertRecords)
	s.mux.HandleFunc("POST /api/ingest/junit", s.handleIngestJUnit)

	s.mux.HandleFunc("GET /api/failures/groups", s.handleFailureGroups)
	s.mux.HandleFunc("GET /api/flaky", s.handleFlaky)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/triage", s.handleTriage)

	s.mux.HandleFunc("GET /api/events", s.handleEvents)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Add CORS headers
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if s.limiter != nil && strings.HasPrefix(r.URL.Path, "/api/") && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "records": s.store.TotalCount()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
