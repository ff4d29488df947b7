// Package api exposes the calibration service and container health checks over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/clever-calibrator/internal/calibration"
	"github.com/yourusername/clever-calibrator/internal/metrics"
	"github.com/yourusername/clever-calibrator/internal/models"
	"github.com/yourusername/clever-calibrator/internal/service"
	"github.com/yourusername/clever-calibrator/internal/tracing"
)

// Calibrator is the part of the calibration service exposed over HTTP
type Calibrator interface {
	Refresh(ctx context.Context) (*calibration.Snapshot, error)
	Calibrate(sourceID string, rawConfidence float64) calibration.CalibratedResult
	Consensus(predictions []calibration.SourcePrediction) calibration.ConsensusResult
	Summary() calibration.CalibrationSummary
	Sources() []models.SourcePerformance
	SuggestStake(sourceID string, rawConfidence, decimalOdds float64, bankroll decimal.Decimal) service.StakeAdvice
	Uncertainty(sourceID string, rawConfidence float64) service.UncertaintyEstimate
	RecordPredictions(ctx context.Context, records []models.PredictionRecord) ([]uuid.UUID, error)
	SettlePrediction(ctx context.Context, id uuid.UUID, outcome models.Outcome) error
}

// DatabasePinger defines the interface for checking database connectivity.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// Config holds the configuration for the API server.
type Config struct {
	ServiceName    string
	Version        string
	Commit         string
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MetricsEnabled bool
	MetricsPath    string
	Logger         *logrus.Logger
	DB             DatabasePinger
	Calibrator     Calibrator
}

// Server serves the calibration API, health checks and metrics.
type Server struct {
	config   Config
	router   *mux.Router
	server   *http.Server
	logger   *logrus.Entry
	validate *validator.Validate
	mu       sync.RWMutex
	ready    bool
}

// NewServer creates a new API server with all routes registered.
func NewServer(cfg Config) *Server {
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	s := &Server{
		config:   cfg,
		logger:   cfg.Logger.WithField("component", "api"),
		validate: validator.New(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/live", s.handleLive).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	if s.config.MetricsEnabled {
		r.Handle(s.config.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/calibrate", s.handleCalibrate).Methods(http.MethodPost)
	v1.HandleFunc("/consensus", s.handleConsensus).Methods(http.MethodPost)
	v1.HandleFunc("/stake", s.handleStake).Methods(http.MethodPost)
	v1.HandleFunc("/uncertainty", s.handleUncertainty).Methods(http.MethodPost)
	v1.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	v1.HandleFunc("/sources", s.handleSources).Methods(http.MethodGet)
	v1.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	v1.HandleFunc("/predictions", s.handleRecordPredictions).Methods(http.MethodPost)
	v1.HandleFunc("/predictions/{id}/settle", s.handleSettle).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	return r
}

// Handler returns the HTTP handler with all routes, traced when X-Ray is enabled
func (s *Server) Handler() http.Handler {
	return tracing.Middleware(s.config.ServiceName, s.router)
}

// SetReady marks the server as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// IsReady returns whether the server is ready.
func (s *Server) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Start starts the server in the background and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.WithFields(logrus.Fields{
			"address": s.config.Address,
			"service": s.config.ServiceName,
		}).Info("API server starting")

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("API server error")
		}
	}()

	go func() {
		<-ctx.Done()
		if err := s.Shutdown(); err != nil {
			s.logger.WithError(err).Warn("API server shutdown error")
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("API server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
