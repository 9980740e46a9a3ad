package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lox/aqiserve/internal/metrics"
	"github.com/lox/aqiserve/internal/model"
)

const (
	homeMessage  = "Air Quality Prediction API is running!"
	maxBodyBytes = 1 << 20
)

type Config struct {
	Addr string
	// LegacyErrorStatus answers failed predictions with HTTP 200 and an
	// {"error": ...} body, matching the status codes older clients expect.
	LegacyErrorStatus bool
	Logger            *slog.Logger
}

type Server struct {
	predictor    model.Predictor
	metrics      *metrics.Metrics
	addr         string
	legacyErrors bool
	logger       *slog.Logger
}

func NewServer(predictor model.Predictor, m *metrics.Metrics, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8000"
	}
	return &Server{
		predictor:    predictor,
		metrics:      m,
		addr:         addr,
		legacyErrors: cfg.LegacyErrorStatus,
		logger:       logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", s.instrument("/", s.handleHome))
	mux.Handle("GET /health", s.instrument("/health", s.handleHealth))
	mux.Handle("POST /predict", s.instrument("/predict", s.handlePredict))
	mux.Handle("GET /metrics", s.instrument("/metrics", s.metrics.Handler().ServeHTTP))
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http_shutdown_failed", "error", err)
		}
	}()

	s.logger.Info("http_server_start", "addr", s.addr, "legacy_error_status", s.legacyErrors)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
