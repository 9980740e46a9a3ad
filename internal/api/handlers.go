package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/lox/aqiserve/internal/features"
	"github.com/lox/aqiserve/internal/model"
)

type messageResponse struct {
	Message string `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type predictResponse struct {
	AQIPrediction float64 `json:"AQI_prediction"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: homeMessage})
}

// handleHealth reports liveness only; it does not look at the model.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	v, err := features.Decode(r.Body)
	if err != nil {
		s.predictError(w, err)
		return
	}
	row, err := s.predictor.Schema().Frame(v)
	if err != nil {
		s.predictError(w, err)
		return
	}
	if flags := features.QualityFlags(v); len(flags) > 0 {
		s.metrics.ObserveQualityFlags(flags)
		s.logger.Warn("implausible_input", "flags", flags)
	}

	value, err := s.predictor.Predict(row)
	if err == nil && (math.IsNaN(value) || math.IsInf(value, 0)) {
		err = fmt.Errorf("%w: non-finite output %v", model.ErrPredict, value)
	}
	if err != nil {
		s.predictError(w, err)
		return
	}

	took := time.Since(start)
	category := s.metrics.ObservePrediction(value, took)
	s.logger.Debug("prediction",
		"aqi", value,
		"category", category,
		"duration_ms", float64(took.Microseconds())/1000,
	)
	writeJSON(w, http.StatusOK, predictResponse{AQIPrediction: value})
}

func (s *Server) predictError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	setOutcome(w, status)
	if status >= http.StatusInternalServerError {
		s.logger.Error("prediction_failed", "status", status, "error", err)
	} else {
		s.logger.Warn("prediction_rejected", "status", status, "error", err)
	}

	if s.legacyErrors {
		status = http.StatusOK
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func errorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	var invalid *features.InvalidInputError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, features.ErrMalformedBody):
		return http.StatusBadRequest
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
