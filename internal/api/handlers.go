package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/yourusername/clever-calibrator/internal/calibration"
	"github.com/yourusername/clever-calibrator/internal/models"
	"github.com/yourusername/clever-calibrator/internal/service"
)

const maxBodyBytes = 1 << 20

// CalibrateRequest asks for one source's raw confidence to be calibrated
type CalibrateRequest struct {
	SourceID   string   `json:"source_id" validate:"required"`
	Confidence *float64 `json:"confidence" validate:"required,gte=0,lte=100"`
}

// ConsensusRequest carries every source's pick for a single match
type ConsensusRequest struct {
	Predictions []calibration.SourcePrediction `json:"predictions" validate:"required,min=1,dive"`
}

// StakeRequest asks for a stake suggestion at the given decimal odds
type StakeRequest struct {
	SourceID   string          `json:"source_id" validate:"required"`
	Confidence *float64        `json:"confidence" validate:"required,gte=0,lte=100"`
	Odds       float64         `json:"odds" validate:"gt=1"`
	Bankroll   decimal.Decimal `json:"bankroll"`
}

// PredictionInput is one prediction to store; outcome defaults to pending
type PredictionInput struct {
	ID          uuid.UUID      `json:"id"`
	SourceID    string         `json:"source_id" validate:"required"`
	MatchID     string         `json:"match_id" validate:"required"`
	League      string         `json:"league"`
	Confidence  *float64       `json:"confidence" validate:"required,gte=0,lte=100"`
	Outcome     models.Outcome `json:"outcome" validate:"omitempty,oneof=pending won lost"`
	PredictedAt time.Time      `json:"predicted_at"`
}

// RecordPredictionsRequest carries a batch of predictions to store
type RecordPredictionsRequest struct {
	Predictions []PredictionInput `json:"predictions" validate:"required,min=1,max=500,dive"`
}

// RecordPredictionsResponse lists the IDs of the stored predictions in request order
type RecordPredictionsResponse struct {
	Recorded int         `json:"recorded"`
	IDs      []uuid.UUID `json:"ids"`
}

// SettleRequest records the final outcome of a prediction
type SettleRequest struct {
	Outcome models.Outcome `json:"outcome" validate:"required,oneof=won lost"`
}

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	var req CalibrateRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.config.Calibrator.Calibrate(req.SourceID, *req.Confidence))
}

func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	var req ConsensusRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.config.Calibrator.Consensus(req.Predictions))
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req StakeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Bankroll.IsNegative() {
		writeError(w, http.StatusBadRequest, "bankroll must not be negative")
		return
	}
	writeJSON(w, http.StatusOK, s.config.Calibrator.SuggestStake(req.SourceID, *req.Confidence, req.Odds, req.Bankroll))
}

func (s *Server) handleUncertainty(w http.ResponseWriter, r *http.Request) {
	var req CalibrateRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.config.Calibrator.Uncertainty(req.SourceID, *req.Confidence))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Calibrator.Summary())
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Calibrator.Sources())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := s.config.Calibrator.Refresh(r.Context()); err != nil {
		s.logger.WithError(err).Warn("Manual refresh failed")
		writeError(w, http.StatusBadGateway, "refresh failed; previous calibration kept")
		return
	}
	writeJSON(w, http.StatusOK, s.config.Calibrator.Summary())
}

func (s *Server) handleRecordPredictions(w http.ResponseWriter, r *http.Request) {
	var req RecordPredictionsRequest
	if !s.decode(w, r, &req) {
		return
	}

	records := make([]models.PredictionRecord, len(req.Predictions))
	for i, p := range req.Predictions {
		records[i] = models.PredictionRecord{
			ID:            p.ID,
			SourceID:      p.SourceID,
			MatchID:       p.MatchID,
			League:        p.League,
			ConfidenceRaw: *p.Confidence,
			Outcome:       p.Outcome,
			PredictedAt:   p.PredictedAt,
		}
	}

	ids, err := s.config.Calibrator.RecordPredictions(r.Context(), records)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, RecordPredictionsResponse{Recorded: len(ids), IDs: ids})
	case errors.Is(err, models.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNoPredictionStore):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		s.logger.WithError(err).Error("Recording predictions failed")
		writeError(w, http.StatusInternalServerError, "recording predictions failed")
	}
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prediction id")
		return
	}

	var req SettleRequest
	if !s.decode(w, r, &req) {
		return
	}

	err = s.config.Calibrator.SettlePrediction(r.Context(), id, req.Outcome)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "prediction not found")
	case errors.Is(err, models.ErrAlreadySettled):
		writeError(w, http.StatusConflict, "prediction already settled")
	case errors.Is(err, models.ErrInvalidOutcome):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNoPredictionStore):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		s.logger.WithError(err).Error("Settlement failed")
		writeError(w, http.StatusInternalServerError, "settlement failed")
	}
}

// decode reads and validates a JSON body, writing a 400 and returning false on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "validation failed",
				Details: formatValidationErrors(validationErrors),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func formatValidationErrors(errs validator.ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		field := strings.ToLower(e.Namespace())
		if e.Param() != "" {
			out = append(out, fmt.Sprintf("%s failed %s=%s", field, e.Tag(), e.Param()))
		} else {
			out = append(out, fmt.Sprintf("%s failed %s", field, e.Tag()))
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
