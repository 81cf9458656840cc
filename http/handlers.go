package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"scrapml/dataset"
	"scrapml/db"
	"scrapml/ml"
	"scrapml/monitoring"
)

// Handlers carries the request handler dependencies. The model handle is
// reached through the manager, never through package state.
type Handlers struct {
	Manager   *ml.Manager
	Predictor *ml.Predictor
	Hub       *monitoring.Hub
	Logger    *zap.SugaredLogger
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	mux.HandleFunc("POST /api/retrain", h.handleRetrain)
	mux.HandleFunc("GET /api/model", h.handleModel)
	mux.HandleFunc("GET /api/training/history", h.handleTrainingHistory)
	mux.HandleFunc("GET /api/predictions/recent", h.handleRecentPredictions)
	if h.Hub != nil {
		mux.HandleFunc("GET /api/ws/events", h.Hub.HandleWebSocket)
	}
}

// handleHealth reports process liveness only; it stays green regardless of
// model state.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req ml.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.Predictor.Predict(req)
	if err != nil {
		respondError(w, predictStatus(err), err.Error())
		return
	}

	if err := db.SavePrediction(db.PredictionRecord{
		ScrapType:      result.ScrapType,
		SubCategory:    result.SubCategory,
		SubSubCategory: result.SubSubCategory,
		Weight:         result.Weight,
		BasePrice:      result.BasePrice,
		PredictedPrice: result.PredictedPrice,
	}); err != nil {
		h.Logger.Debugw("prediction not recorded", "err", err)
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleRetrain(w http.ResponseWriter, r *http.Request) {
	report, err := h.Manager.Retrain(r.Context())
	if err != nil {
		respondError(w, retrainStatus(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "retrained",
		"report": report,
	})
}

func (h *Handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	pipe := h.Manager.Current()
	if pipe == nil {
		respondError(w, http.StatusServiceUnavailable, "model unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"feature_columns": pipe.FeatureNames(),
		"schema":          pipe.Schema().String(),
		"generation":      h.Manager.Generation(),
		"trained_at":      pipe.TrainedAt,
		"rows":            pipe.RowCount,
		"trees":           len(pipe.Forest.Trees),
	})
}

func (h *Handlers) handleTrainingHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := db.LoadTrainingRuns(parseLimit(r, 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (h *Handlers) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	records, err := db.LoadRecentPredictions(parseLimit(r, 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func predictStatus(err error) int {
	switch {
	case errors.Is(err, ml.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ml.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func retrainStatus(err error) int {
	switch {
	case errors.Is(err, ml.ErrRetrainInProgress):
		return http.StatusConflict
	case errors.Is(err, dataset.ErrMissingCredentials),
		errors.Is(err, dataset.ErrEmptyDataset),
		errors.Is(err, ml.ErrTraining):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseLimit(r *http.Request, def int) int {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return def
	}
	if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
		return l
	}
	return def
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
