// Package handlers provides HTTP request handlers for the drug predictor API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/giygas/drug-predictor-api/data"
	"github.com/giygas/drug-predictor-api/inference"
	"github.com/giygas/drug-predictor-api/interfaces"
	"github.com/giygas/drug-predictor-api/logging"
)

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler interface
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	store     interfaces.ArtifactStore
	validator interfaces.RecordValidator
	health    interfaces.HealthChecker
	limits    Limits
}

// Limits are echoed by the schema endpoint and enforced on batch requests
type Limits struct {
	MaxBatchSize       int
	MaxTextFieldLength int
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(store interfaces.ArtifactStore, validator interfaces.RecordValidator,
	health interfaces.HealthChecker, limits Limits) interfaces.HTTPHandler {
	return &HTTPHandlerImpl{
		store:     store,
		validator: validator,
		health:    health,
		limits:    limits,
	}
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	w.Write(data)
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	h.RespondWithJSON(w, code, map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	})
}

// respondWithPredictionError maps pipeline errors to status codes. Dimension
// mismatches point at broken artifacts, so they are logged for operators and the
// client only gets a generic message.
func (h *HTTPHandlerImpl) respondWithPredictionError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		h.RespondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.Is(err, inference.ErrInvalidInput):
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, data.ErrNotReady):
		h.RespondWithError(w, http.StatusServiceUnavailable, "Models are not loaded yet")
	case errors.Is(err, inference.ErrDimensionMismatch):
		logging.Error("Feature dimension mismatch, artifacts are incompatible",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.RespondWithError(w, http.StatusInternalServerError, "Model artifacts are incompatible")
	default:
		logging.Error("Prediction failed",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.RespondWithError(w, http.StatusInternalServerError, "Prediction failed")
	}
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status string         `json:"status"`
	Uptime string         `json:"uptime,omitempty"`
	Data   map[string]any `json:"data"`
}

// HealthCheck returns server health information
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, details, httpStatus := h.health.HealthCheck()

	response := HealthResponse{Status: status, Data: details}
	if start := h.store.GetServerStartTime(); !start.IsZero() {
		response.Uptime = formatUptimeHuman(time.Since(start))
	}

	h.RespondWithJSON(w, httpStatus, response)
}
