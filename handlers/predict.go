package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/giygas/drug-predictor-api/batch"
	"github.com/giygas/drug-predictor-api/inference"
	"github.com/giygas/drug-predictor-api/logging"
	"github.com/giygas/drug-predictor-api/metrics"
)

const (
	endpointPredict = "predict"
	endpointBatch   = "batch"
)

// predictRequest is the JSON body of a prediction. Activity is a pointer so an absent
// value can take the default instead of 0.
type predictRequest struct {
	DrugName                    string   `json:"drug_name"`
	GenericName                 string   `json:"generic_name"`
	BrandNames                  string   `json:"brand_names"`
	DrugClasses                 string   `json:"drug_classes"`
	RelatedDrugs                string   `json:"related_drugs"`
	SideEffects                 string   `json:"side_effects"`
	MedicalCondition            string   `json:"medical_condition"`
	MedicalConditionDescription string   `json:"medical_condition_description"`
	Activity                    *float64 `json:"activity"`
}

func (p predictRequest) record() inference.DrugRecord {
	activity := inference.DefaultActivity
	if p.Activity != nil {
		activity = *p.Activity
	}
	return inference.DrugRecord{
		DrugName:                    p.DrugName,
		GenericName:                 p.GenericName,
		BrandNames:                  p.BrandNames,
		DrugClasses:                 p.DrugClasses,
		RelatedDrugs:                p.RelatedDrugs,
		SideEffects:                 p.SideEffects,
		MedicalCondition:            p.MedicalCondition,
		MedicalConditionDescription: p.MedicalConditionDescription,
		Activity:                    activity,
	}
}

// PredictResponse is returned by POST /v1/predict
type PredictResponse struct {
	PredictionID        string                   `json:"prediction_id"`
	EffectivenessRating float64                  `json:"effectiveness_rating"`
	SideEffectRisk      bool                     `json:"side_effect_risk"`
	Tier                inference.Tier           `json:"tier"`
	Interpretation      inference.Interpretation `json:"interpretation"`
	ModelVersion        string                   `json:"model_version"`
}

// BatchResult is one row of a batch response. Prediction fields are omitted for
// rows that failed.
type BatchResult struct {
	Index               int            `json:"index"`
	Line                int            `json:"line,omitempty"`
	EffectivenessRating *float64       `json:"effectiveness_rating,omitempty"`
	SideEffectRisk      *bool          `json:"side_effect_risk,omitempty"`
	Tier                inference.Tier `json:"tier,omitempty"`
	Error               string         `json:"error,omitempty"`
}

// BatchSummary counts the rows of a batch response
type BatchSummary struct {
	batch.Summary
	DurationMs int64 `json:"duration_ms"`
}

// BatchResponse is returned by POST /v1/predict/batch
type BatchResponse struct {
	BatchID      string        `json:"batch_id"`
	ModelVersion string        `json:"model_version"`
	Results      []BatchResult `json:"results"`
	Summary      BatchSummary  `json:"summary"`
}

// decodeJSON decodes exactly one JSON value, rejecting unknown fields
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return &inference.InvalidInputError{Field: "body", Reason: "request body is empty"}
		}
		return &inference.InvalidInputError{Field: "body", Reason: err.Error()}
	}
	if dec.More() {
		return &inference.InvalidInputError{Field: "body", Reason: "unexpected data after JSON value"}
	}
	return nil
}

// Predict scores a single drug record
func (h *HTTPHandlerImpl) Predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		metrics.ObserveFailure(endpointPredict, metrics.OutcomeInvalid)
		h.respondWithPredictionError(w, r, err)
		return
	}

	record := req.record()
	if err := h.validator.ValidateRecord(record); err != nil {
		metrics.ObserveFailure(endpointPredict, metrics.OutcomeInvalid)
		h.respondWithPredictionError(w, r, err)
		return
	}

	snap, err := h.store.Current()
	if err != nil {
		metrics.ObserveFailure(endpointPredict, metrics.OutcomeError)
		h.respondWithPredictionError(w, r, err)
		return
	}

	start := time.Now()
	result, err := snap.Pipeline.Predict(record)
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, inference.ErrInvalidInput) {
			outcome = metrics.OutcomeInvalid
		}
		metrics.ObserveFailure(endpointPredict, outcome)
		h.respondWithPredictionError(w, r, err)
		return
	}
	metrics.ObservePrediction(endpointPredict, result.EffectivenessRating, result.SideEffectRisk, time.Since(start))

	interpretation := inference.Interpret(result)
	response := PredictResponse{
		PredictionID:        uuid.NewString(),
		EffectivenessRating: result.EffectivenessRating,
		SideEffectRisk:      result.SideEffectRisk,
		Tier:                interpretation.Tier,
		Interpretation:      interpretation,
		ModelVersion:        snap.Bundle.Version,
	}

	logging.Debug("Prediction served",
		"request_id", middleware.GetReqID(r.Context()),
		"prediction_id", response.PredictionID,
		"rating", result.EffectivenessRating,
		"side_effect_risk", result.SideEffectRisk,
	)

	h.RespondWithJSON(w, http.StatusOK, response)
}

// PredictBatch scores a JSON array of records or a CSV upload. Invalid rows are reported
// per row; an incompatible model fails the whole request. A CSV upload sent with
// "Accept: text/csv" is answered with the input columns plus the prediction columns.
func (h *HTTPHandlerImpl) PredictBatch(w http.ResponseWriter, r *http.Request) {
	if isCSV(r.Header.Get("Content-Type")) {
		if acceptsCSV(r.Header.Get("Accept")) {
			h.batchCSVToCSV(w, r)
			return
		}
		h.batchCSVToJSON(w, r)
		return
	}

	var reqs []predictRequest
	if err := decodeJSON(r.Body, &reqs); err != nil {
		h.respondWithPredictionError(w, r, err)
		return
	}
	if err := h.validator.ValidateBatchSize(len(reqs)); err != nil {
		h.respondWithPredictionError(w, r, err)
		return
	}

	rows := make([]batch.Row, len(reqs))
	for i, req := range reqs {
		rows[i] = batch.Row{Record: req.record()}
	}
	h.scoreRows(w, r, rows)
}

func (h *HTTPHandlerImpl) batchCSVToJSON(w http.ResponseWriter, r *http.Request) {
	reader, err := batch.NewReader(r.Body)
	if err != nil {
		h.respondWithPredictionError(w, r, err)
		return
	}

	var rows []batch.Row
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.respondWithPredictionError(w, r, err)
			return
		}
		rows = append(rows, row)
		if h.limits.MaxBatchSize > 0 && len(rows) > h.limits.MaxBatchSize {
			break
		}
	}
	if err := h.validator.ValidateBatchSize(len(rows)); err != nil {
		h.respondWithPredictionError(w, r, err)
		return
	}

	h.scoreRows(w, r, rows)
}

func (h *HTTPHandlerImpl) scoreRows(w http.ResponseWriter, r *http.Request, rows []batch.Row) {
	snap, err := h.store.Current()
	if err != nil {
		h.respondWithPredictionError(w, r, err)
		return
	}

	start := time.Now()
	response := BatchResponse{
		BatchID:      uuid.NewString(),
		ModelVersion: snap.Bundle.Version,
		Results:      make([]BatchResult, 0, len(rows)),
	}

	for i, row := range rows {
		rowStart := time.Now()
		result, rowErr, fatal := batch.ScoreRow(snap.Pipeline, h.validator, row)
		if fatal != nil {
			metrics.ObserveFailure(endpointBatch, metrics.OutcomeError)
			h.respondWithPredictionError(w, r, fmt.Errorf("row %d: %w", i, fatal))
			return
		}

		item := BatchResult{Index: i, Line: row.Line}
		if rowErr != nil {
			metrics.ObserveFailure(endpointBatch, metrics.OutcomeInvalid)
			item.Error = rowErr.Error()
			response.Summary.Failed++
		} else {
			metrics.ObservePrediction(endpointBatch, result.EffectivenessRating, result.SideEffectRisk, time.Since(rowStart))
			rating, risk := result.EffectivenessRating, result.SideEffectRisk
			item.EffectivenessRating = &rating
			item.SideEffectRisk = &risk
			item.Tier = inference.TierFor(rating)
			response.Summary.Scored++
		}
		response.Results = append(response.Results, item)
	}

	response.Summary.Rows = len(rows)
	response.Summary.Duration = time.Since(start)
	response.Summary.DurationMs = response.Summary.Duration.Milliseconds()
	metrics.BatchRecords.Observe(float64(len(rows)))

	logging.Info("Batch scored",
		"request_id", middleware.GetReqID(r.Context()),
		"batch_id", response.BatchID,
		"rows", response.Summary.Rows,
		"failed", response.Summary.Failed,
	)

	h.RespondWithJSON(w, http.StatusOK, response)
}

// observedPredictor records the prediction metrics of every record it scores. Rows
// rejected before reaching the model are counted from the batch summary instead.
type observedPredictor struct {
	pipeline *inference.Pipeline
	endpoint string
}

func (o observedPredictor) Predict(record inference.DrugRecord) (inference.PredictionResult, error) {
	start := time.Now()
	result, err := o.pipeline.Predict(record)
	if err == nil {
		metrics.ObservePrediction(o.endpoint, result.EffectivenessRating, result.SideEffectRisk, time.Since(start))
	}
	return result, err
}

// batchCSVToCSV buffers the whole output so a failure halfway can still be reported
// with an error status.
func (h *HTTPHandlerImpl) batchCSVToCSV(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Current()
	if err != nil {
		h.respondWithPredictionError(w, r, err)
		return
	}

	reader, err := batch.NewReader(r.Body)
	if err != nil {
		h.respondWithPredictionError(w, r, err)
		return
	}

	var buf bytes.Buffer
	writer, err := batch.NewWriter(&buf, reader.Header())
	if err != nil {
		h.respondWithPredictionError(w, r, err)
		return
	}

	predictor := observedPredictor{pipeline: snap.Pipeline, endpoint: endpointBatch}
	sum, err := batch.Score(r.Context(), predictor, h.validator, reader, writer, h.limits.MaxBatchSize)
	if err != nil {
		if !errors.Is(err, inference.ErrInvalidInput) {
			metrics.ObserveFailure(endpointBatch, metrics.OutcomeError)
		}
		h.respondWithPredictionError(w, r, err)
		return
	}
	if err := h.validator.ValidateBatchSize(sum.Rows); err != nil {
		h.respondWithPredictionError(w, r, err)
		return
	}
	metrics.ObserveFailures(endpointBatch, metrics.OutcomeInvalid, sum.Failed)
	metrics.BatchRecords.Observe(float64(sum.Rows))

	logging.Info("Batch scored",
		"request_id", middleware.GetReqID(r.Context()),
		"format", "csv",
		"encoding", reader.Encoding(),
		"rows", sum.Rows,
		"failed", sum.Failed,
	)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Model-Version", snap.Bundle.Version)
	w.Header().Set("X-Batch-Rows", fmt.Sprint(sum.Rows))
	w.Header().Set("X-Batch-Failed", fmt.Sprint(sum.Failed))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func isCSV(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/csv"
}

func acceptsCSV(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == "text/csv" {
			return true
		}
	}
	return false
}
