package handlers

import (
	"net/http"
	"time"

	"github.com/giygas/drug-predictor-api/data"
	"github.com/giygas/drug-predictor-api/inference"
)

// ModelSchema describes one loaded model
type ModelSchema struct {
	Objective  string `json:"objective"`
	NumFeature int    `json:"num_feature"`
	NumTrees   int    `json:"num_trees"`
}

// SchemaResponse describes the inputs the loaded artifacts expect
type SchemaResponse struct {
	TextFields     []string `json:"text_fields"`
	NumericFields  []string `json:"numeric_fields"`
	FeatureWidth   int      `json:"feature_width"`
	VocabularySize int      `json:"vocabulary_size"`
	Activity       struct {
		Min     float64 `json:"min"`
		Max     float64 `json:"max"`
		Default float64 `json:"default"`
	} `json:"activity"`
	TierThresholds struct {
		High     float64 `json:"high"`
		Moderate float64 `json:"moderate"`
	} `json:"tier_thresholds"`
	MaxBatchSize       int                    `json:"max_batch_size"`
	MaxTextFieldLength int                    `json:"max_text_field_length"`
	ModelVersion       string                 `json:"model_version"`
	LoadedAt           time.Time              `json:"loaded_at"`
	Models             map[string]ModelSchema `json:"models"`
}

// Schema describes the request fields and the loaded artifacts
func (h *HTTPHandlerImpl) Schema(w http.ResponseWriter, r *http.Request) {
	bundle := h.store.Bundle()
	if bundle == nil {
		h.respondWithPredictionError(w, r, data.ErrNotReady)
		return
	}

	var resp SchemaResponse
	resp.TextFields = inference.TextFieldOrder[:]
	resp.NumericFields = inference.NumericFieldOrder[:]
	resp.FeatureWidth = bundle.FeatureWidth()
	resp.VocabularySize = bundle.Vectorizer.Features()
	resp.Activity.Min = inference.MinActivity
	resp.Activity.Max = inference.MaxActivity
	resp.Activity.Default = inference.DefaultActivity
	resp.TierThresholds.High = inference.HighTierThreshold
	resp.TierThresholds.Moderate = inference.ModerateTierThreshold
	resp.MaxBatchSize = h.limits.MaxBatchSize
	resp.MaxTextFieldLength = h.limits.MaxTextFieldLength
	resp.ModelVersion = bundle.Version
	resp.LoadedAt = bundle.LoadedAt
	resp.Models = map[string]ModelSchema{
		"effectiveness_rating": {
			Objective:  string(bundle.Rating.Objective()),
			NumFeature: bundle.Rating.NumFeature(),
			NumTrees:   bundle.Rating.NumTrees(),
		},
		"side_effect_risk": {
			Objective:  string(bundle.SideEffect.Objective()),
			NumFeature: bundle.SideEffect.NumFeature(),
			NumTrees:   bundle.SideEffect.NumTrees(),
		},
	}

	h.RespondWithJSON(w, http.StatusOK, resp)
}
