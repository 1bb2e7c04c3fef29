// Package inference assembles model-ready feature rows from drug records and runs the
// effectiveness and side-effect models on them.
package inference

import (
	"errors"
	"fmt"

	"github.com/giygas/drug-predictor-api/sparse"
)

// Vectorizer maps free text to a fixed-width sparse row
type Vectorizer interface {
	Transform(doc string) sparse.Vector
	Features() int
}

// Regressor predicts a continuous value for a feature row
type Regressor interface {
	Predict(row sparse.Vector) (float64, error)
	NumFeature() int
}

// Classifier predicts a class label for a feature row
type Classifier interface {
	PredictLabel(row sparse.Vector) (int, error)
	NumFeature() int
}

// Pipeline runs the fixed text -> features -> models sequence. The injected artifacts
// are only read, so a Pipeline can be shared by concurrent callers.
type Pipeline struct {
	vectorizer Vectorizer
	rating     Regressor
	sideEffect Classifier
}

// NewPipeline wires the three artifacts into a pipeline
func NewPipeline(vectorizer Vectorizer, rating Regressor, sideEffect Classifier) (*Pipeline, error) {
	if vectorizer == nil || rating == nil || sideEffect == nil {
		return nil, errors.New("pipeline requires a vectorizer, a rating model and a side effect model")
	}

	return &Pipeline{
		vectorizer: vectorizer,
		rating:     rating,
		sideEffect: sideEffect,
	}, nil
}

// FeatureWidth is the width of the rows this pipeline assembles
func (p *Pipeline) FeatureWidth() int {
	return p.vectorizer.Features() + len(NumericFieldOrder)
}

// AssembleFeatures builds the feature row for a record: the vectorised combined text
// followed by the numeric columns
func (p *Pipeline) AssembleFeatures(record DrugRecord) (FeatureVector, error) {
	if err := record.Validate(); err != nil {
		return FeatureVector{}, err
	}

	text := p.vectorizer.Transform(CombineText(record))
	numeric := sparse.FromDense(record.NumericFields())

	return sparse.HStack(text, numeric), nil
}

// Predict scores one record with both models
func (p *Pipeline) Predict(record DrugRecord) (PredictionResult, error) {
	row, err := p.AssembleFeatures(record)
	if err != nil {
		return PredictionResult{}, err
	}

	if want := p.rating.NumFeature(); row.Dim != want {
		return PredictionResult{}, &DimensionMismatchError{Model: "rating model", Got: row.Dim, Want: want}
	}
	if want := p.sideEffect.NumFeature(); row.Dim != want {
		return PredictionResult{}, &DimensionMismatchError{Model: "side effect model", Got: row.Dim, Want: want}
	}

	rating, err := p.rating.Predict(row)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("rating model: %w", err)
	}

	label, err := p.sideEffect.PredictLabel(row)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("side effect model: %w", err)
	}

	var risk bool
	switch label {
	case 0:
	case 1:
		risk = true
	default:
		return PredictionResult{}, fmt.Errorf("side effect model returned class %d, expected 0 or 1", label)
	}

	return PredictionResult{
		EffectivenessRating: rating,
		SideEffectRisk:      risk,
	}, nil
}
