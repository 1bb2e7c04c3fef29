package inference

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/giygas/drug-predictor-api/sparse"
)

// Activity bounds and the value used when a caller does not provide one
const (
	MinActivity     = 0.0
	MaxActivity     = 100.0
	DefaultActivity = 80.0
)

// TextFieldOrder is the order in which text fields are joined before vectorisation. The
// vectorizer and both models were fitted on text assembled in exactly this order;
// changing it silently invalidates every prediction.
var TextFieldOrder = [...]string{
	"drug_name",
	"generic_name",
	"brand_names",
	"drug_classes",
	"related_drugs",
	"side_effects",
	"medical_condition",
	"medical_condition_description",
}

// NumericFieldOrder lists the numeric columns appended after the text columns
var NumericFieldOrder = [...]string{"activity"}

// DrugRecord is one drug description submitted for scoring. Text fields default to empty.
type DrugRecord struct {
	DrugName                    string  `json:"drug_name" validate:"textlen"`
	GenericName                 string  `json:"generic_name" validate:"textlen"`
	BrandNames                  string  `json:"brand_names" validate:"textlen"`
	DrugClasses                 string  `json:"drug_classes" validate:"textlen"`
	RelatedDrugs                string  `json:"related_drugs" validate:"textlen"`
	MedicalCondition            string  `json:"medical_condition" validate:"textlen"`
	MedicalConditionDescription string  `json:"medical_condition_description" validate:"textlen"`
	SideEffects                 string  `json:"side_effects" validate:"textlen"`
	Activity                    float64 `json:"activity" validate:"gte=0,lte=100"`
}

// TextFields returns the text fields in TextFieldOrder
func (r DrugRecord) TextFields() [len(TextFieldOrder)]string {
	return [...]string{
		r.DrugName,
		r.GenericName,
		r.BrandNames,
		r.DrugClasses,
		r.RelatedDrugs,
		r.SideEffects,
		r.MedicalCondition,
		r.MedicalConditionDescription,
	}
}

// NumericFields returns the numeric fields in NumericFieldOrder
func (r DrugRecord) NumericFields() []float64 {
	return []float64{r.Activity}
}

// CombineText joins the text fields with single spaces, in TextFieldOrder, without any
// trimming or case folding
func CombineText(r DrugRecord) string {
	fields := r.TextFields()
	return strings.Join(fields[:], " ")
}

// Validate checks the record at the pipeline boundary
func (r DrugRecord) Validate() error {
	if math.IsNaN(r.Activity) || math.IsInf(r.Activity, 0) {
		return &InvalidInputError{Field: "activity", Reason: "must be a finite number"}
	}
	if r.Activity < MinActivity || r.Activity > MaxActivity {
		return &InvalidInputError{Field: "activity", Reason: "must be between 0 and 100"}
	}

	for i, text := range r.TextFields() {
		if !utf8.ValidString(text) {
			return &InvalidInputError{Field: TextFieldOrder[i], Reason: "must be valid UTF-8"}
		}
	}

	return nil
}

// FeatureVector is the single model-ready row: text columns first, numeric columns last
type FeatureVector = sparse.Vector

// PredictionResult holds both model outputs for one record
type PredictionResult struct {
	// EffectivenessRating is nominally within [0, 10] but is not clamped
	EffectivenessRating float64 `json:"effectiveness_rating"`
	SideEffectRisk      bool    `json:"side_effect_risk"`
}
