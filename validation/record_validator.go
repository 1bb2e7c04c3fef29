// Package validation checks drug records before they are scored.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/giygas/drug-predictor-api/inference"
	"github.com/giygas/drug-predictor-api/interfaces"
)

// Defaults used when configuration does not set the limits
const (
	DefaultMaxTextLength = 10000
	DefaultMaxBatchSize  = 500
)

// RecordValidatorImpl implements the interfaces.RecordValidator interface
type RecordValidatorImpl struct {
	validate      *validator.Validate
	maxTextLength int
	maxBatchSize  int
}

// NewRecordValidator creates a validator enforcing the given limits. Non-positive
// limits fall back to the defaults.
func NewRecordValidator(maxTextLength, maxBatchSize int) interfaces.RecordValidator {
	if maxTextLength <= 0 {
		maxTextLength = DefaultMaxTextLength
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}

	v := &RecordValidatorImpl{
		validate:      validator.New(),
		maxTextLength: maxTextLength,
		maxBatchSize:  maxBatchSize,
	}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	if err := v.validate.RegisterValidation("textlen", v.textLength); err != nil {
		panic(err)
	}

	return v
}

// textLength counts runes, not bytes, so accented text is not penalised
func (v *RecordValidatorImpl) textLength(fl validator.FieldLevel) bool {
	return utf8.RuneCountInString(fl.Field().String()) <= v.maxTextLength
}

// ValidateRecord returns an *inference.InvalidInputError naming the first bad field
func (v *RecordValidatorImpl) ValidateRecord(record inference.DrugRecord) error {
	// UTF-8 first: the length check counts runes
	for i, text := range record.TextFields() {
		field := inference.TextFieldOrder[i]
		if !utf8.ValidString(text) {
			return &inference.InvalidInputError{Field: field, Reason: "must be valid UTF-8"}
		}
		if hasControlChars(text) {
			return &inference.InvalidInputError{Field: field, Reason: "must not contain control characters"}
		}
	}

	err := v.validate.Struct(record)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("failed to validate record: %w", err)
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "textlen":
		return &inference.InvalidInputError{
			Field:  fe.Field(),
			Reason: fmt.Sprintf("must be at most %d characters", v.maxTextLength),
		}
	case "gte", "lte":
		return &inference.InvalidInputError{
			Field:  fe.Field(),
			Reason: fmt.Sprintf("must be between %g and %g", inference.MinActivity, inference.MaxActivity),
		}
	default:
		return &inference.InvalidInputError{Field: fe.Field(), Reason: fe.Error()}
	}
}

// ValidateBatchSize checks the number of records in one batch request
func (v *RecordValidatorImpl) ValidateBatchSize(n int) error {
	if n == 0 {
		return &inference.InvalidInputError{Field: "records", Reason: "batch is empty"}
	}
	if n > v.maxBatchSize {
		return &inference.InvalidInputError{
			Field:  "records",
			Reason: fmt.Sprintf("batch has %d records, the limit is %d", n, v.maxBatchSize),
		}
	}
	return nil
}

// hasControlChars allows tabs and line breaks, which occur in descriptions
func hasControlChars(s string) bool {
	for _, r := range s {
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
