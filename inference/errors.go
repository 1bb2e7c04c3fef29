package inference

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks
var (
	ErrArtifactLoad      = errors.New("artifact load failed")
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	ErrInvalidInput      = errors.New("invalid input")
)

// ArtifactLoadError means a vectorizer or model artifact is missing, corrupt, or
// incompatible. The process must not serve requests without a loaded set.
type ArtifactLoadError struct {
	Artifact string
	Location string
	Err      error
}

func (e *ArtifactLoadError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("failed to load %s from %s: %v", e.Artifact, e.Location, e.Err)
	}
	return fmt.Sprintf("failed to load %s: %v", e.Artifact, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error {
	return e.Err
}

func (e *ArtifactLoadError) Is(target error) bool {
	return target == ErrArtifactLoad
}

// DimensionMismatchError means the assembled feature row does not have the width a model
// was trained on, usually vectorizer/model version skew
type DimensionMismatchError struct {
	Model string
	Got   int
	Want  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s expects %d features, feature row has %d", e.Model, e.Want, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// InvalidInputError rejects a single record; the process keeps serving
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}
