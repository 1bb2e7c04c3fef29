// Package interfaces defines core abstractions for the drug predictor API
// to improve testability, maintainability, and separation of concerns.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/drug-predictor-api/artifacts"
	"github.com/giygas/drug-predictor-api/inference"
)

// ArtifactStore defines the contract for holding the loaded artifacts.
// Readers get an immutable pipeline; refreshes swap in a new bundle atomically.
type ArtifactStore interface {
	// Current returns the bundle and its pipeline from a single load
	Current() (*artifacts.Snapshot, error)
	Pipeline() (*inference.Pipeline, error)
	Bundle() *artifacts.Bundle
	IsReady() bool
	GetLastUpdated() time.Time
	GetServerStartTime() time.Time
	FailedRefreshes() int64

	Swap(bundle *artifacts.Bundle) error
	RecordFailedRefresh()
	IsUpdating() bool
	BeginUpdate() bool
	EndUpdate()
}

// ArtifactLoader loads artifact bundles from storage
type ArtifactLoader interface {
	Load(ctx context.Context) (*artifacts.Bundle, error)
	// Stat fingerprints the stored artifacts without downloading them
	Stat(ctx context.Context) (artifacts.Fingerprint, error)
	Describe() string
}

// Scheduler defines the contract for the initial load and periodic artifact refresh
type Scheduler interface {
	Start() error
	Stop()
}

// HTTPHandler defines the contract for the HTTP endpoints
type HTTPHandler interface {
	Predict(w http.ResponseWriter, r *http.Request)
	PredictBatch(w http.ResponseWriter, r *http.Request)
	Schema(w http.ResponseWriter, r *http.Request)
	// This will stay in all versions
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// HealthChecker defines the contract for health check functionality
type HealthChecker interface {
	// HealthCheck returns current system health status and the HTTP status to report
	HealthCheck() (status string, details map[string]any, httpStatus int)

	// NextRefresh returns when artifacts will next be checked, zero when refresh is off
	NextRefresh() time.Time
}

// RecordValidator checks records before they reach the pipeline
type RecordValidator interface {
	ValidateRecord(record inference.DrugRecord) error
	ValidateBatchSize(n int) error
}
