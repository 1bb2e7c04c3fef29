// Package health provides health checking functionality for the drug predictor API.
package health

import (
	"math"
	"net/http"
	"time"

	"github.com/giygas/drug-predictor-api/interfaces"
)

// DegradedAfterFailures is how many consecutive failed refreshes turn the status to degraded
const DegradedAfterFailures = 3

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	store           interfaces.ArtifactStore
	refreshInterval time.Duration
	now             func() time.Time
}

// NewHealthChecker creates a new health checker. A zero refreshInterval means artifacts
// are only loaded at startup.
func NewHealthChecker(store interfaces.ArtifactStore, refreshInterval time.Duration) interfaces.HealthChecker {
	return &HealthCheckerImpl{
		store:           store,
		refreshInterval: refreshInterval,
		now:             time.Now,
	}
}

// HealthCheck returns the status for the /health endpoint. Serving stale artifacts
// after failed refreshes is degraded but still answers 200.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	isUpdating := h.store.IsUpdating()
	failures := h.store.FailedRefreshes()

	data = map[string]any{
		"is_updating":      isUpdating,
		"failed_refreshes": failures,
		"refresh_enabled":  h.refreshInterval > 0,
	}

	if start := h.store.GetServerStartTime(); !start.IsZero() {
		data["uptime_seconds"] = math.Round(h.now().Sub(start).Seconds())
	}
	if next := h.NextRefresh(); !next.IsZero() {
		data["next_refresh"] = next.Format(time.RFC3339)
	}

	bundle := h.store.Bundle()
	if bundle == nil || !h.store.IsReady() {
		data["ready"] = false
		return "unhealthy", data, http.StatusServiceUnavailable
	}

	age := h.now().Sub(bundle.LoadedAt)
	data["ready"] = true
	data["artifact_version"] = bundle.Version
	data["loaded_at"] = bundle.LoadedAt.Format(time.RFC3339)
	data["artifact_age_hours"] = math.Round(age.Hours()*10) / 10
	data["feature_width"] = bundle.FeatureWidth()
	data["vocabulary_size"] = bundle.Vectorizer.Features()
	data["rating_model_trees"] = bundle.Rating.NumTrees()
	data["side_effect_model_trees"] = bundle.SideEffect.NumTrees()

	if failures >= DegradedAfterFailures {
		return "degraded", data, http.StatusOK
	}
	return "healthy", data, http.StatusOK
}

// NextRefresh returns the next scheduled artifact check, counted in whole intervals
// from server start
func (h *HealthCheckerImpl) NextRefresh() time.Time {
	if h.refreshInterval <= 0 {
		return time.Time{}
	}

	start := h.store.GetServerStartTime()
	now := h.now()
	if start.IsZero() || start.After(now) {
		return now.Add(h.refreshInterval)
	}

	elapsed := now.Sub(start)
	n := elapsed/h.refreshInterval + 1
	return start.Add(n * h.refreshInterval)
}
