// Package scheduler loads the artifacts at startup and, when enabled, refreshes them
// periodically. A refresh only swaps in a new bundle when the stored artifacts changed
// and the new set loads cleanly; otherwise the current bundle keeps serving.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/giygas/drug-predictor-api/interfaces"
	"github.com/giygas/drug-predictor-api/logging"
	"github.com/giygas/drug-predictor-api/metrics"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

const (
	loadTimeout         = 5 * time.Minute
	unreachableWarnings = time.Hour
)

// Scheduler handles artifact loading and refresh using dependency injection
type Scheduler struct {
	store     interfaces.ArtifactStore
	loader    interfaces.ArtifactLoader
	interval  time.Duration
	scheduler *gocron.Scheduler

	lastReachable atomic.Pointer[time.Time]
}

// NewScheduler creates a scheduler. A zero interval disables periodic refresh.
func NewScheduler(store interfaces.ArtifactStore, loader interfaces.ArtifactLoader, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.Local)
	s.SingletonModeAll()

	return &Scheduler{
		store:     store,
		loader:    loader,
		interval:  interval,
		scheduler: s,
	}
}

// Start performs the initial load, which must succeed, then schedules the refresh and
// the source monitor
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	if err := s.initialLoad(ctx); err != nil {
		logging.Error("Failed to perform initial artifact load", "error", err)
		return fmt.Errorf("initial artifact load failed: %w", err)
	}

	if s.interval <= 0 {
		logging.Info("Artifact refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		s.refresh(ctx)
	})
	if err != nil {
		logging.Error("Failed to schedule artifact refresh", "error", err)
		return fmt.Errorf("failed to schedule artifact refresh: %w", err)
	}

	_, err = s.scheduler.Every(1).Hours().WaitForSchedule().Do(func() { s.checkSource() })
	if err != nil {
		return fmt.Errorf("failed to schedule source monitor: %w", err)
	}

	s.scheduler.StartAsync()
	logging.Info("Artifact refresh scheduled", "interval", s.interval.String(), "source", s.loader.Describe())

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) initialLoad(ctx context.Context) error {
	if !s.store.BeginUpdate() {
		return fmt.Errorf("another load is in progress")
	}
	defer s.store.EndUpdate()

	start := time.Now()
	bundle, err := s.loader.Load(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Swap(bundle); err != nil {
		return err
	}

	s.markReachable()
	metrics.ArtifactLoadedTimestamp.Set(float64(bundle.LoadedAt.Unix()))
	logging.Info("Artifacts loaded",
		"source", s.loader.Describe(),
		"version", bundle.Version,
		"vocabulary_size", bundle.Vectorizer.Features(),
		"rating_model_trees", bundle.Rating.NumTrees(),
		"side_effect_model_trees", bundle.SideEffect.NumTrees(),
		"duration", time.Since(start).String(),
	)
	return nil
}

// refresh checks the stored artifacts and swaps in a new bundle when they changed. It
// returns the metrics.Refresh* result.
func (s *Scheduler) refresh(ctx context.Context) string {
	// Prevent concurrent updates
	if !s.store.BeginUpdate() {
		logging.Info("Artifact refresh already in progress, skipping...")
		return metrics.RefreshUnchanged
	}
	defer s.store.EndUpdate()

	result := s.doRefresh(ctx)
	metrics.ArtifactRefreshTotal.WithLabelValues(result).Inc()
	return result
}

func (s *Scheduler) doRefresh(ctx context.Context) string {
	current := s.store.Bundle()

	fp, err := s.loader.Stat(ctx)
	if err != nil {
		s.store.RecordFailedRefresh()
		logging.Warn("Artifact source unreachable, keeping current artifacts", "source", s.loader.Describe(), "error", err)
		return metrics.RefreshFailed
	}
	s.markReachable()

	if current != nil && current.Fingerprint.Same(fp) {
		logging.Debug("Artifacts unchanged", "version", current.Version)
		return metrics.RefreshUnchanged
	}

	bundle, err := s.loader.Load(ctx)
	if err != nil {
		s.store.RecordFailedRefresh()
		logging.Error("Failed to load new artifacts, keeping current artifacts", "error", err)
		return metrics.RefreshFailed
	}

	if current != nil && bundle.Version == current.Version {
		// touched but identical content
		if err := s.store.Swap(bundle); err != nil {
			s.store.RecordFailedRefresh()
			return metrics.RefreshFailed
		}
		return metrics.RefreshUnchanged
	}

	if err := s.store.Swap(bundle); err != nil {
		s.store.RecordFailedRefresh()
		logging.Error("Failed to swap in new artifacts", "error", err)
		return metrics.RefreshFailed
	}

	metrics.ArtifactLoadedTimestamp.Set(float64(bundle.LoadedAt.Unix()))
	previous := ""
	if current != nil {
		previous = current.Version
	}
	logging.Info("Artifacts refreshed", "previous_version", previous, "version", bundle.Version)
	return metrics.RefreshSwapped
}

func (s *Scheduler) markReachable() {
	now := time.Now()
	s.lastReachable.Store(&now)
}

// checkSource warns when refreshes have been failing and the source has not answered
// for longer than one refresh cycle. A long interval alone is not a reason to warn: the
// source is only contacted when a refresh runs.
func (s *Scheduler) checkSource() bool {
	last := s.lastReachable.Load()
	if last == nil || s.store.FailedRefreshes() == 0 {
		return false
	}

	threshold := max(s.interval, unreachableWarnings)
	if time.Since(*last) <= threshold {
		return false
	}

	logging.Warn("Artifact source has been unreachable",
		"source", s.loader.Describe(),
		"since", last.Format(time.RFC3339),
		"failed_refreshes", s.store.FailedRefreshes(),
	)
	return true
}
