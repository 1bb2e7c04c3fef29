// Package data holds the artifact bundle currently used to serve predictions. Bundles
// are immutable; a refresh builds a new one and swaps it in atomically, so requests in
// flight keep scoring against the bundle they started with.
package data

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/giygas/drug-predictor-api/artifacts"
	"github.com/giygas/drug-predictor-api/inference"
	"github.com/giygas/drug-predictor-api/interfaces"
)

// ErrNotReady is returned while no artifacts have been loaded
var ErrNotReady = errors.New("no artifacts loaded")

// Compile-time check to ensure DataContainer implements ArtifactStore
var _ interfaces.ArtifactStore = (*DataContainer)(nil)

// Snapshot pairs a bundle with the pipeline built from it
type Snapshot = artifacts.Snapshot

// DataContainer holds the current snapshot behind an atomic pointer
type DataContainer struct {
	current         atomic.Pointer[Snapshot]
	lastUpdated     atomic.Pointer[time.Time]
	serverStartTime atomic.Pointer[time.Time]
	updating        atomic.Bool
	failedRefreshes atomic.Int64
}

// NewDataContainer creates an empty container; IsReady is false until the first Swap
func NewDataContainer() *DataContainer {
	return &DataContainer{}
}

// Swap builds a pipeline from bundle and makes it current
func (dc *DataContainer) Swap(bundle *artifacts.Bundle) error {
	if bundle == nil {
		return errors.New("cannot swap in a nil bundle")
	}

	pipeline, err := bundle.Pipeline()
	if err != nil {
		return err
	}

	now := time.Now()
	dc.current.Store(&Snapshot{Bundle: bundle, Pipeline: pipeline})
	dc.lastUpdated.Store(&now)
	dc.failedRefreshes.Store(0)
	return nil
}

// Current returns the snapshot in use, or ErrNotReady
func (dc *DataContainer) Current() (*Snapshot, error) {
	s := dc.current.Load()
	if s == nil {
		return nil, ErrNotReady
	}
	return s, nil
}

// Pipeline returns the pipeline of the current snapshot
func (dc *DataContainer) Pipeline() (*inference.Pipeline, error) {
	s, err := dc.Current()
	if err != nil {
		return nil, err
	}
	return s.Pipeline, nil
}

// Bundle returns the current bundle, or nil before the first load
func (dc *DataContainer) Bundle() *artifacts.Bundle {
	if s := dc.current.Load(); s != nil {
		return s.Bundle
	}
	return nil
}

// IsReady reports whether a bundle has been loaded
func (dc *DataContainer) IsReady() bool {
	return dc.current.Load() != nil
}

// GetLastUpdated returns when the current bundle was swapped in
func (dc *DataContainer) GetLastUpdated() time.Time {
	if t := dc.lastUpdated.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(&startTime)
}

func (dc *DataContainer) GetServerStartTime() time.Time {
	if t := dc.serverStartTime.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// RecordFailedRefresh counts a refresh that kept the current bundle
func (dc *DataContainer) RecordFailedRefresh() {
	dc.failedRefreshes.Add(1)
}

// FailedRefreshes is the number of failed refreshes since the last successful swap
func (dc *DataContainer) FailedRefreshes() int64 {
	return dc.failedRefreshes.Load()
}

// IsUpdating returns true while a refresh is in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// BeginUpdate marks the start of a refresh.
// Returns true if the refresh can proceed, false if another one is in progress
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a refresh
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
