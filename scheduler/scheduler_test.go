package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/giygas/drug-predictor-api/artifacts"
	"github.com/giygas/drug-predictor-api/data"
	"github.com/giygas/drug-predictor-api/inference"
	"github.com/giygas/drug-predictor-api/metrics"
)

const fixtureDir = "../artifacts/testdata/models"

// mockLoader wraps a real loader and can be told to fail
type mockLoader struct {
	mu        sync.Mutex
	inner     *artifacts.Loader
	statErr   error
	loadErr   error
	loadCount int
}

func newMockLoader(dir string) *mockLoader {
	return &mockLoader{inner: artifacts.NewLoader(artifacts.NewFileSource(dir), artifacts.DefaultNames())}
}

func (m *mockLoader) Load(ctx context.Context) (*artifacts.Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loadCount++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.inner.Load(ctx)
}

func (m *mockLoader) Stat(ctx context.Context) (artifacts.Fingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statErr != nil {
		return artifacts.Fingerprint{}, m.statErr
	}
	return m.inner.Stat(ctx)
}

func (m *mockLoader) Describe() string {
	return "mock"
}

func (m *mockLoader) loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCount
}

// copyFixtures copies the fixture artifacts to a temp dir so tests can modify them
func copyFixtures(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for _, name := range []string{artifacts.DefaultVectorizerFile, artifacts.DefaultRatingModelFile, artifacts.DefaultSideEffectModelFile} {
		raw, err := os.ReadFile(filepath.Join(fixtureDir, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// rewrite changes a fixture file and moves its modification time forward
func rewrite(t *testing.T, path string, edit func(string) string) {
	t.Helper()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(edit(string(raw))), 0o644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
}

func TestStartLoadsArtifacts(t *testing.T) {
	store := data.NewDataContainer()
	loader := newMockLoader(fixtureDir)
	s := NewScheduler(store, loader, 0)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if !store.IsReady() {
		t.Error("store should be ready after Start")
	}
	if store.IsUpdating() {
		t.Error("update flag should be cleared after Start")
	}
	if len(s.scheduler.Jobs()) != 0 {
		t.Errorf("no jobs should be scheduled when refresh is disabled, got %d", len(s.scheduler.Jobs()))
	}
}

func TestStartFailsWithoutArtifacts(t *testing.T) {
	store := data.NewDataContainer()
	s := NewScheduler(store, newMockLoader(t.TempDir()), time.Hour)

	err := s.Start()
	if err == nil {
		t.Fatal("expected Start to fail with missing artifacts")
	}
	if !errors.Is(err, inference.ErrArtifactLoad) {
		t.Errorf("expected an artifact load error, got %v", err)
	}
	if store.IsReady() {
		t.Error("store must not be ready after a failed load")
	}
}

func TestStartSchedulesRefresh(t *testing.T) {
	store := data.NewDataContainer()
	s := NewScheduler(store, newMockLoader(fixtureDir), 30*time.Minute)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if got := len(s.scheduler.Jobs()); got != 2 {
		t.Errorf("expected refresh and monitor jobs, got %d", got)
	}
}

func TestRefreshUnchanged(t *testing.T) {
	store := data.NewDataContainer()
	loader := newMockLoader(fixtureDir)
	s := NewScheduler(store, loader, time.Hour)
	if err := s.initialLoad(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := store.Bundle()

	if got := s.refresh(context.Background()); got != metrics.RefreshUnchanged {
		t.Errorf("expected unchanged, got %s", got)
	}
	if store.Bundle() != before {
		t.Error("bundle should not be replaced when artifacts did not change")
	}
	if loader.loads() != 1 {
		t.Errorf("unchanged artifacts should not be reloaded, got %d loads", loader.loads())
	}
}

func TestRefreshSwapsChangedArtifacts(t *testing.T) {
	dir := copyFixtures(t)
	store := data.NewDataContainer()
	s := NewScheduler(store, newMockLoader(dir), time.Hour)
	if err := s.initialLoad(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := store.Bundle()

	rewrite(t, filepath.Join(dir, artifacts.DefaultRatingModelFile), func(s string) string {
		return strings.Replace(s, `"5E0"`, `"6E0"`, 1)
	})

	if got := s.refresh(context.Background()); got != metrics.RefreshSwapped {
		t.Fatalf("expected swapped, got %s", got)
	}
	after := store.Bundle()
	if after == before || after.Version == before.Version {
		t.Error("expected a new bundle with a new version")
	}

	p, _ := store.Pipeline()
	result, err := p.Predict(inference.DrugRecord{})
	if err != nil {
		t.Fatal(err)
	}
	if result.EffectivenessRating < 4.49 || result.EffectivenessRating > 4.51 {
		t.Errorf("expected the new base score to apply, got %v", result.EffectivenessRating)
	}
}

func TestRefreshKeepsBundleOnBrokenArtifacts(t *testing.T) {
	dir := copyFixtures(t)
	store := data.NewDataContainer()
	s := NewScheduler(store, newMockLoader(dir), time.Hour)
	if err := s.initialLoad(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := store.Bundle()

	rewrite(t, filepath.Join(dir, artifacts.DefaultVectorizerFile), func(string) string { return "\x80\x04" })

	if got := s.refresh(context.Background()); got != metrics.RefreshFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if store.Bundle() != before {
		t.Error("a failed refresh must keep the current bundle")
	}
	if store.FailedRefreshes() != 1 {
		t.Errorf("expected 1 failed refresh, got %d", store.FailedRefreshes())
	}
	if store.IsUpdating() {
		t.Error("update flag should be cleared after a failed refresh")
	}
}

func TestRefreshSourceUnreachable(t *testing.T) {
	store := data.NewDataContainer()
	loader := newMockLoader(fixtureDir)
	s := NewScheduler(store, loader, time.Hour)
	if err := s.initialLoad(context.Background()); err != nil {
		t.Fatal(err)
	}

	loader.statErr = errors.New("dial tcp: connection refused")

	if got := s.refresh(context.Background()); got != metrics.RefreshFailed {
		t.Errorf("expected failed, got %s", got)
	}
	if !store.IsReady() {
		t.Error("store should keep serving while the source is down")
	}
}

func TestRefreshSkipsWhenUpdateInProgress(t *testing.T) {
	store := data.NewDataContainer()
	loader := newMockLoader(fixtureDir)
	s := NewScheduler(store, loader, time.Hour)

	store.BeginUpdate()
	if got := s.refresh(context.Background()); got != metrics.RefreshUnchanged {
		t.Errorf("expected the refresh to be skipped, got %s", got)
	}
	if loader.loads() != 0 {
		t.Error("a skipped refresh must not load artifacts")
	}
	store.EndUpdate()
}

func TestRefreshTouchedButIdentical(t *testing.T) {
	dir := copyFixtures(t)
	store := data.NewDataContainer()
	s := NewScheduler(store, newMockLoader(dir), time.Hour)
	if err := s.initialLoad(context.Background()); err != nil {
		t.Fatal(err)
	}
	version := store.Bundle().Version

	rewrite(t, filepath.Join(dir, artifacts.DefaultSideEffectModelFile), func(s string) string { return s })

	if got := s.refresh(context.Background()); got != metrics.RefreshUnchanged {
		t.Errorf("expected unchanged for identical content, got %s", got)
	}
	if store.Bundle().Version != version {
		t.Error("version should not change for identical content")
	}
}

func TestCheckSource(t *testing.T) {
	setup := func(t *testing.T, interval time.Duration, reachedAgo time.Duration, failures int) *Scheduler {
		t.Helper()
		store := data.NewDataContainer()
		s := NewScheduler(store, newMockLoader(fixtureDir), interval)
		if err := s.initialLoad(context.Background()); err != nil {
			t.Fatal(err)
		}
		for range failures {
			store.RecordFailedRefresh()
		}
		last := time.Now().Add(-reachedAgo)
		s.lastReachable.Store(&last)
		return s
	}

	tests := []struct {
		name       string
		interval   time.Duration
		reachedAgo time.Duration
		failures   int
		wantWarn   bool
	}{
		{"long interval without failures", 24 * time.Hour, 90 * time.Minute, 0, false},
		{"long interval within one cycle", 24 * time.Hour, 90 * time.Minute, 1, false},
		{"long interval past one cycle", 24 * time.Hour, 25 * time.Hour, 1, true},
		{"short interval failing for over an hour", 10 * time.Minute, 90 * time.Minute, 6, true},
		{"short interval recently reachable", 10 * time.Minute, 20 * time.Minute, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup(t, tt.interval, tt.reachedAgo, tt.failures)
			if got := s.checkSource(); got != tt.wantWarn {
				t.Errorf("checkSource() = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestCheckSourceBeforeFirstLoad(t *testing.T) {
	s := NewScheduler(data.NewDataContainer(), newMockLoader(fixtureDir), time.Hour)
	if s.checkSource() {
		t.Error("no warning expected before the source was ever reached")
	}
}
