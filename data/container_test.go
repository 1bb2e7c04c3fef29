package data

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giygas/drug-predictor-api/artifacts"
	"github.com/giygas/drug-predictor-api/inference"
)

func loadBundle(t *testing.T) *artifacts.Bundle {
	t.Helper()

	b, err := artifacts.Load(context.Background(), artifacts.NewFileSource("../artifacts/testdata/models"), artifacts.DefaultNames())
	if err != nil {
		t.Fatalf("failed to load fixture artifacts: %v", err)
	}
	return b
}

func TestNewDataContainer(t *testing.T) {
	dc := NewDataContainer()

	if dc.IsReady() {
		t.Error("new container should not be ready")
	}
	if dc.IsUpdating() {
		t.Error("new container should not be updating")
	}
	if !dc.GetLastUpdated().IsZero() {
		t.Error("new container should have zero lastUpdated time")
	}
	if !dc.GetServerStartTime().IsZero() {
		t.Error("server start time should initially be zero")
	}
	if dc.Bundle() != nil {
		t.Error("new container should have no bundle")
	}

	if _, err := dc.Pipeline(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestSwap(t *testing.T) {
	dc := NewDataContainer()
	bundle := loadBundle(t)

	before := time.Now()
	if err := dc.Swap(bundle); err != nil {
		t.Fatalf("Swap failed: %v", err)
	}

	if !dc.IsReady() {
		t.Error("container should be ready after Swap")
	}
	if dc.Bundle() != bundle {
		t.Error("Bundle should return the swapped bundle")
	}
	if dc.GetLastUpdated().Before(before) {
		t.Error("lastUpdated should be set by Swap")
	}

	p, err := dc.Pipeline()
	if err != nil {
		t.Fatalf("Pipeline failed: %v", err)
	}
	result, err := p.Predict(inference.DrugRecord{Activity: 100})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if result.EffectivenessRating < 5.99 || result.EffectivenessRating > 6.01 {
		t.Errorf("expected rating 6.0, got %v", result.EffectivenessRating)
	}
}

func TestSwapNilBundle(t *testing.T) {
	dc := NewDataContainer()

	if err := dc.Swap(nil); err == nil {
		t.Error("expected an error for a nil bundle")
	}
	if dc.IsReady() {
		t.Error("a failed swap must not make the container ready")
	}
}

func TestSwapKeepsOldSnapshotForReaders(t *testing.T) {
	dc := NewDataContainer()
	first := loadBundle(t)
	second := loadBundle(t)

	if err := dc.Swap(first); err != nil {
		t.Fatal(err)
	}
	held, _ := dc.Current()

	if err := dc.Swap(second); err != nil {
		t.Fatal(err)
	}

	if held.Bundle != first {
		t.Error("a snapshot taken before a swap must keep its bundle")
	}
	if dc.Bundle() != second {
		t.Error("the container should serve the new bundle")
	}
}

func TestFailedRefreshCounter(t *testing.T) {
	dc := NewDataContainer()

	dc.RecordFailedRefresh()
	dc.RecordFailedRefresh()
	if dc.FailedRefreshes() != 2 {
		t.Errorf("expected 2 failed refreshes, got %d", dc.FailedRefreshes())
	}

	if err := dc.Swap(loadBundle(t)); err != nil {
		t.Fatal(err)
	}
	if dc.FailedRefreshes() != 0 {
		t.Error("a successful swap should reset the failure count")
	}
}

func TestBeginEndUpdate(t *testing.T) {
	dc := NewDataContainer()

	if !dc.BeginUpdate() {
		t.Fatal("first BeginUpdate should succeed")
	}
	if !dc.IsUpdating() {
		t.Error("container should be updating")
	}
	if dc.BeginUpdate() {
		t.Error("second BeginUpdate should fail while an update is running")
	}

	dc.EndUpdate()
	if dc.IsUpdating() {
		t.Error("container should not be updating after EndUpdate")
	}
	if !dc.BeginUpdate() {
		t.Error("BeginUpdate should succeed after EndUpdate")
	}
}

func TestConcurrentBeginUpdate(t *testing.T) {
	dc := NewDataContainer()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if dc.BeginUpdate() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("exactly one goroutine should win the update, got %d", wins.Load())
	}
}

func TestConcurrentReadsDuringSwap(t *testing.T) {
	dc := NewDataContainer()
	bundle := loadBundle(t)
	if err := dc.Swap(bundle); err != nil {
		t.Fatal(err)
	}

	record := inference.DrugRecord{DrugName: "Aspirin", GenericName: "Acetylsalicylic acid", Activity: 80}
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				dc.Swap(bundle)
			}
		}
	}()

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				p, err := dc.Pipeline()
				if err != nil {
					t.Errorf("Pipeline failed: %v", err)
					return
				}
				if _, err := p.Predict(record); err != nil {
					t.Errorf("Predict failed: %v", err)
					return
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestServerStartTime(t *testing.T) {
	dc := NewDataContainer()
	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	dc.SetServerStartTime(start)
	if !dc.GetServerStartTime().Equal(start) {
		t.Errorf("expected %v, got %v", start, dc.GetServerStartTime())
	}
}
