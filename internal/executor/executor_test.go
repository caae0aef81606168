package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dreamware/partgrid/internal/partition"
)

func testDataset(partitions int) SliceDataset {
	ds := make(SliceDataset, partitions)
	for p := 0; p < partitions; p++ {
		ds[p] = [][]byte{[]byte(fmt.Sprintf("row-%d", p))}
	}
	return ds
}

func waitResults(t *testing.T, h Handle) []Result {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Failed to wait for results: %v", err)
	}
	return results
}

func TestSliceDataset(t *testing.T) {
	ds := testDataset(3)

	if ds.NumPartitions() != 3 {
		t.Errorf("Expected 3 partitions, got %d", ds.NumPartitions())
	}

	it, err := ds.Open(1)
	if err != nil {
		t.Fatalf("Failed to open partition: %v", err)
	}
	rows := partition.Collect(it)
	if len(rows) != 1 || string(rows[0]) != "row-1" {
		t.Errorf("Unexpected rows: %v", rows)
	}

	if _, err := ds.Open(3); err == nil {
		t.Error("Expected error for out-of-range partition")
	}
	if _, err := ds.Open(-1); err == nil {
		t.Error("Expected error for negative partition")
	}
}

func TestLocalRunsEveryPartition(t *testing.T) {
	exec := NewLocal(LocalConfig{})

	h, err := exec.Submit(context.Background(), testDataset(4),
		func(_ context.Context, p int, rows partition.Iterator) ([]byte, bool, error) {
			got := partition.Collect(rows)
			if len(got) != 1 {
				return nil, false, fmt.Errorf("partition %d: expected 1 row, got %d", p, len(got))
			}
			return []byte(fmt.Sprintf("done-%d", p)), true, nil
		})
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}

	results := waitResults(t, h)
	if len(results) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(results))
	}
	for p, res := range results {
		if res.Err != nil {
			t.Errorf("Partition %d failed: %v", p, res.Err)
		}
		if res.Partition != p {
			t.Errorf("Result %d has partition index %d", p, res.Partition)
		}
		if !res.Present || string(res.Payload) != fmt.Sprintf("done-%d", p) {
			t.Errorf("Partition %d: unexpected payload %q (present=%v)", p, res.Payload, res.Present)
		}
	}
}

func TestLocalEmptyDataset(t *testing.T) {
	exec := NewLocal(LocalConfig{})

	if _, err := exec.Submit(context.Background(), SliceDataset{}, nil); !errors.Is(err, ErrNoPartitions) {
		t.Errorf("Expected ErrNoPartitions, got %v", err)
	}
}

func TestLocalSubmitIsFireAndForget(t *testing.T) {
	exec := NewLocal(LocalConfig{})
	release := make(chan struct{})

	start := time.Now()
	h, err := exec.Submit(context.Background(), testDataset(2),
		func(ctx context.Context, _ int, _ partition.Iterator) ([]byte, bool, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, false, nil
		})
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Submit blocked for %v while tasks were still running", elapsed)
	}

	select {
	case <-h.Done():
		t.Fatal("Handle resolved before the partitions finished")
	default:
	}

	close(release)
	waitResults(t, h)
}

func TestLocalRelaunchesFailedPartition(t *testing.T) {
	exec := NewLocal(LocalConfig{MaxRelaunches: 3, RelaunchDelay: time.Millisecond})

	var attempts atomic.Int32
	h, err := exec.Submit(context.Background(), testDataset(1),
		func(_ context.Context, p int, rows partition.Iterator) ([]byte, bool, error) {
			// A relaunched instance must see its partition's rows again.
			if got := partition.Collect(rows); len(got) != 1 {
				return nil, false, fmt.Errorf("expected fresh iterator, got %d rows", len(got))
			}
			if attempts.Add(1) < 3 {
				return nil, false, errors.New("transient failure")
			}
			return []byte("recovered"), true, nil
		})
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}

	results := waitResults(t, h)
	if results[0].Err != nil {
		t.Fatalf("Expected recovery within the relaunch budget: %v", results[0].Err)
	}
	if string(results[0].Payload) != "recovered" {
		t.Errorf("Unexpected payload: %q", results[0].Payload)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestLocalRelaunchesPanickedPartition(t *testing.T) {
	exec := NewLocal(LocalConfig{MaxRelaunches: 2, RelaunchDelay: time.Millisecond})

	var attempts atomic.Int32
	h, err := exec.Submit(context.Background(), testDataset(1),
		func(_ context.Context, _ int, _ partition.Iterator) ([]byte, bool, error) {
			if attempts.Add(1) == 1 {
				panic("worker died")
			}
			return nil, false, nil
		})
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}

	results := waitResults(t, h)
	if results[0].Err != nil {
		t.Fatalf("Expected panic to be retried: %v", results[0].Err)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}
}

func TestLocalRelaunchBudgetExhausted(t *testing.T) {
	exec := NewLocal(LocalConfig{MaxRelaunches: 2, RelaunchDelay: time.Millisecond})

	var attempts atomic.Int32
	h, err := exec.Submit(context.Background(), testDataset(1),
		func(_ context.Context, _ int, _ partition.Iterator) ([]byte, bool, error) {
			attempts.Add(1)
			return nil, false, errors.New("permanent failure")
		})
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}

	results := waitResults(t, h)
	if results[0].Err == nil {
		t.Fatal("Expected failure after exhausting the relaunch budget")
	}
	// Initial attempt plus MaxRelaunches.
	if got := attempts.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestLocalContextCancelStopsRelaunching(t *testing.T) {
	exec := NewLocal(LocalConfig{MaxRelaunches: 100, RelaunchDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	var attempts atomic.Int32
	h, err := exec.Submit(ctx, testDataset(1),
		func(_ context.Context, _ int, _ partition.Iterator) ([]byte, bool, error) {
			if attempts.Add(1) == 2 {
				cancel()
			}
			return nil, false, errors.New("still failing")
		})
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}

	results := waitResults(t, h)
	if results[0].Err == nil {
		t.Fatal("Expected canceled partition to report its last error")
	}
	if got := attempts.Load(); got > 3 {
		t.Errorf("Expected relaunching to stop on cancellation, got %d attempts", got)
	}
}

func TestLocalWaitHonorsContext(t *testing.T) {
	exec := NewLocal(LocalConfig{})
	release := make(chan struct{})
	defer close(release)

	h, err := exec.Submit(context.Background(), testDataset(1),
		func(ctx context.Context, _ int, _ partition.Iterator) ([]byte, bool, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, false, nil
		})
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
}
