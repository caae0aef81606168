// Package executor defines the partition-executor collaborator
// interface. See doc.go for complete package documentation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/partgrid/internal/partition"
)

// ErrNoPartitions is returned by Submit for an empty dataset.
var ErrNoPartitions = errors.New("dataset has no partitions")

// Task is the per-partition function a driver submits. It runs once
// per partition with at-least-once semantics and returns an optional
// result payload when the partition's work completes.
type Task func(ctx context.Context, p int, rows partition.Iterator) (payload []byte, present bool, err error)

// Dataset is an opaque handle to partitioned data: it knows how many
// partitions exist and can open a row iterator for each.
type Dataset interface {
	NumPartitions() int
	Open(p int) (partition.Iterator, error)
}

// Result is the per-partition outcome of a submission: the optional
// payload the partition produced, or the error that exhausted its
// relaunch budget.
type Result struct {
	Payload   []byte
	Err       error
	Partition int
	Present   bool
}

// Handle tracks one submission. It resolves once every partition has
// finished, which may be long after the submitting call returned.
type Handle interface {
	// Done is closed when all partitions have completed.
	Done() <-chan struct{}

	// Wait blocks until completion or ctx expiry and returns one
	// Result per partition, ordered by partition index.
	Wait(ctx context.Context) ([]Result, error)
}

// Executor runs a Task once per partition of a Dataset. Submissions
// are fire-and-forget: Submit returns as soon as the work is launched,
// and the Handle resolves whenever the partitions finish. Execution is
// at-least-once per partition with no ordering guarantee; a failed
// partition is relaunched automatically.
type Executor interface {
	Submit(ctx context.Context, ds Dataset, task Task) (Handle, error)
}

// SliceDataset is an in-memory Dataset: one row slice per partition.
type SliceDataset [][][]byte

func (d SliceDataset) NumPartitions() int { return len(d) }

func (d SliceDataset) Open(p int) (partition.Iterator, error) {
	if p < 0 || p >= len(d) {
		return nil, fmt.Errorf("partition %d out of range [0, %d)", p, len(d))
	}
	return partition.NewSliceIterator(d[p]), nil
}

// LocalConfig tunes the in-process executor.
type LocalConfig struct {
	// MaxRelaunches is how many times a failed partition is relaunched
	// after its initial attempt.
	MaxRelaunches int

	// RelaunchDelay is the pause before relaunching a failed partition.
	RelaunchDelay time.Duration
}

// Local runs every partition as a goroutine in the driver process. It
// exists for tests and single-machine use, but it honors the full
// executor contract: fire-and-forget submission, at-least-once
// execution, automatic relaunch of a partition whose task fails or
// panics, and eventual materialization of per-partition results.
type Local struct {
	cfg LocalConfig
}

// NewLocal creates a local executor. Zero config fields get defaults
// (3 relaunches, 100ms delay).
func NewLocal(cfg LocalConfig) *Local {
	if cfg.MaxRelaunches <= 0 {
		cfg.MaxRelaunches = 3
	}
	if cfg.RelaunchDelay <= 0 {
		cfg.RelaunchDelay = 100 * time.Millisecond
	}
	return &Local{cfg: cfg}
}

// Submit launches task on every partition and returns immediately.
func (l *Local) Submit(ctx context.Context, ds Dataset, task Task) (Handle, error) {
	n := ds.NumPartitions()
	if n <= 0 {
		return nil, ErrNoPartitions
	}

	h := &localHandle{
		done:    make(chan struct{}),
		results: make([]Result, n),
	}

	remaining := make(chan struct{}, n)
	for p := 0; p < n; p++ {
		go func() {
			h.results[p] = l.runPartition(ctx, ds, task, p)
			remaining <- struct{}{}
		}()
	}
	go func() {
		for i := 0; i < n; i++ {
			<-remaining
		}
		close(h.done)
	}()

	return h, nil
}

// runPartition executes one partition with the relaunch budget. Each
// attempt opens a fresh iterator so a relaunched instance rebuilds its
// state from scratch, exactly as a re-shipped task would.
func (l *Local) runPartition(ctx context.Context, ds Dataset, task Task, p int) Result {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRelaunches; attempt++ {
		payload, present, err := l.runOnce(ctx, ds, task, p)
		if err == nil {
			return Result{Partition: p, Payload: payload, Present: present}
		}
		lastErr = err
		log.Printf("executor: partition %d attempt %d failed: %v", p, attempt+1, err)

		select {
		case <-ctx.Done():
			return Result{Partition: p, Err: lastErr}
		case <-time.After(l.cfg.RelaunchDelay):
		}
	}
	return Result{Partition: p, Err: lastErr}
}

func (l *Local) runOnce(ctx context.Context, ds Dataset, task Task, p int) (payload []byte, present bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("partition %d panicked: %v", p, r)
		}
	}()

	rows, err := ds.Open(p)
	if err != nil {
		return nil, false, err
	}
	return task(ctx, p, rows)
}

type localHandle struct {
	done    chan struct{}
	results []Result // one slot per partition, all written before done closes
}

func (h *localHandle) Done() <-chan struct{} {
	return h.done
}

func (h *localHandle) Wait(ctx context.Context) ([]Result, error) {
	select {
	case <-h.done:
		return slices.Clone(h.results), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
