// Package driver implements the driver-side cluster orchestrator. See
// doc.go for complete package documentation.
package driver

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/dreamware/partgrid/internal/cluster"
	"github.com/dreamware/partgrid/internal/coordinator"
	"github.com/dreamware/partgrid/internal/executor"
	"github.com/dreamware/partgrid/internal/partition"
)

// State is the cluster lifecycle state. STOPPED is not terminal: a
// stopped cluster may be started again any number of times, each time
// with a fresh session.
type State int

const (
	StateNew State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Factory builds a fresh partition server instance. It is invoked once
// per partition launch, so a relaunched partition gets a clean instance
// rather than inheriting state from the failed one.
type Factory func() partition.Server

// Cluster launches one partition server per partition of a dataset,
// tracks where each one landed through an embedded coordinator, and
// tears the whole thing down on demand.
//
// The dataset, executor, and factory are fixed at construction. Each
// Start opens a fresh session: a new session token, a new coordinator
// with an empty registration table, and a new executor submission.
// Nothing from a previous session survives into the next one.
type Cluster struct {
	exec    executor.Executor
	dataset executor.Dataset
	factory Factory
	opts    options

	mu            sync.Mutex
	state         State
	coord         *coordinator.Coordinator
	handle        executor.Handle
	token         string
	sessionCancel context.CancelFunc
}

// New creates a Cluster in the NEW state. It validates its required
// collaborators but starts nothing.
func New(exec executor.Executor, ds executor.Dataset, factory Factory, opts ...Option) (*Cluster, error) {
	if exec == nil {
		return nil, ErrExecutorRequired
	}
	if ds == nil {
		return nil, ErrDatasetRequired
	}
	if factory == nil {
		return nil, ErrFactoryRequired
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Cluster{
		exec:    exec,
		dataset: ds,
		factory: factory,
		opts:    o,
		state:   StateNew,
	}, nil
}

// State returns the current lifecycle state.
func (c *Cluster) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens a new session: it discards any previous session's
// registration table and result handle, starts the coordinator, and
// submits the partition launch function to the executor. It returns
// once the coordinator is accepting registrations (or, with
// WithAwaitHosts, once every partition has registered); the partition
// servers themselves come up in the background.
//
// Valid only in NEW or STOPPED. A coordinator bind failure is fatal to
// this Start: the session is not RUNNING and nothing is submitted.
func (c *Cluster) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateNew && c.state != StateStopped {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: start invalid in state %s", ErrAlreadyRunning, state)
	}

	// Fresh session: the previous result collection is invalidated.
	c.handle = nil

	token := gonanoid.Must(20)
	coord := coordinator.New(coordinator.Config{
		Listen:             c.opts.listen,
		AdvertiseHost:      c.opts.advertiseHost,
		Token:              token,
		ExpectedPartitions: c.dataset.NumPartitions(),
		ShutdownTimeout:    c.opts.shutdownTimeout,
		PingInterval:       c.opts.pingInterval,
	})
	if err := coord.Start(ctx); err != nil {
		c.mu.Unlock()
		return err
	}

	// The session context outlives the Start call; Stop cancels it.
	sessionCtx, cancel := context.WithCancel(context.Background())

	coordURL := coord.URL()
	factory := c.factory
	opts := c.opts
	task := func(tctx context.Context, p int, rows partition.Iterator) ([]byte, bool, error) {
		return partition.Run(tctx, partition.Env{
			Partition:        p,
			Rows:             rows,
			Config:           opts.config,
			CoordinatorURL:   coordURL,
			Token:            token,
			Host:             opts.advertiseHost,
			DeregisterOnExit: opts.deregisterOnExit,
		}, factory())
	}

	handle, err := c.exec.Submit(sessionCtx, c.dataset, task)
	if err != nil {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), c.opts.gracePeriod)
		defer stopCancel()
		_ = coord.Stop(stopCtx)
		c.mu.Unlock()
		return fmt.Errorf("submit partition servers: %w", err)
	}

	c.coord = coord
	c.handle = handle
	c.token = token
	c.sessionCancel = cancel
	c.state = StateRunning
	c.mu.Unlock()

	log.Printf("cluster running: %d partitions, coordinator %s", c.dataset.NumPartitions(), coordURL)

	if c.opts.awaitHosts {
		if err := coord.AwaitFull(ctx); err != nil {
			return fmt.Errorf("awaiting partition registrations: %w", err)
		}
	}
	return nil
}

// Stop ends the running session: it broadcasts shutdown to every
// registered host, cancels the session so unacknowledged workers are
// abandoned, stops the coordinator, and waits a bounded grace period
// for the executor submission to resolve. Hosts that failed to
// acknowledge are reported in the returned map, flagged timed-out or
// failed; they never make Stop itself fail.
//
// Valid only in RUNNING.
func (c *Cluster) Stop(ctx context.Context) (map[int]cluster.ShutdownResult, error) {
	c.mu.Lock()
	if c.state != StateRunning {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: stop invalid in state %s", ErrNotRunning, state)
	}
	c.state = StateStopping
	coord := c.coord
	handle := c.handle
	cancel := c.sessionCancel
	c.mu.Unlock()

	results := coord.ShutdownAll(ctx)

	// Abandon workers that never acknowledged; their serving loops exit
	// on session cancellation.
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), c.opts.gracePeriod)
	defer stopCancel()
	if err := coord.Stop(stopCtx); err != nil {
		log.Printf("cluster: coordinator stop: %v", err)
	}

	select {
	case <-handle.Done():
	case <-time.After(c.opts.gracePeriod):
		log.Printf("cluster: submission still resolving after %v grace period", c.opts.gracePeriod)
	case <-ctx.Done():
	}

	c.mu.Lock()
	c.coord = nil
	c.sessionCancel = nil
	c.state = StateStopped
	c.mu.Unlock()

	log.Printf("cluster stopped")
	return results, nil
}

// Hosts returns the current partition -> host/port snapshot. Valid
// only while RUNNING, and stale the moment it is returned: a partition
// may be relaunched elsewhere at any time.
func (c *Cluster) Hosts() (map[int]cluster.HostInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return nil, fmt.Errorf("%w: hosts invalid in state %s", ErrNotRunning, c.state)
	}
	return c.coord.Hosts(), nil
}

// AwaitHosts blocks until every expected partition has registered, or
// ctx is done. Valid only while RUNNING.
func (c *Cluster) AwaitHosts(ctx context.Context) error {
	c.mu.Lock()
	coord := c.coord
	running := c.state == StateRunning
	c.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	return coord.AwaitFull(ctx)
}

// Results waits for the session's executor submission to resolve and
// returns the per-partition results. Requires result capture to have
// been enabled at construction. The handle remains valid after Stop,
// until the next Start discards it.
func (c *Cluster) Results(ctx context.Context) ([]executor.Result, error) {
	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()

	if !c.opts.captureResults {
		return nil, ErrResultsNotCaptured
	}
	if handle == nil {
		return nil, ErrNoSession
	}
	return handle.Wait(ctx)
}
