package driver

import "errors"

// Sentinel errors returned by the Cluster.
var (
	// ErrExecutorRequired is returned when New is given a nil executor.
	ErrExecutorRequired = errors.New("partition executor is required")

	// ErrDatasetRequired is returned when New is given a nil dataset.
	ErrDatasetRequired = errors.New("dataset is required")

	// ErrFactoryRequired is returned when New is given a nil partition
	// server factory.
	ErrFactoryRequired = errors.New("partition server factory is required")

	// ErrAlreadyRunning is returned when Start is called on a running
	// cluster.
	ErrAlreadyRunning = errors.New("cluster already running")

	// ErrNotRunning is returned when Stop or Hosts is called outside a
	// running session.
	ErrNotRunning = errors.New("cluster not running")

	// ErrResultsNotCaptured is returned by Results when the cluster was
	// built without result capture.
	ErrResultsNotCaptured = errors.New("result capture not enabled")

	// ErrNoSession is returned by Results before the first session has
	// been started.
	ErrNoSession = errors.New("no session has been started")
)
