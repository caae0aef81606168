// Package coordinator implements the driver-side control plane for a
// partgrid cluster session. See doc.go for complete package
// documentation.
package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/dreamware/partgrid/internal/cluster"
)

// Validation errors returned by Registry.Upsert.
var (
	// ErrInvalidPartition is returned for a negative partition index.
	ErrInvalidPartition = errors.New("partition index must be >= 0")

	// ErrInvalidHost is returned for an empty host.
	ErrInvalidHost = errors.New("host cannot be empty")

	// ErrInvalidPort is returned for a port outside [1, 65535].
	ErrInvalidPort = errors.New("port must be in range [1, 65535]")
)

// Registration records where one partition server is reachable and when
// it registered. Registrations are transient: they live for the
// duration of one cluster session and are discarded on stop.
type Registration struct {
	RegisteredAt time.Time // When this registration arrived
	Host         string    // Reachable host for the partition server
	Partition    int       // Partition index, unique per session
	Port         int       // Listening port for the partition server
}

// Registry is the registration table: a concurrent mapping from
// partition index to the host/port where that partition's server is
// reachable. It is the authoritative, transient source of truth for
// partition placement during one session.
//
// The table must absorb concurrent, unordered, at-least-once
// registration traffic: the partition executor gives no ordering
// guarantee, and a relaunched partition re-registers under the same
// index from a different host/port. Upsert is therefore idempotent and
// last-write-wins per partition index. Two live instances for the same
// index (a transient split-brain during relaunch) are accepted, never
// rejected; the later registration simply replaces the earlier one.
//
// Concurrency model:
//   - Each entry update is atomic per partition index.
//   - Reads never block writes for unrelated partitions.
//   - Hosts returns a point-in-time snapshot that is immediately stale.
type Registry struct {
	entries *xsync.Map[int, Registration]
}

// NewRegistry creates an empty registration table.
func NewRegistry() *Registry {
	return &Registry{
		entries: xsync.NewMap[int, Registration](),
	}
}

// Upsert inserts or replaces the registration for a partition. It
// returns the previous registration, if any, so callers can log
// placement changes. A pre-existing registration for the same index is
// never an error; it is replaced.
//
// Only malformed input fails: a negative index, empty host, or
// out-of-range port.
func (r *Registry) Upsert(partition int, host string, port int) (prev Registration, replaced bool, err error) {
	if partition < 0 {
		return Registration{}, false, fmt.Errorf("%w: got %d", ErrInvalidPartition, partition)
	}
	if host == "" {
		return Registration{}, false, ErrInvalidHost
	}
	if port < 1 || port > 65535 {
		return Registration{}, false, fmt.Errorf("%w: got %d", ErrInvalidPort, port)
	}

	// Atomic swap: concurrent upserts for one index each see the entry
	// they actually displaced.
	prev, replaced = r.entries.LoadAndStore(partition, Registration{
		Partition:    partition,
		Host:         host,
		Port:         port,
		RegisteredAt: time.Now(),
	})
	return prev, replaced, nil
}

// Get returns the current registration for a partition.
func (r *Registry) Get(partition int) (Registration, bool) {
	return r.entries.Load(partition)
}

// Remove deletes the registration for a partition. Removing an
// unregistered partition is a no-op.
func (r *Registry) Remove(partition int) {
	r.entries.Delete(partition)
}

// Len returns the number of currently registered partitions.
func (r *Registry) Len() int {
	return r.entries.Size()
}

// Hosts returns a snapshot of the table as partition -> host/port.
// The snapshot is a copy; mutating it does not affect the table, and it
// may go stale the moment it is taken.
func (r *Registry) Hosts() map[int]cluster.HostInfo {
	hosts := make(map[int]cluster.HostInfo, r.entries.Size())
	r.entries.Range(func(partition int, reg Registration) bool {
		hosts[partition] = cluster.HostInfo{Host: reg.Host, Port: reg.Port}
		return true
	})
	return hosts
}
