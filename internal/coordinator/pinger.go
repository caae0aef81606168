package coordinator

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/dreamware/partgrid/internal/cluster"
)

// HostStatus tracks the reachability of a single registered partition
// server as observed by the Pinger.
type HostStatus struct {
	LastCheck        time.Time // Timestamp of the last probe
	LastOK           time.Time // Timestamp of the last successful probe
	Partition        int       // Partition index being tracked
	ConsecutiveFails int       // Failed probes since the last success
	Reachable        bool      // Whether the host currently answers pings
}

// Pinger periodically probes every registered partition server over its
// /control/ping route and tracks reachability. It is strictly
// observational: an unreachable host is logged and reported, never
// evicted from the registration table, because relaunching a failed
// partition is the executor's job and the relaunched instance will
// re-register on its own.
type Pinger struct {
	interval      time.Duration
	timeout       time.Duration
	maxFails      int
	snapshot      func() map[int]cluster.HostInfo
	client        *http.Client
	onUnreachable func(partition int)

	mu    sync.RWMutex
	hosts map[int]*HostStatus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPinger creates a pinger that probes the hosts returned by snapshot
// every interval. Hosts are marked unreachable after 3 consecutive
// failed probes, each bounded by a 2 second timeout.
func NewPinger(interval time.Duration, snapshot func() map[int]cluster.HostInfo) *Pinger {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pinger{
		interval: interval,
		timeout:  2 * time.Second,
		maxFails: 3,
		snapshot: snapshot,
		client:   &http.Client{Timeout: 2 * time.Second},
		hosts:    make(map[int]*HostStatus),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetOnUnreachable registers a callback invoked once each time a host
// transitions to unreachable. Must be called before Start.
func (p *Pinger) SetOnUnreachable(cb func(partition int)) {
	p.onUnreachable = cb
}

// Start runs the probe loop in the current goroutine until ctx or the
// pinger's own context is canceled. Run it with go.
func (p *Pinger) Start(ctx context.Context) {
	p.wg.Add(1)
	defer p.wg.Done()

	if ctx == nil {
		ctx = p.ctx
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sweep()
	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-ctx.Done():
			return
		case <-p.ctx.Done():
			return
		}
	}
}

// Stop cancels the probe loop and waits for it to exit.
func (p *Pinger) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Status returns a copy of the current per-partition reachability view.
func (p *Pinger) Status() map[int]HostStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[int]HostStatus, len(p.hosts))
	for partition, hs := range p.hosts {
		out[partition] = *hs
	}
	return out
}

// sweep probes every host in the current registration snapshot and
// drops tracking state for partitions that are no longer registered.
func (p *Pinger) sweep() {
	hosts := p.snapshot()

	for partition, hi := range hosts {
		p.probe(partition, hi)
	}

	p.mu.Lock()
	for partition := range p.hosts {
		if _, ok := hosts[partition]; !ok {
			delete(p.hosts, partition)
		}
	}
	p.mu.Unlock()
}

func (p *Pinger) probe(partition int, hi cluster.HostInfo) {
	p.mu.Lock()
	hs, ok := p.hosts[partition]
	if !ok {
		hs = &HostStatus{Partition: partition, Reachable: true, LastOK: time.Now()}
		p.hosts[partition] = hs
	}
	p.mu.Unlock()

	err := p.ping(hi)

	p.mu.Lock()
	defer p.mu.Unlock()

	hs.LastCheck = time.Now()
	if err != nil {
		hs.ConsecutiveFails++
		if hs.ConsecutiveFails >= p.maxFails && hs.Reachable {
			hs.Reachable = false
			log.Printf("coordinator: partition %d at %s:%d unreachable after %d failed pings: %v",
				partition, hi.Host, hi.Port, hs.ConsecutiveFails, err)
			if p.onUnreachable != nil {
				// Called without the lock held.
				go p.onUnreachable(partition)
			}
		}
		return
	}

	if !hs.Reachable {
		log.Printf("coordinator: partition %d at %s:%d reachable again", partition, hi.Host, hi.Port)
	}
	hs.Reachable = true
	hs.ConsecutiveFails = 0
	hs.LastOK = time.Now()
}

func (p *Pinger) ping(hi cluster.HostInfo) error {
	resp, err := p.client.Get(hi.URL() + "/control/ping")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping returned status %d", resp.StatusCode)
	}
	return nil
}
