package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/partgrid/internal/cluster"
)

// Lifecycle errors returned by Start, Stop, and AwaitFull.
var (
	// ErrAlreadyStarted is returned when Start is called on a running coordinator.
	ErrAlreadyStarted = errors.New("coordinator already started")

	// ErrNotStarted is returned when Stop or AwaitFull is called before Start.
	ErrNotStarted = errors.New("coordinator not started")

	// ErrNoExpectedCount is returned by AwaitFull when the expected
	// partition count was not configured.
	ErrNoExpectedCount = errors.New("expected partition count not configured")
)

// defaultShutdownTimeout bounds how long ShutdownAll waits on any
// single host before treating it as already gone.
const defaultShutdownTimeout = 5 * time.Second

// Config carries the coordinator's tunable settings. The zero value is
// usable: an ephemeral loopback listener, no token, no ping sweep, and
// the default per-host shutdown timeout.
type Config struct {
	// Listen is the host:port the control-plane server binds.
	// Port 0 picks an ephemeral port. Default: "127.0.0.1:0".
	Listen string

	// AdvertiseHost overrides the host used in URL(). Needed when the
	// listener binds a wildcard address.
	AdvertiseHost string

	// Token, when non-empty, must accompany register, deregister, and
	// shutdown requests as the "token" query parameter. Requests with a
	// missing or wrong token are rejected with 403.
	Token string

	// ExpectedPartitions is the number of partition servers expected to
	// register. Zero means unknown; AwaitFull is then unavailable.
	ExpectedPartitions int

	// ShutdownTimeout bounds each per-host shutdown request.
	ShutdownTimeout time.Duration

	// PingInterval, when positive, enables a periodic reachability
	// sweep of registered hosts over their /control/ping route.
	PingInterval time.Duration
}

// Coordinator is the control-plane server for one cluster session. It
// wraps the registration table with an HTTP surface for partition
// servers (register, deregister) and clients (hosts, status), and gives
// the driver a broadcast-shutdown primitive over the current snapshot.
//
// The listening socket's lifecycle is tied to the session: Start binds
// it, Stop releases it, and a stopped coordinator can be started again.
// The registration table itself persists across Start/Stop of the same
// Coordinator instance; session freshness is the driver's concern (it
// builds a new Coordinator per session).
type Coordinator struct {
	cfg      Config
	registry *Registry
	metrics  *metrics
	pinger   *Pinger

	mu       sync.Mutex
	httpSrv  *http.Server
	url      string
	running  bool
	full     chan struct{}
	fullOnce *sync.Once
}

// New creates a coordinator around a fresh registration table. Zero
// config fields are filled with defaults.
func New(cfg Config) *Coordinator {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:0"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Coordinator{
		cfg:      cfg,
		registry: NewRegistry(),
		metrics:  newMetrics(),
	}
}

// Registry exposes the underlying registration table.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Start binds the control-plane listener and begins serving. It returns
// once the listener is live and accepting registrations; a bind failure
// is returned synchronously and leaves the coordinator stopped.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", c.cfg.Listen)
	if err != nil {
		return fmt.Errorf("coordinator listen on %s: %w", c.cfg.Listen, err)
	}

	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		ln.Close()
		return fmt.Errorf("coordinator listen on %s: unexpected address %v", c.cfg.Listen, ln.Addr())
	}
	host := c.cfg.AdvertiseHost
	if host == "" {
		if addr.IP.IsUnspecified() {
			host = cluster.Hostname()
		} else {
			host = addr.IP.String()
		}
	}
	c.url = fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(addr.Port)))

	mux := http.NewServeMux()
	mux.HandleFunc("/register", c.handleRegister)
	mux.HandleFunc("/deregister", c.handleDeregister)
	mux.HandleFunc("/hosts", c.handleHosts)
	mux.HandleFunc("/status", c.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", c.metrics.handler)

	c.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	c.full = make(chan struct{})
	c.fullOnce = &sync.Once{}

	srv := c.httpSrv
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("coordinator: serve: %v", err)
		}
	}()

	if c.cfg.PingInterval > 0 {
		// The sweep lives as long as the session, not as long as the
		// Start call; Stop terminates it through pinger.Stop.
		c.pinger = NewPinger(c.cfg.PingInterval, c.registry.Hosts)
		go c.pinger.Start(nil)
	}

	c.running = true
	log.Printf("coordinator listening on %s", c.url)
	return nil
}

// Stop shuts the control-plane server down gracefully, bounded by ctx.
// Registrations already in the table are left in place; a subsequent
// Start serves them again.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotStarted
	}
	if c.pinger != nil {
		c.pinger.Stop()
		c.pinger = nil
	}

	err := c.httpSrv.Shutdown(ctx)
	c.httpSrv = nil
	c.running = false
	log.Printf("coordinator stopped")
	return err
}

// URL returns the coordinator's base URL. Valid only after Start.
func (c *Coordinator) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Hosts returns a snapshot of the registration table. The snapshot may
// go stale immediately: a partition may die and be relaunched at a new
// host/port at any time.
func (c *Coordinator) Hosts() map[int]cluster.HostInfo {
	return c.registry.Hosts()
}

// FullCluster reports whether every expected partition has registered.
// Always false when the expected count is not configured.
func (c *Coordinator) FullCluster() bool {
	return c.cfg.ExpectedPartitions > 0 && c.registry.Len() >= c.cfg.ExpectedPartitions
}

// AwaitFull blocks until all expected partitions have registered, or
// ctx is done.
func (c *Coordinator) AwaitFull(ctx context.Context) error {
	if c.cfg.ExpectedPartitions <= 0 {
		return ErrNoExpectedCount
	}

	c.mu.Lock()
	full := c.full
	c.mu.Unlock()
	if full == nil {
		return ErrNotStarted
	}

	select {
	case <-full:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PingStatus returns the reachability sweep's view of registered hosts,
// or nil when the sweep is disabled.
func (c *Coordinator) PingStatus() map[int]HostStatus {
	c.mu.Lock()
	p := c.pinger
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Status()
}

// ShutdownHost sends a shutdown request to the server for one
// partition and removes its registration on acknowledgement. A host
// that fails to acknowledge within the configured timeout is reported
// as timed out and treated as already gone.
func (c *Coordinator) ShutdownHost(ctx context.Context, partition int) cluster.ShutdownResult {
	reg, ok := c.registry.Get(partition)
	if !ok {
		return cluster.ShutdownResult{Error: "partition not registered"}
	}
	return c.shutdownHost(ctx, partition, cluster.HostInfo{Host: reg.Host, Port: reg.Port})
}

// ShutdownAll broadcasts a shutdown request to every host in the
// current snapshot of the registration table, in parallel, and returns
// the per-host outcome. One unresponsive host never blocks the others
// and never aborts the operation: it is flagged timed-out and skipped.
func (c *Coordinator) ShutdownAll(ctx context.Context) map[int]cluster.ShutdownResult {
	snapshot := c.registry.Hosts()

	results := make(map[int]cluster.ShutdownResult, len(snapshot))
	var mu sync.Mutex

	var g errgroup.Group
	for partition, hi := range snapshot {
		g.Go(func() error {
			res := c.shutdownHost(ctx, partition, hi)
			mu.Lock()
			results[partition] = res
			mu.Unlock()
			return nil
		})
	}
	// Worker errors are contained in the per-host results.
	_ = g.Wait()

	log.Printf("coordinator: shutdown broadcast sent to %d hosts", len(snapshot))
	return results
}

func (c *Coordinator) shutdownHost(ctx context.Context, partition int, hi cluster.HostInfo) cluster.ShutdownResult {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
	defer cancel()

	url := hi.URL() + "/control/shutdown"
	if c.cfg.Token != "" {
		url += "?token=" + c.cfg.Token
	}

	if err := cluster.PostJSON(hctx, url, struct{}{}, nil); err != nil {
		res := cluster.ShutdownResult{
			TimedOut: isTimeout(err),
			Error:    err.Error(),
		}
		c.metrics.shutdownsFailed.Inc()
		log.Printf("coordinator: shutdown of partition %d at %s:%d failed (timeout=%v): %v",
			partition, hi.Host, hi.Port, res.TimedOut, err)
		return res
	}

	c.registry.Remove(partition)
	c.metrics.shutdownsOK.Inc()
	c.metrics.registered.Set(float64(c.registry.Len()))
	return cluster.ShutdownResult{OK: true}
}

func (c *Coordinator) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !c.authorized(r) {
		writeAck(w, http.StatusForbidden, "invalid token")
		return
	}

	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAck(w, http.StatusBadRequest, "bad json")
		return
	}

	prev, replaced, err := c.registry.Upsert(req.Partition, req.Host, req.Port)
	if err != nil {
		writeAck(w, http.StatusBadRequest, err.Error())
		return
	}

	c.metrics.registrations.Inc()
	c.metrics.registered.Set(float64(c.registry.Len()))

	if replaced && (prev.Host != req.Host || prev.Port != req.Port) {
		// Not an error: the executor relaunched this partition elsewhere.
		c.metrics.replacements.Inc()
		log.Printf("coordinator: partition %d moved from %s:%d to %s:%d",
			req.Partition, prev.Host, prev.Port, req.Host, req.Port)
	} else {
		log.Printf("coordinator: registered partition %d at %s:%d", req.Partition, req.Host, req.Port)
	}

	if c.FullCluster() {
		c.mu.Lock()
		once, full := c.fullOnce, c.full
		c.mu.Unlock()
		if once != nil {
			once.Do(func() {
				log.Printf("coordinator: all %d expected partitions have registered", c.cfg.ExpectedPartitions)
				close(full)
			})
		}
	}

	writeAck(w, http.StatusOK, "")
}

func (c *Coordinator) handleDeregister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !c.authorized(r) {
		writeAck(w, http.StatusForbidden, "invalid token")
		return
	}

	var req cluster.DeregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAck(w, http.StatusBadRequest, "bad json")
		return
	}

	c.registry.Remove(req.Partition)
	c.metrics.registered.Set(float64(c.registry.Len()))
	log.Printf("coordinator: deregistered partition %d", req.Partition)
	writeAck(w, http.StatusOK, "")
}

func (c *Coordinator) handleHosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cluster.HostsResponse{
		ExpectedPartitions: c.cfg.ExpectedPartitions,
		FullCluster:        c.FullCluster(),
		Hosts:              c.registry.Hosts(),
	})
}

func (c *Coordinator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cluster.StatusResponse{
		ExpectedPartitions: c.cfg.ExpectedPartitions,
		CurrentPartitions:  c.registry.Len(),
		FullCluster:        c.FullCluster(),
	})
}

func (c *Coordinator) authorized(r *http.Request) bool {
	return c.cfg.Token == "" || r.URL.Query().Get("token") == c.cfg.Token
}

func writeAck(w http.ResponseWriter, status int, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(cluster.Ack{OK: errMsg == "", Error: errMsg})
}

// isTimeout reports whether err is a deadline or network timeout, as
// opposed to a refused connection or an HTTP-level failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
