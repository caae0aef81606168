package partition

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dreamware/partgrid/internal/cluster"
)

// Registration retry policy, matching the window a coordinator needs to
// come up on the driver side.
const (
	registerAttempts = 10
	registerDelay    = 400 * time.Millisecond
	registerTimeout  = 5 * time.Second
)

// Env describes one partition server instance: which partition it
// serves, the rows it owns, how to reach the coordinator, and the
// runtime configuration handed down by the driver. Run fills Host and
// Port once the listener is bound, before Init is called.
type Env struct {
	// Partition is the index of the partition this instance serves.
	Partition int

	// Rows streams the partition's data. May be nil for servers that
	// need no per-partition state.
	Rows Iterator

	// Config carries opaque runtime configuration from the driver.
	Config map[string]any

	// CoordinatorURL is the base URL of the session coordinator.
	CoordinatorURL string

	// Token is the session token appended to control-plane requests.
	Token string

	// Host is the address advertised to the coordinator. Defaults to
	// the OS hostname.
	Host string

	// Port is the port to bind. Zero picks an ephemeral port.
	Port int

	// DeregisterOnExit removes this partition's registration when the
	// server exits voluntarily (context cancellation) rather than
	// through a coordinator-driven shutdown.
	DeregisterOnExit bool
}

// Server is the capability set every partition server must satisfy.
// Embed Base to pick up no-op defaults for the optional hooks.
type Server interface {
	// Init builds any in-memory state needed to answer requests. It
	// runs once per instance launch, after the listener is bound and
	// before serving begins.
	Init(env *Env) error

	// Routes returns the application handlers, keyed by path. They are
	// installed once at server construction under the /app prefix.
	Routes() map[string]http.HandlerFunc

	// Result produces the optional payload collected when the session
	// stops. It is called exactly once, only during the shutdown
	// sequence.
	Result() (payload []byte, ok bool)
}

// Base provides no-op implementations of the optional Server hooks.
type Base struct{}

func (Base) Init(*Env) error                     { return nil }
func (Base) Routes() map[string]http.HandlerFunc { return nil }
func (Base) Result() ([]byte, bool)              { return nil, false }

// Run executes the worker-side contract for one partition instance:
// bind a listener, initialize the server, register with the
// coordinator, then serve until a shutdown request or context
// cancellation, finally producing the optional result payload.
//
// Run does not return until the serving loop has exited. If the
// process dies instead, the partition executor is relied upon to
// relaunch it; the fresh instance runs its own Init and re-registers
// under the same partition index.
func Run(ctx context.Context, env Env, srv Server) ([]byte, bool, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", env.Port))
	if err != nil {
		return nil, false, fmt.Errorf("partition %d: listen: %w", env.Partition, err)
	}

	env.Port = ln.Addr().(*net.TCPAddr).Port
	if env.Host == "" {
		env.Host = cluster.Hostname()
	}

	if err := srv.Init(&env); err != nil {
		ln.Close()
		return nil, false, fmt.Errorf("partition %d: init: %w", env.Partition, err)
	}

	shutdownCh := make(chan struct{})
	var shutdownOnce sync.Once
	trigger := func() {
		shutdownOnce.Do(func() { close(shutdownCh) })
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/control/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/control/shutdown", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if env.Token != "" && r.URL.Query().Get("token") != env.Token {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(cluster.Ack{Error: "invalid token"})
			return
		}
		// Acknowledge before the serving loop winds down.
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cluster.Ack{OK: true})
		trigger()
	})
	for path, handler := range srv.Routes() {
		mux.HandleFunc("/app"+path, handler)
	}

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	log.Printf("partition[%d] serving on %s:%d", env.Partition, env.Host, env.Port)

	if err := register(ctx, env); err != nil {
		shutdownHTTP(httpSrv)
		return nil, false, err
	}

	voluntary := false
	select {
	case <-shutdownCh:
	case <-ctx.Done():
		voluntary = true
	case err := <-serveErr:
		return nil, false, fmt.Errorf("partition %d: serve: %w", env.Partition, err)
	}

	shutdownHTTP(httpSrv)

	if voluntary && env.DeregisterOnExit {
		deregister(env)
	}

	payload, ok := srv.Result()
	log.Printf("partition[%d] stopped (result=%v)", env.Partition, ok)
	return payload, ok, nil
}

// register announces the server to the coordinator, retrying to cover
// coordinator startup delays and transient network failures.
func register(ctx context.Context, env Env) error {
	url := env.CoordinatorURL + "/register"
	if env.Token != "" {
		url += "?token=" + env.Token
	}
	body := cluster.RegisterRequest{Partition: env.Partition, Host: env.Host, Port: env.Port}

	var lastErr error
	for i := 0; i < registerAttempts; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, registerTimeout)
		lastErr = cluster.PostJSON(attemptCtx, url, body, nil)
		cancel()
		if lastErr == nil {
			log.Printf("partition[%d] registered with coordinator @ %s", env.Partition, env.CoordinatorURL)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(registerDelay):
		}
	}
	return fmt.Errorf("partition %d: register with coordinator: %w", env.Partition, lastErr)
}

// deregister best-effort removes this partition's entry on voluntary
// exit. Failure is logged, not fatal: the session is winding down or
// the coordinator already forgot us.
func deregister(env Env) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := env.CoordinatorURL + "/deregister"
	if env.Token != "" {
		url += "?token=" + env.Token
	}
	if err := cluster.PostJSON(ctx, url, cluster.DeregisterRequest{Partition: env.Partition}, nil); err != nil {
		log.Printf("partition[%d] deregister: %v", env.Partition, err)
	}
}

func shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("partition server shutdown: %v", err)
	}
}
