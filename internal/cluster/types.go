package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HostInfo is the reachable address of one partition server.
type HostInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// URL returns the base http URL for the host.
func (h HostInfo) URL() string {
	return fmt.Sprintf("http://%s:%d", h.Host, h.Port)
}

// RegisterRequest is posted by a partition server once it is ready to
// accept traffic.
type RegisterRequest struct {
	Partition int    `json:"partition"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
}

// DeregisterRequest is posted by a partition server that exits
// voluntarily, when deregistration on exit is enabled.
type DeregisterRequest struct {
	Partition int `json:"partition"`
}

// Ack is the generic success/failure response body for control-plane
// writes.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HostsResponse is the snapshot returned by GET /hosts. Callers must
// tolerate it going stale immediately: a partition may die and be
// relaunched at a new host/port at any time.
type HostsResponse struct {
	ExpectedPartitions int              `json:"expected_partitions"`
	FullCluster        bool             `json:"full_cluster"`
	Hosts              map[int]HostInfo `json:"hosts"`
}

// StatusResponse summarizes coordinator progress for GET /status.
type StatusResponse struct {
	ExpectedPartitions int  `json:"expected_partitions"`
	CurrentPartitions  int  `json:"current_partitions"`
	FullCluster        bool `json:"full_cluster"`
}

// ShutdownResult records the per-host outcome of a broadcast shutdown.
// A timed-out host is treated as already gone, not as a fatal error.
type ShutdownResult struct {
	OK       bool   `json:"ok"`
	TimedOut bool   `json:"timed_out"`
	Error    string `json:"error,omitempty"`
}

// httpClient carries no global timeout. Every call is bounded by its
// context; a client-level Timeout would silently cap deadlines the
// caller sized larger.
var httpClient = &http.Client{}

// PostJSON sends body as JSON to url and decodes the response into out
// when out is non-nil. The request is bounded by ctx; responses with
// status >= 300 are errors.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
