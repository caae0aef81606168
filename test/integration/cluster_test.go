package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/partgrid/internal/cluster"
	"github.com/dreamware/partgrid/internal/driver"
	"github.com/dreamware/partgrid/internal/executor"
	"github.com/dreamware/partgrid/internal/partition"
)

// keyedDataset builds "key-p-i=value-p-i" rows, rowsPer per partition.
func keyedDataset(partitions, rowsPer int) executor.SliceDataset {
	ds := make(executor.SliceDataset, partitions)
	for p := 0; p < partitions; p++ {
		rows := make([][]byte, rowsPer)
		for i := 0; i < rowsPer; i++ {
			rows[i] = []byte(fmt.Sprintf("key-%d-%d=value-%d-%d", p, i, p, i))
		}
		ds[p] = rows
	}
	return ds
}

func newKVCluster(t *testing.T, partitions, rowsPer int, extra ...driver.Option) *driver.Cluster {
	t.Helper()

	opts := append([]driver.Option{
		driver.WithListen("127.0.0.1:0"),
		driver.WithAdvertiseHost("127.0.0.1"),
		driver.WithAwaitHosts(),
		driver.WithGracePeriod(5 * time.Second),
	}, extra...)

	cl, err := driver.New(
		executor.NewLocal(executor.LocalConfig{}),
		keyedDataset(partitions, rowsPer),
		func() partition.Server { return partition.NewKVServer() },
		opts...,
	)
	require.NoError(t, err)
	return cl
}

// TestKeyValueSession drives a whole session end to end: every
// partition server comes up holding its own rows, answers reads and
// writes on its data plane, and reports final statistics through result
// collection when the session stops.
func TestKeyValueSession(t *testing.T) {
	const partitions, rowsPer = 3, 8

	cl := newKVCluster(t, partitions, rowsPer, driver.WithCaptureResults())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, cl.Start(ctx))

	hosts, err := cl.Hosts()
	require.NoError(t, err)
	require.Len(t, hosts, partitions)

	// Each partition holds exactly its own rows.
	for p, hi := range hosts {
		var listing struct {
			Keys  []string `json:"keys"`
			Count int      `json:"count"`
		}
		require.NoError(t, cluster.GetJSON(ctx, hi.URL()+"/app/store", &listing))
		require.Equal(t, rowsPer, listing.Count, "partition %d", p)
		for _, key := range listing.Keys {
			require.Contains(t, key, fmt.Sprintf("key-%d-", p),
				"partition %d must only hold its own rows", p)
		}

		// Point read of a known row.
		resp, err := httpGet(ctx, hi.URL()+fmt.Sprintf("/app/store/key-%d-0", p))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("value-%d-0", p), resp)
	}

	outcome, err := cl.Stop(ctx)
	require.NoError(t, err)
	for p, res := range outcome {
		require.True(t, res.OK, "partition %d shutdown: %+v", p, res)
	}

	// One stats record per partition.
	results, err := cl.Results(ctx)
	require.NoError(t, err)
	require.Len(t, results, partitions)
	seen := make(map[int]bool)
	for _, res := range results {
		require.NoError(t, res.Err)
		require.True(t, res.Present)

		var stats struct {
			Partition int `json:"partition"`
			Keys      int `json:"keys"`
		}
		require.NoError(t, json.Unmarshal(res.Payload, &stats))
		require.Equal(t, rowsPer, stats.Keys)
		require.False(t, seen[stats.Partition], "duplicate record for partition %d", stats.Partition)
		seen[stats.Partition] = true
	}
	require.Len(t, seen, partitions)
}

// TestRepeatedSessions runs start/stop twice on one cluster value and
// checks that nothing from the first session leaks into the second.
func TestRepeatedSessions(t *testing.T) {
	cl := newKVCluster(t, 2, 4, driver.WithCaptureResults())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for session := 0; session < 2; session++ {
		require.NoError(t, cl.Start(ctx), "session %d", session)

		hosts, err := cl.Hosts()
		require.NoError(t, err)
		require.Len(t, hosts, 2, "session %d table must hold exactly the live servers", session)

		for p, hi := range hosts {
			var stats struct {
				Partition int                  `json:"partition"`
				Store     partition.StoreStats `json:"store"`
			}
			require.NoError(t, cluster.GetJSON(ctx, hi.URL()+"/app/stats", &stats))
			require.Equal(t, p, stats.Partition)
			require.Equal(t, 4, stats.Store.Keys)
			// A fresh instance starts with fresh counters.
			require.Equal(t, 0, stats.Store.Gets, "session %d partition %d", session, p)
		}

		outcome, err := cl.Stop(ctx)
		require.NoError(t, err)
		require.Len(t, outcome, 2)

		results, err := cl.Results(ctx)
		require.NoError(t, err)
		require.Len(t, results, 2, "session %d", session)
	}
}

// httpGet fetches a raw value; stored values are plain bytes, not JSON.
func httpGet(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
