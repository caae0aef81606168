// Package main runs a demonstration partgrid cluster on the local
// executor: it builds a synthetic partitioned dataset, launches the
// built-in key/value partition server on every partition, queries each
// server directly, then stops the cluster and prints the collected
// per-partition results.
//
// Configuration:
//   - DRIVER_CONFIG: optional path to a YAML config file
//
// Config file keys (all optional):
//
//	listen: "127.0.0.1:0"        # coordinator listen address
//	partitions: 4                # number of dataset partitions
//	rows_per_partition: 16       # synthetic rows per partition
//	capture_results: true        # collect per-partition payloads
//	ping_interval_seconds: 0     # host reachability sweep, 0 = off
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/partgrid/internal/cluster"
	"github.com/dreamware/partgrid/internal/driver"
	"github.com/dreamware/partgrid/internal/executor"
	"github.com/dreamware/partgrid/internal/partition"
)

type config struct {
	Listen              string `yaml:"listen"`
	Partitions          int    `yaml:"partitions"`
	RowsPerPartition    int    `yaml:"rows_per_partition"`
	CaptureResults      bool   `yaml:"capture_results"`
	PingIntervalSeconds int    `yaml:"ping_interval_seconds"`
}

func loadConfig(path string) (config, error) {
	cfg := config{
		Listen:           "127.0.0.1:0",
		Partitions:       4,
		RowsPerPartition: 16,
		CaptureResults:   true,
	}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// syntheticDataset builds one "key=value" row set per partition.
func syntheticDataset(partitions, rowsPer int) executor.SliceDataset {
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

func main() {
	cfg, err := loadConfig(getenv("DRIVER_CONFIG", ""))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	opts := []driver.Option{
		driver.WithListen(cfg.Listen),
		driver.WithAdvertiseHost("127.0.0.1"),
		driver.WithAwaitHosts(),
	}
	if cfg.CaptureResults {
		opts = append(opts, driver.WithCaptureResults())
	}
	if cfg.PingIntervalSeconds > 0 {
		opts = append(opts, driver.WithPingInterval(time.Duration(cfg.PingIntervalSeconds)*time.Second))
	}

	cl, err := driver.New(
		executor.NewLocal(executor.LocalConfig{}),
		syntheticDataset(cfg.Partitions, cfg.RowsPerPartition),
		func() partition.Server { return partition.NewKVServer() },
		opts...,
	)
	if err != nil {
		log.Fatalf("build cluster: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := cl.Start(ctx); err != nil {
		log.Fatalf("start cluster: %v", err)
	}

	hosts, err := cl.Hosts()
	if err != nil {
		log.Fatalf("hosts: %v", err)
	}

	parts := make([]int, 0, len(hosts))
	for p := range hosts {
		parts = append(parts, p)
	}
	slices.Sort(parts)

	for _, p := range parts {
		hi := hosts[p]
		var stats struct {
			Partition int                  `json:"partition"`
			Store     partition.StoreStats `json:"store"`
		}
		if err := cluster.GetJSON(ctx, hi.URL()+"/app/stats", &stats); err != nil {
			log.Printf("partition %d at %s:%d: stats: %v", p, hi.Host, hi.Port, err)
			continue
		}
		log.Printf("partition %d at %s:%d: %d keys, %d bytes",
			p, hi.Host, hi.Port, stats.Store.Keys, stats.Store.Bytes)
	}

	outcome, err := cl.Stop(ctx)
	if err != nil {
		log.Fatalf("stop cluster: %v", err)
	}
	for p, res := range outcome {
		if !res.OK {
			log.Printf("partition %d shutdown failed (timeout=%v): %s", p, res.TimedOut, res.Error)
		}
	}

	if cfg.CaptureResults {
		results, err := cl.Results(ctx)
		if err != nil {
			log.Fatalf("results: %v", err)
		}
		for _, res := range results {
			if res.Err != nil {
				log.Printf("partition %d failed: %v", res.Partition, res.Err)
				continue
			}
			if res.Present {
				log.Printf("partition %d result: %s", res.Partition, res.Payload)
			}
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
