// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// measure-worker measures coverage snapshots for a batch of trial
// cycles. The platform scheduler starts it with the experiment
// environment set and a JSON file of measurement requests; responses
// are written as JSON lines and successful snapshots are additionally
// recorded in a worker-local results database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/google/fuzzmeasure/pkg/config"
	"github.com/google/fuzzmeasure/pkg/experiment"
	"github.com/google/fuzzmeasure/pkg/filestore"
	"github.com/google/fuzzmeasure/pkg/log"
	"github.com/google/fuzzmeasure/pkg/measurer"
	"github.com/google/fuzzmeasure/pkg/osutil"
	"github.com/google/fuzzmeasure/pkg/resultdb"
	"github.com/google/fuzzmeasure/pkg/stat"
	"github.com/google/fuzzmeasure/pkg/tool"
)

var (
	flagConfig   = flag.String("config", "", "worker configuration file (optional)")
	flagRequests = flag.String("requests", "", "JSON file with the measurement requests")
	flagOutput   = flag.String("output", "", "file for response JSON lines (default stdout)")
	flagProcs    = flag.Int("procs", 0, "parallel measurements (overrides config)")
	flagHTTP     = flag.String("http", "", "TCP address to serve debug HTTP on (e.g. localhost:50000)")
)

// Config is the worker configuration file. Every field defaults to the
// corresponding experiment environment variable, so in production the
// file usually only exists to override a default or two.
type Config struct {
	// Experiment name (defaults to $EXPERIMENT).
	Experiment string `json:"experiment,omitempty"`
	// Experiment filestore root URI (defaults to $EXPERIMENT_FILESTORE).
	Filestore string `json:"experiment_filestore,omitempty"`
	// Local scratch workspace root (defaults to $WORK).
	WorkDir string `json:"work_dir,omitempty"`
	// Interval between corpus snapshots, seconds (defaults to $SNAPSHOT_PERIOD).
	SnapshotPeriodSec int `json:"snapshot_period_sec,omitempty"`
	// Directory with per-benchmark descriptors (defaults to $BENCHMARKS_DIR).
	BenchmarksDir string `json:"benchmarks_dir,omitempty"`
	// Timeout for one coverage run, seconds (default 1800).
	RunTimeoutSec int `json:"run_timeout_sec,omitempty"`
	// Number of parallel measurements (default 4).
	Procs int `json:"procs,omitempty"`
	// Path of the local snapshot results database
	// (default <work_dir>/measure-results.db).
	ResultDB string `json:"result_db,omitempty"`
}

func main() {
	defer tool.Init()()
	log.EnableLogCaching(1000, 1<<20)
	cfg, ecfg, err := loadConfig()
	if err != nil {
		tool.Fail(err)
	}
	var requests []measurer.Request
	if err := config.LoadFile(*flagRequests, &requests); err != nil {
		tool.Fail(err)
	}
	for _, req := range requests {
		if err := req.Validate(); err != nil {
			tool.Failf("bad request %+v: %v", req, err)
		}
	}
	if *flagHTTP != "" {
		serveHTTP(*flagHTTP)
	}

	shutdown := make(chan struct{})
	osutil.HandleInterrupts(shutdown)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-shutdown
		log.Logf(0, "shutting down, finishing in-flight measurements...")
		cancel()
	}()

	store, err := filestore.New(ctx, ecfg.Filestore)
	if err != nil {
		tool.Fail(err)
	}
	defer store.Close()
	unlock, err := osutil.LockFile(cfg.ResultDB + ".lock")
	if err != nil {
		tool.Fail(err)
	}
	defer unlock()
	db, err := resultdb.Open(cfg.ResultDB, false)
	if err != nil {
		tool.Fail(err)
	}
	output := os.Stdout
	if *flagOutput != "" {
		if output, err = os.Create(*flagOutput); err != nil {
			tool.Fail(err)
		}
		defer output.Close()
	}

	m := measurer.New(ecfg, store)
	if cfg.RunTimeoutSec > 0 {
		m.RunTimeout = time.Duration(cfg.RunTimeoutSec) * time.Second
	}
	go heartbeat()
	log.Logf(0, "measuring %v requests with %v procs", len(requests), cfg.Procs)

	var outputMu sync.Mutex
	enc := json.NewEncoder(output)
	failed := 0
	var eg errgroup.Group
	eg.SetLimit(cfg.Procs)
	for _, req := range requests {
		req := req
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			resp, err := m.MeasureTrialCoverage(ctx, req)
			outputMu.Lock()
			defer outputMu.Unlock()
			if err != nil {
				log.Errorf("%v: measurement failed: %v", req, err)
				failed++
				return nil
			}
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if resp.Snapshot != nil {
				val, err := json.Marshal(resp.Snapshot)
				if err != nil {
					return err
				}
				db.Save(resultdb.Key(req.Benchmark, req.Fuzzer, req.Trial, req.Cycle),
					val, uint64(req.Cycle))
			}
			return nil
		})
	}
	err = eg.Wait()
	if flushErr := db.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		tool.Fail(err)
	}
	log.Logf(0, "done: %v requests, %v failed", len(requests), failed)
	if failed != 0 {
		os.Exit(1)
	}
}

func loadConfig() (*Config, *experiment.Config, error) {
	// Defaults come from the environment, the config file overrides
	// them, flags override the file.
	cfg := &Config{
		Experiment:    os.Getenv(experiment.EnvExperiment),
		Filestore:     os.Getenv(experiment.EnvFilestore),
		WorkDir:       os.Getenv(experiment.EnvWorkDir),
		BenchmarksDir: os.Getenv(experiment.EnvBenchmarksDir),
	}
	if period := os.Getenv(experiment.EnvSnapshotPeriod); period != "" {
		sec, err := strconv.Atoi(period)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid %v value %q",
				experiment.EnvSnapshotPeriod, period)
		}
		cfg.SnapshotPeriodSec = sec
	}
	if err := config.LoadOptionalFile(*flagConfig, cfg); err != nil {
		return nil, nil, err
	}
	if *flagProcs > 0 {
		cfg.Procs = *flagProcs
	}
	if cfg.Procs <= 0 {
		cfg.Procs = 4
	}
	if cfg.ResultDB == "" {
		cfg.ResultDB = filepath.Join(cfg.WorkDir, "measure-results.db")
	}
	ecfg := &experiment.Config{
		Name:           cfg.Experiment,
		Filestore:      cfg.Filestore,
		WorkDir:        cfg.WorkDir,
		SnapshotPeriod: experiment.DefaultSnapshotPeriod,
		BenchmarksDir:  cfg.BenchmarksDir,
	}
	if cfg.SnapshotPeriodSec != 0 {
		ecfg.SnapshotPeriod = time.Duration(cfg.SnapshotPeriodSec) * time.Second
	}
	if err := ecfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, ecfg, nil
}

func serveHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "\t")
		enc.Encode(stat.Collect(stat.All))
	})
	mux.HandleFunc("/log", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(log.CachedLogOutput()))
	})
	log.Logf(0, "serving debug http on http://%v", addr)
	go func() {
		if err := http.ListenAndServe(addr, handlers.CompressHandler(mux)); err != nil {
			tool.Failf("failed to serve http on %v: %v", addr, err)
		}
	}()
}

func heartbeat() {
	for range time.NewTicker(time.Minute).C {
		var parts []string
		for _, ui := range stat.Collect(stat.Console) {
			parts = append(parts, fmt.Sprintf("%v=%v", ui.Name, ui.Value))
		}
		log.Logf(0, "%v", strings.Join(parts, ", "))
	}
}
