// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package measurer implements the per-trial snapshot measurement
// session: it converts corpus snapshot archives uploaded by trial
// runners into incremental code coverage state.
//
// For a (fuzzer, benchmark, trial, cycle) request the measurer stages
// the benchmark's instrumented binary, extracts the cycle's corpus
// archive into the trial's accumulated content-addressed corpus, replays
// only the units never seen before, merges the decoded coverage dumps
// into the previous cycle's covered-pcs state and persists one immutable
// state file per cycle in the experiment filestore.
//
// When the requested cycle cannot be measured (archive not uploaded
// yet, corpus unchanged, no new units), the measurer consults the
// trial's unchanged-cycles list to skip ahead: it stamps the skipped
// cycles with the last measured state, so coverage history stays
// gap-free, and tells the caller which cycle to request next.
package measurer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/fuzzmeasure/pkg/benchmark"
	"github.com/google/fuzzmeasure/pkg/builds"
	"github.com/google/fuzzmeasure/pkg/experiment"
	"github.com/google/fuzzmeasure/pkg/filestore"
	"github.com/google/fuzzmeasure/pkg/log"
	"github.com/google/fuzzmeasure/pkg/stat"
)

// DefaultRunTimeout bounds one coverage run over a batch of new units.
// Instrumented targets hang on malformed units often enough that the
// bound matters; a timed out run still leaves its dumps behind.
const DefaultRunTimeout = 30 * time.Minute

// Request identifies one unit of measurement work.
// Cycle numbers start at 1 and grow monotonically per trial.
type Request struct {
	Fuzzer    string `json:"fuzzer"`
	Benchmark string `json:"benchmark"`
	Trial     int    `json:"trial_id"`
	Cycle     int    `json:"cycle"`
}

func (req Request) Validate() error {
	switch {
	case req.Fuzzer == "" || req.Benchmark == "":
		return fmt.Errorf("fuzzer and benchmark must be set")
	case req.Trial < 0:
		return fmt.Errorf("invalid trial id %v", req.Trial)
	case req.Cycle < 1:
		return fmt.Errorf("invalid cycle %v", req.Cycle)
	}
	return nil
}

func (req Request) String() string {
	return fmt.Sprintf("%v/trial-%d/cycle-%d",
		experiment.TrialGroup(req.Benchmark, req.Fuzzer), req.Trial, req.Cycle)
}

// Snapshot is the coverage measurement result for one trial cycle.
type Snapshot struct {
	// Trial runtime the snapshot corresponds to (cycle * snapshot period).
	Time time.Duration `json:"time"`
	// Total covered program points accumulated by this cycle.
	EdgesCovered int `json:"edges_covered"`
	// Corpus units replayed for this cycle.
	NewUnits int `json:"new_units"`
	// Program points covered for the first time this cycle.
	NewEdges int `json:"new_edges"`
}

// Response carries the outcome of one measurement request. Either
// Snapshot is set (the cycle was measured), or NextCycle is a later
// cycle worth requesting instead, or neither (nothing measurable now,
// retry the same cycle later).
type Response struct {
	Request   Request   `json:"request"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
	NextCycle int       `json:"next_cycle,omitempty"`
}

// Measurer measures trial coverage snapshots. One Measurer serves many
// concurrent requests as long as they target different trials; requests
// for the same trial must be serialized by the caller.
type Measurer struct {
	cfg    *experiment.Config
	store  filestore.Store
	builds *builds.Staging

	// Ports below are set to real implementations by New.
	// Tests substitute fakes before the first use.
	Executor   Executor
	Comparer   ArchiveComparer
	RunTimeout time.Duration
}

func New(cfg *experiment.Config, store filestore.Store) *Measurer {
	return &Measurer{
		cfg:        cfg,
		store:      store,
		builds:     builds.New(cfg, store),
		Executor:   osExecutor{},
		Comparer:   checksumComparer{},
		RunTimeout: DefaultRunTimeout,
	}
}

var (
	statSnapshots = stat.New("measured snapshots", "snapshots measured from corpus archives",
		stat.Console, stat.Rate{}, stat.Prometheus("fuzzmeasure_snapshots_total"))
	statSkippedCycles = stat.New("skipped cycles", "cycles stamped as unchanged by skip-ahead",
		stat.Console, stat.Prometheus("fuzzmeasure_skipped_cycles_total"))
	statNewUnits = stat.New("new units", "corpus units replayed for coverage",
		stat.Rate{}, stat.Prometheus("fuzzmeasure_new_units_total"))
	statFailedRuns = stat.New("failed runs", "coverage runs that crashed or timed out (tolerated)",
		stat.Prometheus("fuzzmeasure_failed_runs_total"))
	statRunDuration = stat.New("run duration (ms)", "coverage run duration", stat.Distribution{})

	extractTime stat.AverageValue[time.Duration]
	_           = stat.New("extract duration (ms)", "average corpus extraction duration",
		func() int { return int(extractTime.Value().Milliseconds()) })
)

// MeasureTrialCoverage measures the requested cycle if it can be
// measured now, otherwise resolves which later cycle to try.
//
// Errors mean the request itself failed (unstageable binary, corrupt
// archive, failed run or persist) and is worth retrying; the ordinary
// "archive not uploaded yet" and "corpus unchanged" cases produce a
// well-formed Response, never an error.
func (m *Measurer) MeasureTrialCoverage(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	desc, err := benchmark.Load(m.cfg.BenchmarksDir, req.Benchmark)
	if err != nil {
		return nil, err
	}
	if !desc.Supports(req.Fuzzer) {
		return nil, fmt.Errorf("benchmark %v does not support fuzzer %v", req.Benchmark, req.Fuzzer)
	}
	binary, err := m.builds.SetUpCoverageBinary(ctx, req.Benchmark, desc.FuzzTarget)
	if err != nil {
		return nil, err
	}
	sess, err := m.newSession(req, binary)
	if err != nil {
		return nil, err
	}
	snapshot, err := sess.measureSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", req, err)
	}
	resp := &Response{Request: req}
	if snapshot != nil {
		statSnapshots.Add(1)
		log.Logf(0, "%v: %v edges covered (%v new) from %v new units",
			req, snapshot.EdgesCovered, snapshot.NewEdges, snapshot.NewUnits)
		resp.Snapshot = snapshot
		return resp, nil
	}
	next, err := sess.resolveNextCycle(ctx)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", req, err)
	}
	resp.NextCycle = next
	return resp, nil
}
