// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package measurer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/google/fuzzmeasure/pkg/cover"
	"github.com/google/fuzzmeasure/pkg/experiment"
	"github.com/google/fuzzmeasure/pkg/filestore"
	"github.com/google/fuzzmeasure/pkg/log"
	"github.com/google/fuzzmeasure/pkg/osutil"
)

// previousState loads the newest persisted covered-pcs state with a
// cycle number below the given one. A first cycle, a trial whose state
// was never persisted, or any fetch/decode failure all yield the empty
// set: coverage then re-accumulates from the archive replays, which is
// correct, just slower.
func (sess *session) previousState(ctx context.Context, cycle int) cover.Cover {
	req := sess.req
	prefix := filestore.Join(sess.m.cfg.RemoteStateDir(req.Benchmark, req.Fuzzer, req.Trial), "covered-pcs-")
	files, err := sess.m.store.List(ctx, prefix)
	if err != nil {
		log.Errorf("%v: failed to list covered-pcs states: %v", req, err)
		return make(cover.Cover)
	}
	best, bestCycle := "", 0
	for _, file := range files {
		if c, ok := experiment.ParseCoveredPCsCycle(file); ok && c < cycle && c > bestCycle {
			best, bestCycle = file, c
		}
	}
	if best == "" {
		return make(cover.Cover)
	}
	local := filepath.Join(sess.stateDir, experiment.CoveredPCsFileName(bestCycle))
	if err := sess.m.store.Copy(ctx, best, local); err != nil {
		log.Errorf("%v: failed to fetch state %v: %v", req, best, err)
		return make(cover.Cover)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		log.Errorf("%v: failed to read state %v: %v", req, local, err)
		return make(cover.Cover)
	}
	state, err := cover.Parse(data)
	if err != nil {
		log.Errorf("%v: failed to parse state %v: %v", req, best, err)
		return make(cover.Cover)
	}
	return state
}

// saveCoveredPCsState merges the decoded program points into the
// previous cycle's state and persists the result under this cycle's
// key. Returns the new state and the number of never-seen-before
// points.
func (sess *session) saveCoveredPCsState(ctx context.Context, cycle int, decoded cover.Cover) (
	cover.Cover, int, error) {
	prev := sess.previousState(ctx, cycle)
	state := prev.Copy()
	state.Merge(decoded)
	if err := sess.persistState(ctx, cycle, state); err != nil {
		return nil, 0, err
	}
	return state, state.Len() - prev.Len(), nil
}

// persistState writes the state file locally and copies it to the
// cycle-keyed remote path. Serialization is deterministic, so repeated
// persists of the same state are byte-identical and a re-measured
// cycle overwrites its file with the same content.
func (sess *session) persistState(ctx context.Context, cycle int, state cover.Cover) error {
	data, err := state.Marshal()
	if err != nil {
		return err
	}
	local := filepath.Join(sess.stateDir, experiment.CoveredPCsFileName(cycle))
	if old, err := os.ReadFile(local); err == nil && !bytes.Equal(old, data) {
		// Should not happen: same inputs must produce the same state.
		// Worth a diff in the log when it does.
		log.Errorf("covered-pcs state for cycle %v diverged from the cached one:\n%v",
			cycle, stateDiff(old, data))
	}
	if err := osutil.WriteFileAtomic(local, data); err != nil {
		return err
	}
	req := sess.req
	remote := sess.m.cfg.RemoteCoveredPCsFile(req.Benchmark, req.Fuzzer, req.Trial, cycle)
	if err := sess.m.store.Copy(ctx, local, remote); err != nil {
		return fmt.Errorf("failed to persist covered-pcs state for cycle %v: %w", cycle, err)
	}
	return nil
}

func stateDiff(oldState, newState []byte) string {
	dmp := diffmatchpatch.New()
	return dmp.DiffPrettyText(dmp.DiffMain(string(oldState), string(newState), false))
}

// stampSkippedCycles duplicates the last measured state under every
// cycle in [from, until), so consumers reading any cycle index observe
// monotone, gap-free coverage history.
func (sess *session) stampSkippedCycles(ctx context.Context, from, until int) error {
	state := sess.previousState(ctx, from)
	for cycle := from; cycle < until; cycle++ {
		if err := sess.persistState(ctx, cycle, state); err != nil {
			return err
		}
		statSkippedCycles.Add(1)
	}
	return nil
}
