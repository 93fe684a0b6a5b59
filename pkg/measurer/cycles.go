// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package measurer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/fuzzmeasure/pkg/filestore"
	"github.com/google/fuzzmeasure/pkg/log"
)

// GetUnchangedCycles fetches the trial's unchanged-cycles list: cycle
// numbers whose corpus the trial runner confirmed identical to the
// prior cycle. The engine only ever reads the list; trial runners
// append to it. A list that does not exist yet or cannot be fetched is
// absent (nil), not an error: it only means skip-ahead is impossible.
func (m *Measurer) GetUnchangedCycles(ctx context.Context, fuzzer, benchmark string, trial int) ([]int, error) {
	src := m.cfg.RemoteUnchangedCyclesFile(benchmark, fuzzer, trial)
	local := filepath.Join(m.cfg.TrialDir(benchmark, fuzzer, trial), "results", "unchanged-cycles")
	if err := m.store.Copy(ctx, src, local); err != nil {
		if !errors.Is(err, filestore.ErrNotExist) {
			log.Logf(1, "failed to fetch unchanged-cycles list %v: %v", src, err)
		}
		return nil, nil
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return nil, err
	}
	return parseUnchangedCycles(src, data), nil
}

func parseUnchangedCycles(src string, data []byte) []int {
	var cycles []int
	for _, field := range strings.Fields(string(data)) {
		cycle, err := strconv.Atoi(field)
		if err != nil || cycle < 1 {
			log.Logf(1, "skipping bad entry %q in %v", field, src)
			continue
		}
		cycles = append(cycles, cycle)
	}
	return cycles
}

// unchangedCycles caches the trial's list for the session: the
// unchanged detector and the skip-ahead resolver both consult it.
func (sess *session) unchangedCycles(ctx context.Context) []int {
	if !sess.unchangedFetched {
		sess.unchangedFetched = true
		req := sess.req
		sess.unchanged, _ = sess.m.GetUnchangedCycles(ctx, req.Fuzzer, req.Benchmark, req.Trial)
	}
	return sess.unchanged
}

// resolveNextCycle picks the smallest confirmed-unchanged cycle
// strictly after the unmeasurable requested one and stamps everything
// up to it with the last measured state. Returns 0 when the list has
// no candidate: nothing is measurable right now and no state changes.
func (sess *session) resolveNextCycle(ctx context.Context) (int, error) {
	next := 0
	for _, cycle := range sess.unchangedCycles(ctx) {
		if cycle > sess.req.Cycle && (next == 0 || cycle < next) {
			next = cycle
		}
	}
	if next == 0 {
		log.Logf(1, "%v: nothing measurable now", sess.req)
		return 0, nil
	}
	if err := sess.stampSkippedCycles(ctx, sess.req.Cycle, next); err != nil {
		return 0, err
	}
	log.Logf(1, "%v: skipping ahead to cycle %v", sess.req, next)
	return next, nil
}
