// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package measurer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/fuzzmeasure/pkg/corpus"
	"github.com/google/fuzzmeasure/pkg/experiment"
	"github.com/google/fuzzmeasure/pkg/filestore"
	"github.com/google/fuzzmeasure/pkg/log"
	"github.com/google/fuzzmeasure/pkg/osutil"
	"github.com/google/fuzzmeasure/pkg/sancov"
)

// session owns one trial's local workspace for the duration of one
// measurement request. Sessions for different trials never share state.
type session struct {
	m      *Measurer
	req    Request
	binary string

	corpusDir   string // accumulated content-addressed units
	archivesDir string // cache of the most recently fetched archive
	sancovDir   string // dumps of the current coverage run
	stateDir    string // local covered-pcs state cache

	unchanged        []int
	unchangedFetched bool
}

func (m *Measurer) newSession(req Request, binary string) (*session, error) {
	trialDir := m.cfg.TrialDir(req.Benchmark, req.Fuzzer, req.Trial)
	sess := &session{
		m:           m,
		req:         req,
		binary:      binary,
		corpusDir:   filepath.Join(trialDir, "corpus"),
		archivesDir: filepath.Join(trialDir, "corpus-archives"),
		sancovDir:   filepath.Join(trialDir, "sancovs"),
		stateDir:    filepath.Join(trialDir, "state"),
	}
	for _, dir := range []string{sess.corpusDir, sess.archivesDir, sess.sancovDir, sess.stateDir} {
		if err := osutil.MkdirAll(dir); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// measureSnapshot attempts direct measurement of the requested cycle.
// A nil snapshot with nil error means the cycle is not measurable now
// and the caller should try to skip ahead.
func (sess *session) measureSnapshot(ctx context.Context) (*Snapshot, error) {
	archive, ok := sess.fetchArchive(ctx)
	if !ok {
		return nil, nil
	}
	defer sess.pruneArchives()
	if sess.isCycleUnchanged(ctx, archive) {
		log.Logf(1, "%v: corpus is unchanged", sess.req)
		return nil, nil
	}
	start := time.Now()
	newUnits, err := corpus.Extract(archive, sess.corpusDir, sess.knownUnits())
	if err != nil {
		return nil, err
	}
	extractTime.Save(time.Since(start))
	if len(newUnits) == 0 {
		log.Logf(1, "%v: no new corpus units", sess.req)
		return nil, nil
	}
	sess.runCovNewUnits(newUnits)
	decoded, dumps, err := sancov.ReadDir(sess.sancovDir)
	if err != nil {
		return nil, err
	}
	if dumps == 0 {
		return nil, errors.New("coverage run produced no dump files")
	}
	state, newPCs, err := sess.saveCoveredPCsState(ctx, sess.req.Cycle, decoded)
	if err != nil {
		return nil, err
	}
	statNewUnits.Add(len(newUnits))
	return &Snapshot{
		Time:         time.Duration(sess.req.Cycle) * sess.m.cfg.SnapshotPeriod,
		EdgesCovered: state.Len(),
		NewUnits:     len(newUnits),
		NewEdges:     newPCs,
	}, nil
}

// fetchArchive downloads the requested cycle's corpus archive into the
// local archive cache. Absence and transient store failures both mean
// "not measurable now", only the latter is logged loudly.
func (sess *session) fetchArchive(ctx context.Context) (string, bool) {
	src := sess.m.cfg.RemoteCorpusArchive(sess.req.Benchmark, sess.req.Fuzzer, sess.req.Trial, sess.req.Cycle)
	dst := filepath.Join(sess.archivesDir, experiment.CorpusArchiveName(sess.req.Cycle))
	err := sess.m.store.Copy(ctx, src, dst)
	if errors.Is(err, filestore.ErrNotExist) {
		log.Logf(2, "%v: corpus archive is not uploaded yet", sess.req)
		return "", false
	}
	if err != nil {
		log.Errorf("%v: failed to fetch corpus archive: %v", sess.req, err)
		return "", false
	}
	return dst, true
}

// isCycleUnchanged reports whether the cycle's corpus is known to be
// identical to an already measured one. Tier 1 trusts the trial
// runner's unchanged-cycles list, tier 2 compares the fetched archive
// against the previously cached one. Any failure means "changed":
// measuring a cycle twice is cheap, skipping a changed one is not.
func (sess *session) isCycleUnchanged(ctx context.Context, archive string) bool {
	for _, cycle := range sess.unchangedCycles(ctx) {
		if cycle == sess.req.Cycle {
			return true
		}
	}
	prev := sess.prevCachedArchive()
	if prev == "" {
		return false
	}
	identical, err := sess.m.Comparer.Identical(prev, archive)
	if err != nil {
		log.Logf(1, "%v: failed to compare corpus archives: %v", sess.req, err)
		return false
	}
	return identical
}

// prevCachedArchive returns the newest cached archive older than the
// requested cycle, or "" if the cache is empty.
func (sess *session) prevCachedArchive() string {
	best := 0
	for _, cycle := range sess.cachedArchives() {
		if cycle < sess.req.Cycle && cycle > best {
			best = cycle
		}
	}
	if best == 0 {
		return ""
	}
	return filepath.Join(sess.archivesDir, experiment.CorpusArchiveName(best))
}

// pruneArchives drops all cached archives except the requested cycle's,
// which the next cycle's unchanged check will compare against.
func (sess *session) pruneArchives() {
	for _, cycle := range sess.cachedArchives() {
		if cycle == sess.req.Cycle {
			continue
		}
		os.Remove(filepath.Join(sess.archivesDir, experiment.CorpusArchiveName(cycle)))
	}
}

func (sess *session) cachedArchives() []int {
	names, err := osutil.ListDir(sess.archivesDir)
	if err != nil {
		return nil
	}
	var cycles []int
	for _, name := range names {
		if cycle, ok := experiment.ParseCorpusArchiveCycle(name); ok {
			cycles = append(cycles, cycle)
		}
	}
	sort.Ints(cycles)
	return cycles
}

// knownUnits loads the digests already present in the accumulated
// corpus, so extraction can skip them without a stat call per entry.
func (sess *session) knownUnits() map[string]bool {
	digests, err := corpus.ListUnits(sess.corpusDir)
	if err != nil {
		return nil
	}
	known := make(map[string]bool, len(digests))
	for _, digest := range digests {
		known[digest] = true
	}
	return known
}

// runCovNewUnits replays the new units through the instrumented binary.
// The run happens in the binary's own directory (builds co-locate
// dictionaries and options files with the target) and the sanitizer is
// pointed at the session's sancov dir. A crashing, non-zero or timed
// out run is business as usual with fuzzer-produced inputs; whatever
// dumps the instrumentation wrote before dying are still good.
func (sess *session) runCovNewUnits(newUnits []string) {
	if err := osutil.RecreateDir(sess.sancovDir); err != nil {
		log.Errorf("%v: failed to clear sancov dir: %v", sess.req, err)
		return
	}
	args := make([]string, 0, len(newUnits))
	for _, digest := range newUnits {
		args = append(args, corpus.UnitPath(sess.corpusDir, digest))
	}
	cmd := osutil.Command(sess.binary, args...)
	cmd.Dir = filepath.Dir(sess.binary)
	cmd.Env = mergeEnv(os.Environ(), [][2]string{
		{"UBSAN_OPTIONS", "coverage_dir=" + sess.sancovDir},
		{experiment.EnvWorkDir, sess.m.cfg.WorkDir},
		{experiment.EnvFilestore, sess.m.cfg.Filestore},
		{experiment.EnvExperiment, sess.m.cfg.Name},
	})
	start := time.Now()
	_, err := sess.m.Executor.Run(sess.m.RunTimeout, cmd)
	statRunDuration.Add(int(time.Since(start).Milliseconds()))
	if err != nil {
		statFailedRuns.Add(1)
		log.Logf(1, "%v: coverage run failed (tolerated): %v", sess.req, err)
	}
}

// mergeEnv returns env with the given variables overridden.
// Inherited variables not listed in overrides pass through unchanged.
func mergeEnv(env []string, overrides [][2]string) []string {
	skip := make(map[string]bool, len(overrides))
	for _, kv := range overrides {
		skip[kv[0]] = true
	}
	res := make([]string, 0, len(env)+len(overrides))
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		if skip[key] {
			continue
		}
		res = append(res, kv)
	}
	for _, kv := range overrides {
		res = append(res, kv[0]+"="+kv[1])
	}
	return res
}
