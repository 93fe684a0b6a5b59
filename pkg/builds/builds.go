// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package builds stages coverage-instrumented benchmark builds from the
// experiment filestore into the local workspace.
//
// Builders upload one coverage-build-<benchmark>.tar.gz archive per
// benchmark; the measurer needs the extracted binary (plus whatever
// seed/dictionary files the build co-locates with it) on local disk
// before it can replay corpus units.
package builds

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/fuzzmeasure/pkg/experiment"
	"github.com/google/fuzzmeasure/pkg/filestore"
	"github.com/google/fuzzmeasure/pkg/log"
	"github.com/google/fuzzmeasure/pkg/osutil"
)

// Staging fetches and unpacks coverage builds on demand.
// Safe for concurrent use; concurrent requests for one benchmark
// are collapsed into a single fetch.
type Staging struct {
	cfg   *experiment.Config
	store filestore.Store

	mu         sync.Mutex
	benchmarks map[string]*sync.Mutex
}

func New(cfg *experiment.Config, store filestore.Store) *Staging {
	return &Staging{
		cfg:        cfg,
		store:      store,
		benchmarks: make(map[string]*sync.Mutex),
	}
}

// SetUpCoverageBinary ensures the benchmark's coverage build is staged
// locally and returns the path of the instrumented binary named target.
// Failure to stage or a build without the binary is fatal for the
// measurement request, there is nothing to run.
func (st *Staging) SetUpCoverageBinary(ctx context.Context, benchmark, target string) (string, error) {
	st.mu.Lock()
	mu := st.benchmarks[benchmark]
	if mu == nil {
		mu = new(sync.Mutex)
		st.benchmarks[benchmark] = mu
	}
	st.mu.Unlock()
	mu.Lock()
	defer mu.Unlock()

	dir := st.cfg.CoverageBinaryDir(benchmark)
	binary := filepath.Join(dir, target)
	if osutil.IsExist(dir) {
		if err := osutil.IsAccessible(binary); err != nil {
			return "", fmt.Errorf("staged coverage build for %v has no %v binary: %w",
				benchmark, target, err)
		}
		return binary, nil
	}
	if err := st.fetch(ctx, benchmark, dir); err != nil {
		return "", err
	}
	if err := osutil.IsAccessible(binary); err != nil {
		return "", fmt.Errorf("coverage build for %v has no %v binary: %w", benchmark, target, err)
	}
	return binary, nil
}

func (st *Staging) fetch(ctx context.Context, benchmark, dir string) error {
	src := st.cfg.RemoteCoverageBuildArchive(benchmark)
	archive := filepath.Join(st.cfg.CoverageBinariesDir(), filestore.Base(src))
	log.Logf(1, "staging coverage build for %v from %v", benchmark, src)
	if err := st.store.Copy(ctx, src, archive); err != nil {
		return fmt.Errorf("failed to fetch coverage build for %v: %w", benchmark, err)
	}
	defer os.Remove(archive)
	// Extract into a temp dir and rename, so a concurrent process never
	// observes a half-staged build dir.
	tmp := dir + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	if err := osutil.ExtractTarArchive(archive, tmp); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("failed to extract coverage build for %v: %w", benchmark, err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	return nil
}
