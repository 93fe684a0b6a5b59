// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package builds

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/fuzzmeasure/pkg/experiment"
	"github.com/google/fuzzmeasure/pkg/filestore"
	"github.com/google/fuzzmeasure/pkg/osutil"
)

func testConfig(t *testing.T) *experiment.Config {
	return &experiment.Config{
		Name:           "test-experiment",
		Filestore:      t.TempDir(),
		WorkDir:        t.TempDir(),
		SnapshotPeriod: experiment.DefaultSnapshotPeriod,
	}
}

func uploadBuild(t *testing.T, cfg *experiment.Config, benchmark string, files map[string]string) {
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, osutil.MkdirAll(filepath.Dir(filepath.Join(dir, name))))
		require.NoError(t, osutil.WriteExecFile(filepath.Join(dir, name), []byte(content)))
	}
	archive := cfg.RemoteCoverageBuildArchive(benchmark)
	require.NoError(t, osutil.MkdirAll(filepath.Dir(archive)))
	require.NoError(t, osutil.WriteTarArchive(dir, archive))
}

func TestSetUpCoverageBinary(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	store, err := filestore.New(ctx, cfg.Filestore)
	require.NoError(t, err)
	defer store.Close()
	uploadBuild(t, cfg, "benchmark-a", map[string]string{
		"fuzz-target": "#!/bin/true",
		"seeds/seed1": "hello",
	})

	staging := New(cfg, store)
	binary, err := staging.SetUpCoverageBinary(ctx, "benchmark-a", "fuzz-target")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.CoverageBinaryDir("benchmark-a"), "fuzz-target"), binary)
	assert.True(t, osutil.IsExist(binary))
	// Co-located build files survive extraction.
	assert.True(t, osutil.IsExist(filepath.Join(cfg.CoverageBinaryDir("benchmark-a"), "seeds", "seed1")))

	// Second call reuses the staged build.
	again, err := staging.SetUpCoverageBinary(ctx, "benchmark-a", "fuzz-target")
	require.NoError(t, err)
	assert.Equal(t, binary, again)
}

func TestSetUpCoverageBinaryMissing(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	store, err := filestore.New(ctx, cfg.Filestore)
	require.NoError(t, err)
	defer store.Close()

	staging := New(cfg, store)
	// No build archive uploaded at all.
	_, err = staging.SetUpCoverageBinary(ctx, "benchmark-a", "fuzz-target")
	assert.Error(t, err)

	// Build archive present, but the binary is named differently.
	uploadBuild(t, cfg, "benchmark-b", map[string]string{"other-target": ""})
	_, err = staging.SetUpCoverageBinary(ctx, "benchmark-b", "fuzz-target")
	assert.Error(t, err)
}

func TestSetUpCoverageBinaryConcurrent(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	store, err := filestore.New(ctx, cfg.Filestore)
	require.NoError(t, err)
	defer store.Close()
	uploadBuild(t, cfg, "benchmark-a", map[string]string{"fuzz-target": ""})

	staging := New(cfg, store)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := staging.SetUpCoverageBinary(ctx, "benchmark-a", "fuzz-target")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
