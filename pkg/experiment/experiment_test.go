// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package experiment

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Name:           "test-experiment",
		Filestore:      "gs://experiment-data",
		WorkDir:        "/work",
		SnapshotPeriod: DefaultSnapshotPeriod,
	}
}

func TestRemotePaths(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t,
		"gs://experiment-data/test-experiment/measurement-folders/benchmark-a-fuzzer-a/trial-12/state/covered-pcs-0002.json",
		cfg.RemoteCoveredPCsFile("benchmark-a", "fuzzer-a", 12, 2))
	assert.Equal(t,
		"gs://experiment-data/test-experiment/experiment-folders/benchmark-a-fuzzer-a/trial-12/corpus/corpus-archive-0002.tar.gz",
		cfg.RemoteCorpusArchive("benchmark-a", "fuzzer-a", 12, 2))
	assert.Equal(t,
		"gs://experiment-data/test-experiment/experiment-folders/benchmark-a-fuzzer-a/trial-12/results/unchanged-cycles",
		cfg.RemoteUnchangedCyclesFile("benchmark-a", "fuzzer-a", 12))
	assert.Equal(t,
		"gs://experiment-data/test-experiment/coverage-binaries/coverage-build-benchmark-a.tar.gz",
		cfg.RemoteCoverageBuildArchive("benchmark-a"))
}

func TestLocalPaths(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, filepath.FromSlash("/work/coverage-binaries/benchmark-a"),
		cfg.CoverageBinaryDir("benchmark-a"))
	assert.Equal(t, filepath.FromSlash("/work/measurement-folders/benchmark-a-fuzzer-a/trial-12"),
		cfg.TrialDir("benchmark-a", "fuzzer-a", 12))
}

func TestEnvConfig(t *testing.T) {
	t.Setenv(EnvExperiment, "test-experiment")
	t.Setenv(EnvFilestore, "gs://experiment-data")
	t.Setenv(EnvWorkDir, "/work")
	t.Setenv(EnvSnapshotPeriod, "900")

	cfg, err := EnvConfig()
	require.NoError(t, err)
	assert.Equal(t, "test-experiment", cfg.Name)
	assert.Equal(t, "gs://experiment-data", cfg.Filestore)
	assert.Equal(t, "/work", cfg.WorkDir)
	assert.Equal(t, 900*time.Second, cfg.SnapshotPeriod)

	t.Setenv(EnvSnapshotPeriod, "bad")
	_, err = EnvConfig()
	assert.Error(t, err)

	t.Setenv(EnvSnapshotPeriod, "")
	t.Setenv(EnvExperiment, "")
	_, err = EnvConfig()
	assert.Error(t, err)
}

func TestParseCoveredPCsCycle(t *testing.T) {
	tests := map[string]int{
		"covered-pcs-0002.json":     2,
		"covered-pcs-0123.json":     123,
		"covered-pcs-12345.json":    12345,
		"state/covered-pcs-04.json": 4,
		"covered-pcs-0002.json.5f2c.tmp": 0,
		"covered-pcs-.json":              0,
		"covered-pcs-0000.json":          0,
		"unchanged-cycles":               0,
	}
	for name, want := range tests {
		cycle, ok := ParseCoveredPCsCycle(name)
		if want == 0 {
			assert.False(t, ok, "input %q", name)
		} else {
			require.True(t, ok, "input %q", name)
			assert.Equal(t, want, cycle, "input %q", name)
		}
	}
}
