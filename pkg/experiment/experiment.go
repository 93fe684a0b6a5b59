// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package experiment holds the configuration of a benchmarking
// experiment and derives all local and remote paths from it.
//
// The layout mirrors what trial runners and builders produce:
//
//	<filestore>/<experiment>/experiment-folders/<benchmark>-<fuzzer>/trial-<id>/corpus/corpus-archive-%04d.tar.gz
//	<filestore>/<experiment>/experiment-folders/<benchmark>-<fuzzer>/trial-<id>/results/unchanged-cycles
//	<filestore>/<experiment>/measurement-folders/<benchmark>-<fuzzer>/trial-<id>/state/covered-pcs-%04d.json
//	<filestore>/<experiment>/coverage-binaries/coverage-build-<benchmark>.tar.gz
//
// and locally, under the scratch workspace:
//
//	<work>/coverage-binaries/<benchmark>/
//	<work>/measurement-folders/<benchmark>-<fuzzer>/trial-<id>/{corpus,corpus-archives,sancovs,state}
package experiment

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/fuzzmeasure/pkg/filestore"
)

// Default interval between corpus snapshots taken by trial runners.
const DefaultSnapshotPeriod = 15 * time.Minute

// Config identifies one experiment. All engine components receive it
// explicitly, nothing reads the environment behind the caller's back.
type Config struct {
	// Experiment name, also the top-level directory in the filestore.
	Name string
	// Root URI of the shared experiment filestore
	// (gs://bucket[/prefix] or a local directory for local runs).
	Filestore string
	// Root of the local scratch workspace.
	WorkDir string
	// Interval between corpus snapshots. Snapshot timestamps are
	// derived as cycle * SnapshotPeriod.
	SnapshotPeriod time.Duration
	// Optional directory with per-benchmark descriptors
	// (<dir>/<benchmark>/benchmark.yaml).
	BenchmarksDir string
}

// Environment variable names form the contract with the platform
// dispatcher that starts worker processes.
const (
	EnvExperiment     = "EXPERIMENT"
	EnvFilestore      = "EXPERIMENT_FILESTORE"
	EnvWorkDir        = "WORK"
	EnvSnapshotPeriod = "SNAPSHOT_PERIOD"
	EnvBenchmarksDir  = "BENCHMARKS_DIR"
)

// EnvConfig builds a Config from the process environment.
func EnvConfig() (*Config, error) {
	cfg := &Config{
		Name:           os.Getenv(EnvExperiment),
		Filestore:      os.Getenv(EnvFilestore),
		WorkDir:        os.Getenv(EnvWorkDir),
		SnapshotPeriod: DefaultSnapshotPeriod,
		BenchmarksDir:  os.Getenv(EnvBenchmarksDir),
	}
	if period := os.Getenv(EnvSnapshotPeriod); period != "" {
		sec, err := strconv.Atoi(period)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid %v value %q", EnvSnapshotPeriod, period)
		}
		cfg.SnapshotPeriod = time.Duration(sec) * time.Second
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	switch {
	case cfg.Name == "":
		return fmt.Errorf("%v is not set", EnvExperiment)
	case strings.ContainsAny(cfg.Name, "/\\ "):
		return fmt.Errorf("invalid experiment name %q", cfg.Name)
	case cfg.Filestore == "":
		return fmt.Errorf("%v is not set", EnvFilestore)
	case cfg.WorkDir == "":
		return fmt.Errorf("%v is not set", EnvWorkDir)
	case cfg.SnapshotPeriod <= 0:
		return fmt.Errorf("snapshot period must be positive")
	}
	return nil
}

// TrialGroup returns the directory name shared by all trials of one
// (benchmark, fuzzer) pair. Benchmark goes first.
func TrialGroup(benchmark, fuzzer string) string {
	return benchmark + "-" + fuzzer
}

func trialName(trial int) string {
	return fmt.Sprintf("trial-%d", trial)
}

// Local layout.

func (cfg *Config) CoverageBinariesDir() string {
	return filestore.Join(cfg.WorkDir, "coverage-binaries")
}

func (cfg *Config) CoverageBinaryDir(benchmark string) string {
	return filestore.Join(cfg.CoverageBinariesDir(), benchmark)
}

func (cfg *Config) MeasurementDir() string {
	return filestore.Join(cfg.WorkDir, "measurement-folders")
}

func (cfg *Config) TrialDir(benchmark, fuzzer string, trial int) string {
	return filestore.Join(cfg.MeasurementDir(), TrialGroup(benchmark, fuzzer), trialName(trial))
}

// Remote layout.

func (cfg *Config) RemoteDir() string {
	return filestore.Join(cfg.Filestore, cfg.Name)
}

func (cfg *Config) RemoteTrialDir(benchmark, fuzzer string, trial int) string {
	return filestore.Join(cfg.RemoteDir(), "experiment-folders", TrialGroup(benchmark, fuzzer), trialName(trial))
}

func (cfg *Config) RemoteCorpusArchive(benchmark, fuzzer string, trial, cycle int) string {
	return filestore.Join(cfg.RemoteTrialDir(benchmark, fuzzer, trial), "corpus", CorpusArchiveName(cycle))
}

func (cfg *Config) RemoteUnchangedCyclesFile(benchmark, fuzzer string, trial int) string {
	return filestore.Join(cfg.RemoteTrialDir(benchmark, fuzzer, trial), "results", "unchanged-cycles")
}

func (cfg *Config) RemoteStateDir(benchmark, fuzzer string, trial int) string {
	return filestore.Join(cfg.RemoteDir(), "measurement-folders",
		TrialGroup(benchmark, fuzzer), trialName(trial), "state")
}

func (cfg *Config) RemoteCoveredPCsFile(benchmark, fuzzer string, trial, cycle int) string {
	return filestore.Join(cfg.RemoteStateDir(benchmark, fuzzer, trial), CoveredPCsFileName(cycle))
}

func (cfg *Config) RemoteCoverageBuildArchive(benchmark string) string {
	return filestore.Join(cfg.RemoteDir(), "coverage-binaries",
		fmt.Sprintf("coverage-build-%v.tar.gz", benchmark))
}

// File name helpers.

func CorpusArchiveName(cycle int) string {
	return fmt.Sprintf("corpus-archive-%04d.tar.gz", cycle)
}

func CoveredPCsFileName(cycle int) string {
	return fmt.Sprintf("covered-pcs-%04d.json", cycle)
}

var (
	coveredPCsRe    = regexp.MustCompile(`^covered-pcs-(\d+)\.json$`)
	corpusArchiveRe = regexp.MustCompile(`^corpus-archive-(\d+)\.tar\.gz$`)
)

// ParseCoveredPCsCycle extracts the cycle number from a covered-pcs
// state file name (base name or full path). In-flight temp files and
// foreign names are rejected.
func ParseCoveredPCsCycle(name string) (int, bool) {
	return parseCycle(coveredPCsRe, name)
}

// ParseCorpusArchiveCycle extracts the cycle number from a corpus
// archive file name (base name or full path).
func ParseCorpusArchiveCycle(name string) (int, bool) {
	return parseCycle(corpusArchiveRe, name)
}

func parseCycle(re *regexp.Regexp, name string) (int, bool) {
	match := re.FindStringSubmatch(filestore.Base(name))
	if match == nil {
		return 0, false
	}
	cycle, err := strconv.Atoi(match[1])
	if err != nil || cycle < 1 {
		return 0, false
	}
	return cycle, true
}
