// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package benchmark loads per-benchmark descriptors.
//
// A descriptor is an optional benchmark.yaml file next to the benchmark
// definition. A missing file is not an error: every field has a default,
// descriptors only exist to override them.
package benchmark

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFuzzTarget is the binary name inside a coverage build when the
// descriptor does not name one.
const DefaultFuzzTarget = "fuzz-target"

type Descriptor struct {
	// Upstream project the benchmark is cut from (informational).
	Project string `yaml:"project"`
	// Name of the instrumented binary inside the coverage build.
	FuzzTarget string `yaml:"fuzz_target"`
	// Fuzzers that cannot run this benchmark, skipped by scheduling
	// and refused by the measurer.
	UnsupportedFuzzers []string `yaml:"unsupported_fuzzers"`
}

// Load reads <dir>/<name>/benchmark.yaml. Empty dir or an absent file
// yields the default descriptor; a present but malformed file is an error.
func Load(dir, name string) (*Descriptor, error) {
	desc := &Descriptor{FuzzTarget: DefaultFuzzTarget}
	if dir == "" {
		return desc, nil
	}
	file := filepath.Join(dir, name, "benchmark.yaml")
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return desc, nil
	}
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(desc); err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", file, err)
	}
	if desc.FuzzTarget == "" {
		desc.FuzzTarget = DefaultFuzzTarget
	}
	return desc, nil
}

// Supports reports whether the benchmark can be fuzzed by fuzzer.
func (desc *Descriptor) Supports(fuzzer string) bool {
	for _, unsupported := range desc.UnsupportedFuzzers {
		if unsupported == fuzzer {
			return false
		}
	}
	return true
}
