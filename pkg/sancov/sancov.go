// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package sancov parses coverage dump files written by sanitizer
// instrumented binaries (UBSAN_OPTIONS=coverage_dir=...).
//
// A dump is a little-endian uint64 magic followed by raw program
// counters, 8 or 4 bytes each depending on the magic.
package sancov

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/fuzzmeasure/pkg/cover"
)

const (
	magic64 = uint64(0xC0BFFFFFFFFFFF64)
	magic32 = uint64(0xC0BFFFFFFFFFFF32)

	// FileSuffix is the suffix of dump files within a coverage dir.
	FileSuffix = ".sancov"
)

// Decode parses a single coverage dump into hex program point strings.
func Decode(data []byte) ([]string, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("truncated dump: %v bytes", len(data))
	}
	wordSize := 0
	switch magic := binary.LittleEndian.Uint64(data); magic {
	case magic64:
		wordSize = 8
	case magic32:
		wordSize = 4
	default:
		return nil, fmt.Errorf("bad dump magic 0x%x", magic)
	}
	data = data[8:]
	if len(data)%wordSize != 0 {
		return nil, fmt.Errorf("dump size is not a multiple of %v", wordSize)
	}
	pcs := make([]string, 0, len(data)/wordSize)
	for i := 0; i < len(data); i += wordSize {
		var pc uint64
		if wordSize == 8 {
			pc = binary.LittleEndian.Uint64(data[i:])
		} else {
			pc = uint64(binary.LittleEndian.Uint32(data[i:]))
		}
		pcs = append(pcs, fmt.Sprintf("0x%x", pc))
	}
	return pcs, nil
}

func ReadFile(file string) ([]string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	pcs, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %v: %w", file, err)
	}
	return pcs, nil
}

// ReadDir decodes all dump files in dir into a merged point set and
// also returns the number of dump files seen. A run that produced no
// dumps at all is the caller's cue that measurement failed.
func ReadDir(dir string) (cover.Cover, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	cov := make(cover.Cover)
	files := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileSuffix) {
			continue
		}
		files++
		pcs, err := ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, files, err
		}
		cov.MergeSlice(pcs)
	}
	return cov, files, nil
}
