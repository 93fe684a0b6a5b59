// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package cover implements set operations on covered program points.
//
// Points are opaque hex address strings ("0x425221") as produced by the
// sancov decoder. The engine never interprets them numerically, so all
// ordering is plain lexicographic string order. That keeps serialized
// state files deterministic: one set has exactly one serialization.
package cover

import (
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/exp/maps"
)

type Cover map[string]struct{}

func FromSlice(pcs []string) Cover {
	cov := make(Cover, len(pcs))
	for _, pc := range pcs {
		cov[pc] = struct{}{}
	}
	return cov
}

func (cov Cover) Len() int {
	return len(cov)
}

func (cov Cover) Empty() bool {
	return len(cov) == 0
}

func (cov Cover) Copy() Cover {
	c := make(Cover, len(cov))
	for pc := range cov {
		c[pc] = struct{}{}
	}
	return c
}

func (cov Cover) Merge(other Cover) {
	for pc := range other {
		cov[pc] = struct{}{}
	}
}

func (cov Cover) MergeSlice(pcs []string) {
	for _, pc := range pcs {
		cov[pc] = struct{}{}
	}
}

// Diff returns points present in other but not in cov.
func (cov Cover) Diff(other Cover) Cover {
	var res Cover
	for pc := range other {
		if _, ok := cov[pc]; ok {
			continue
		}
		if res == nil {
			res = make(Cover)
		}
		res[pc] = struct{}{}
	}
	return res
}

// Serialize returns the points as a sorted slice.
func (cov Cover) Serialize() []string {
	pcs := maps.Keys(cov)
	sort.Strings(pcs)
	return pcs
}

// Marshal produces the canonical serialized form: a sorted JSON array.
// Equal sets always marshal to identical bytes.
func (cov Cover) Marshal() ([]byte, error) {
	return json.Marshal(cov.Serialize())
}

// Parse decodes a serialized point set. The input does not have to be
// sorted or duplicate-free, the result is a set either way.
func Parse(data []byte) (Cover, error) {
	var pcs []string
	if err := json.Unmarshal(data, &pcs); err != nil {
		return nil, fmt.Errorf("failed to parse covered points: %w", err)
	}
	return FromSlice(pcs), nil
}
