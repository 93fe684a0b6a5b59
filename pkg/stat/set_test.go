// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	s := newSet()
	counter := s.New("snapshots", "measured snapshots", Console)
	counter.Add(2)
	counter.Add(3)
	container := []int{1, 2, 3}
	var mu sync.RWMutex
	s.New("queue", "pending requests", LenOf(&container, &mu))

	all := s.Collect(All)
	assert.Len(t, all, 2)
	vals := map[string]int{}
	for _, ui := range all {
		vals[ui.Name] = ui.V
	}
	assert.Equal(t, map[string]int{"snapshots": 5, "queue": 3}, vals)

	// Console level filters out the default-level metric.
	console := s.Collect(Console)
	assert.Len(t, console, 1)
	assert.Equal(t, "snapshots", console[0].Name)
}

func TestDistribution(t *testing.T) {
	s := newSet()
	hist := s.New("run duration", "coverage run duration (ms)", Distribution{})
	assert.Equal(t, 0, hist.Val())
	for _, v := range []int{10, 20, 30} {
		hist.Add(v)
	}
	assert.Equal(t, 20, hist.Val())
}

func TestAverageValue(t *testing.T) {
	var avg AverageValue[time.Duration]
	avg.Save(10 * time.Second)
	avg.Save(20 * time.Second)
	assert.Equal(t, 15*time.Second, avg.Value())
}
