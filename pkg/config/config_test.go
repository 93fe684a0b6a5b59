// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Procs   int    `json:"procs"`
	HTTP    string `json:"http"`
	Timeout int    `json:"timeout"`
}

func TestLoadData(t *testing.T) {
	data := []byte(`
# Number of parallel measurements.
{
	"procs": 4,
	# Debug endpoint.
	"http": "localhost:1234"
}
`)
	var cfg testConfig
	require.NoError(t, LoadData(data, &cfg))
	assert.Equal(t, testConfig{Procs: 4, HTTP: "localhost:1234"}, cfg)
}

func TestLoadUnknownField(t *testing.T) {
	var cfg testConfig
	err := LoadData([]byte(`{"procs": 1, "prcs": 2}`), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestLoadOptionalFile(t *testing.T) {
	var cfg testConfig
	require.NoError(t, LoadOptionalFile("", &cfg))
	assert.Equal(t, testConfig{}, cfg)

	missing := filepath.Join(t.TempDir(), "no-such-config")
	assert.Error(t, LoadOptionalFile(missing, &cfg))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config")
	saved := testConfig{Procs: 8, HTTP: ":0", Timeout: 30}
	require.NoError(t, SaveFile(file, &saved))
	var loaded testConfig
	require.NoError(t, LoadFile(file, &loaded))
	assert.Equal(t, saved, loaded)
}
