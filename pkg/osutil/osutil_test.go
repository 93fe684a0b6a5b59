// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build unix

package osutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExist(t *testing.T) {
	if f := os.Args[0]; !IsExist(f) {
		t.Fatalf("executable %v does not exist", f)
	}
	if f := os.Args[0] + "-foo-bar-buz"; IsExist(f) {
		t.Fatalf("file %v exists", f)
	}
}

func TestRunFailure(t *testing.T) {
	output, err := RunCmd(time.Minute, "", "sh", "-c", "echo some output; exit 3")
	require.Error(t, err)
	assert.Contains(t, string(output), "some output")
	var verbose *VerboseError
	require.True(t, errors.As(err, &verbose))
	assert.Equal(t, 3, verbose.ExitCode)
	assert.Contains(t, verbose.Error(), "some output")
}

func TestRunTimeout(t *testing.T) {
	start := time.Now()
	_, err := RunCmd(100*time.Millisecond, "", "sleep", "30")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timedout")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestWriteFileAtomic(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, WriteFileAtomic(file, []byte("first")))
	require.NoError(t, WriteFileAtomic(file, []byte("second")))
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.False(t, IsExist(file+".tmp"))
}

func TestLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	unlock, err := LockFile(path)
	require.NoError(t, err)
	_, err = LockFile(path)
	assert.Error(t, err)
	unlock()
	unlock2, err := LockFile(path)
	require.NoError(t, err)
	unlock2()
}
