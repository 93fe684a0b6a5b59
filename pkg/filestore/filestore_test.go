// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/fuzzmeasure/pkg/osutil"
)

func TestJoin(t *testing.T) {
	assert.Equal(t, "gs://bucket/exp/state/file.json",
		Join("gs://bucket", "exp", "state", "file.json"))
	assert.Equal(t, "gs://bucket/exp/file.json",
		Join("gs://bucket/exp/", "file.json"))
	assert.Equal(t, filepath.Join("/root", "exp", "file.json"),
		Join("/root", "exp", "file.json"))
	assert.Equal(t, "file.json", Base("gs://bucket/exp/file.json"))
	assert.Equal(t, "file.json", Base(filepath.Join("/root", "file.json")))
}

func TestNewBackendDispatch(t *testing.T) {
	store, err := New(context.Background(), t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	_, ok := store.(*localStore)
	assert.True(t, ok)

	_, err = New(context.Background(), "")
	assert.Error(t, err)
}

func TestLocalCopy(t *testing.T) {
	ctx := context.Background()
	store := &localStore{}
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, osutil.WriteFile(src, []byte("content")))

	// Destination directories are created on demand.
	dst := filepath.Join(dir, "sub", "dir", "dst")
	require.NoError(t, store.Copy(ctx, src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	// Overwrite is fine.
	require.NoError(t, osutil.WriteFile(src, []byte("updated")))
	require.NoError(t, store.Copy(ctx, src, dst))
	data, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "updated", string(data))
}

func TestLocalCopyAbsent(t *testing.T) {
	ctx := context.Background()
	store := &localStore{}
	dir := t.TempDir()
	err := store.Copy(ctx, filepath.Join(dir, "no-such-file"), filepath.Join(dir, "dst"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotExist))
}

func TestLocalList(t *testing.T) {
	ctx := context.Background()
	store := &localStore{}
	dir := t.TempDir()
	state := filepath.Join(dir, "state")
	require.NoError(t, osutil.MkdirAll(state))
	for _, name := range []string{"covered-pcs-0001.json", "covered-pcs-0002.json", "other.txt"} {
		require.NoError(t, osutil.WriteFile(filepath.Join(state, name), nil))
	}

	files, err := store.List(ctx, filepath.Join(state, "covered-pcs-"))
	require.NoError(t, err)
	sort.Strings(files)
	assert.Equal(t, []string{
		filepath.Join(state, "covered-pcs-0001.json"),
		filepath.Join(state, "covered-pcs-0002.json"),
	}, files)

	// Absent prefix is empty, not an error.
	files, err = store.List(ctx, filepath.Join(dir, "absent", "covered-pcs-"))
	require.NoError(t, err)
	assert.Empty(t, files)
}
