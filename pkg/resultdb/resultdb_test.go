// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package resultdb

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/fuzzmeasure/pkg/osutil"
	"github.com/google/fuzzmeasure/pkg/testutil"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "benchmark-a-fuzzer-a/trial-12/cycle-0002",
		Key("benchmark-a", "fuzzer-a", 12, 2))
}

func TestBasic(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "results.db")
	db, err := Open(fn, false)
	require.NoError(t, err)
	assert.Empty(t, db.Records)
	db.Save("", nil, 0)
	db.Save(Key("b", "f", 1, 1), []byte(`{"edges_covered":10}`), 1)
	db.Save(Key("b", "f", 1, 2), []byte(`{"edges_covered":12}`), 2)

	want := map[string]Record{
		"":                    {Val: nil, Cycle: 0},
		Key("b", "f", 1, 1):   {Val: []byte(`{"edges_covered":10}`), Cycle: 1},
		Key("b", "f", 1, 2):   {Val: []byte(`{"edges_covered":12}`), Cycle: 2},
	}
	assert.Equal(t, want, db.Records)
	require.NoError(t, db.Flush())
	assert.Equal(t, want, db.Records)

	db, err = Open(fn, false)
	require.NoError(t, err)
	assert.Equal(t, want, db.Records)
}

func TestModify(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "results.db")
	db, err := Open(fn, false)
	require.NoError(t, err)
	db.Save("1", []byte("ab"), 0)
	db.Save("23", nil, 1)
	db.Save("456", []byte("abcd"), 1)
	db.Delete("23")
	// Re-measuring a cycle supersedes the old record.
	db.Save("456", []byte("ef"), 1)
	db.Save("1", nil, 5)

	want := map[string]Record{
		"1":   {Val: nil, Cycle: 5},
		"456": {Val: []byte("ef"), Cycle: 1},
	}
	assert.Equal(t, want, db.Records)
	require.NoError(t, db.Flush())

	db, err = Open(fn, false)
	require.NoError(t, err)
	assert.Equal(t, want, db.Records)
}

func TestLarge(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "results.db")
	db, err := Open(fn, false)
	require.NoError(t, err)
	r := rand.New(testutil.RandSource(t))
	const nrec = 1000
	val := testutil.RandBlob(r, 1000)
	for i := 0; i < nrec; i++ {
		db.Save(fmt.Sprintf("%v", i), val, uint64(i))
	}
	require.NoError(t, db.Flush())
	db, err = Open(fn, false)
	require.NoError(t, err)
	assert.Len(t, db.Records, nrec)
}

func TestOpenInvalid(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "results.db")
	require.NoError(t, osutil.WriteFile(fn, []byte("some invalid data")))
	db, err := Open(fn, true)
	assert.Error(t, err)
	assert.NotNil(t, db)
	// Non-strict open repairs the file in place.
	db, err = Open(fn, false)
	require.NoError(t, err)
	assert.Empty(t, db.Records)
}

func TestOpenCorrupted(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "results.db")
	db, err := Open(fn, false)
	require.NoError(t, err)
	// Write 1000 records, then wipe the second half of the file and test
	// that we (1) get an error, (2) still get 450-550 records.
	for i := 0; i < 1000; i++ {
		db.Save(fmt.Sprintf("%v", i), []byte{byte(i)}, 0)
	}
	require.NoError(t, db.Flush())
	data, err := os.ReadFile(fn)
	require.NoError(t, err)
	for i := len(data) / 2; i < len(data); i++ {
		data[i] = 0
	}
	require.NoError(t, osutil.WriteFile(fn, data))
	db, err = Open(fn, true)
	require.Error(t, err)
	t.Logf("records %v, error: %v", len(db.Records), err)
	assert.GreaterOrEqual(t, len(db.Records), 450)
	assert.LessOrEqual(t, len(db.Records), 550)
}
