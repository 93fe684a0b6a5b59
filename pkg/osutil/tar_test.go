// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarDirectory(t *testing.T) {
	dir := t.TempDir()

	items := map[string]string{
		"file1.txt":     "first file content",
		"dir/file2.txt": "second file content",
		"empty.txt":     "",
	}

	for path, content := range items {
		fullPath := filepath.Join(dir, path)
		dirPath := filepath.Dir(fullPath)
		if err := MkdirAll(dirPath); err != nil {
			t.Fatalf("mkdir %q failed: %v", dirPath, err)
		}
		if err := WriteFile(fullPath, []byte(content)); err != nil {
			t.Fatalf("write file failed: %v", err)
		}
	}

	var buf bytes.Buffer
	err := tarDirectory(dir, &buf)
	assert.NoError(t, err)

	tr := tar.NewReader(&buf)
	found := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			contentBytes, err := io.ReadAll(tr)
			if err != nil {
				t.Fatal(err)
			}
			found[hdr.Name] = string(contentBytes)
		}
	}

	assert.Equal(t, items, found)
}

func TestArchiveRoundTrip(t *testing.T) {
	items := map[string]string{
		"seed-1":          "some unit",
		"queue/id:000000": "another unit",
	}
	for _, suffix := range []string{".tar", ".tar.gz", ".tgz", ".tar.xz"} {
		t.Run(suffix, func(t *testing.T) {
			src := t.TempDir()
			for path, content := range items {
				require.NoError(t, MkdirAll(filepath.Dir(filepath.Join(src, path))))
				require.NoError(t, WriteFile(filepath.Join(src, path), []byte(content)))
			}
			archive := filepath.Join(t.TempDir(), "corpus"+suffix)
			require.NoError(t, WriteTarArchive(src, archive))

			dst := t.TempDir()
			require.NoError(t, ExtractTarArchive(archive, dst))
			for path, content := range items {
				data, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(path)))
				require.NoError(t, err)
				assert.Equal(t, content, string(data))
			}
		})
	}
}

func TestExtractPreservesExecBit(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, WriteExecFile(filepath.Join(src, "fuzz-target"), []byte("#!/bin/sh\n")))
	archive := filepath.Join(t.TempDir(), "build.tar.gz")
	require.NoError(t, WriteTarArchive(src, archive))

	dst := t.TempDir()
	require.NoError(t, ExtractTarArchive(archive, dst))
	info, err := os.Stat(filepath.Join(dst, "fuzz-target"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0111)
}

func TestWalkCorruptArchive(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "corpus.tar.gz")
	require.NoError(t, WriteFile(archive, []byte("not really an archive")))
	err := WalkTarArchive(archive, func(hdr *tar.Header, r io.Reader) error {
		return nil
	})
	assert.Error(t, err)
}

func TestSanitizeArchivePath(t *testing.T) {
	tests := map[string]string{
		"file":            "file",
		"dir/file":        "dir/file",
		"./dir/file":      "dir/file",
		"dir/../file":     "file",
		"/etc/passwd":     "",
		"../escape":       "",
		"dir/../../steal": "",
		"..":              "",
		"":                "",
	}
	for name, want := range tests {
		assert.Equal(t, want, SanitizeArchivePath(name), "input %q", name)
	}
}
