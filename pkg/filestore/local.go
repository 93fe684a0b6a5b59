// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package filestore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/google/fuzzmeasure/pkg/osutil"
)

// localStore implements Store over a local directory tree.
// Local experiments use it directly and unit tests use it as the
// in-memory-cheap fake for the real GCS backend.
type localStore struct{}

func (st *localStore) Copy(ctx context.Context, src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrNotExist, src)
	}
	if err := osutil.MkdirAll(filepath.Dir(dst)); err != nil {
		return err
	}
	// Copy via a unique temp name, so concurrent readers of dst never
	// observe a partially copied file.
	tmp := dst + "." + uuid.NewString() + ".tmp"
	if err := osutil.CopyFile(src, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to copy %v to %v: %w", src, dst, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (st *localStore) List(ctx context.Context, prefix string) ([]string, error) {
	dir := filepath.Dir(prefix)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if strings.HasPrefix(path, prefix) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %v: %w", prefix, err)
	}
	return files, nil
}

func (st *localStore) Close() error {
	return nil
}
