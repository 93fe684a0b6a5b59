// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package filestore abstracts the shared experiment filestore that trial
// runners, builders and measure workers exchange files through.
//
// Store paths are full URIs: gs://bucket/path selects Google Cloud
// Storage, everything else is treated as a plain local filesystem path
// (used by local experiments and tests). The other side of a Copy is
// always a local filesystem path, so a single Copy operation covers
// download, upload and in-store copies.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotExist is wrapped by Copy errors when the source is absent.
// Callers treat this case as "data not produced yet", not as a failure.
var ErrNotExist = errors.New("file does not exist in the store")

type Store interface {
	// Copy copies a single file. Absence of src is reported via ErrNotExist.
	Copy(ctx context.Context, src, dst string) error
	// List returns full paths of all store files starting with prefix.
	// A prefix with no matches yields an empty list, not an error.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

const gcsPrefix = "gs://"

// New selects a store backend based on the filestore root URI.
func New(ctx context.Context, root string) (Store, error) {
	if root == "" {
		return nil, fmt.Errorf("empty filestore root")
	}
	if strings.HasPrefix(root, gcsPrefix) {
		return newGCSStore(ctx)
	}
	return &localStore{}, nil
}

// Join joins path elements preserving the URI scheme of the base.
func Join(base string, elem ...string) string {
	if scheme, rest, ok := strings.Cut(base, "://"); ok {
		return scheme + "://" + path.Join(append([]string{rest}, elem...)...)
	}
	return filepath.Join(append([]string{base}, elem...)...)
}

// Base returns the last element of a store path.
func Base(p string) string {
	if _, rest, ok := strings.Cut(p, "://"); ok {
		return path.Base(rest)
	}
	return filepath.Base(p)
}
