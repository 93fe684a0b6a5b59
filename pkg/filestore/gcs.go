// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/google/fuzzmeasure/pkg/gcs"
	"github.com/google/fuzzmeasure/pkg/osutil"
)

type gcsStore struct {
	client *gcs.Client
}

func newGCSStore(ctx context.Context) (Store, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &gcsStore{client: client}, nil
}

func (st *gcsStore) Copy(ctx context.Context, src, dst string) error {
	srcObject, srcRemote := stripGCS(src)
	dstObject, dstRemote := stripGCS(dst)
	switch {
	case srcRemote && dstRemote:
		err := st.client.CopyObject(ctx, srcObject, dstObject)
		if gcs.IsNotExist(err) {
			return fmt.Errorf("%w: %v", ErrNotExist, src)
		}
		return err
	case srcRemote:
		if err := osutil.MkdirAll(filepath.Dir(dst)); err != nil {
			return err
		}
		tmp := dst + "." + uuid.NewString() + ".tmp"
		err := st.client.DownloadFile(ctx, srcObject, tmp)
		if err != nil {
			os.Remove(tmp)
			if gcs.IsNotExist(err) {
				return fmt.Errorf("%w: %v", ErrNotExist, src)
			}
			return err
		}
		if err := os.Rename(tmp, dst); err != nil {
			os.Remove(tmp)
			return err
		}
		return nil
	case dstRemote:
		if !osutil.IsExist(src) {
			return fmt.Errorf("%w: %v", ErrNotExist, src)
		}
		return st.client.UploadFile(ctx, src, dstObject)
	default:
		// Both sides local, e.g. a local experiment root passed to
		// a store created for a gs:// one. Not expected, but harmless.
		return (&localStore{}).Copy(ctx, src, dst)
	}
}

func (st *gcsStore) List(ctx context.Context, prefix string) ([]string, error) {
	object, remote := stripGCS(prefix)
	if !remote {
		return (&localStore{}).List(ctx, prefix)
	}
	objects, err := st.client.ListObjects(ctx, object)
	if err != nil {
		return nil, err
	}
	files := make([]string, len(objects))
	for i, obj := range objects {
		files[i] = gcsPrefix + obj
	}
	return files, nil
}

func (st *gcsStore) Close() error {
	return st.client.Close()
}

func stripGCS(path string) (string, bool) {
	if strings.HasPrefix(path, gcsPrefix) {
		return strings.TrimPrefix(path, gcsPrefix), true
	}
	return path, false
}
