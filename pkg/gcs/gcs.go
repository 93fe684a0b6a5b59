// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package gcs provides wrappers around Google Cloud Storage (GCS) APIs.
// Package uses Application Default Credentials assuming that the program runs on GCE.
//
// See the following links for details and API reference:
// https://cloud.google.com/go/getting-started/using-cloud-storage
// https://godoc.org/cloud.google.com/go/storage
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

type Client struct {
	client *storage.Client
}

func NewClient(ctx context.Context) (*Client, error) {
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Client{client: storageClient}, nil
}

func (client *Client) Close() error {
	return client.client.Close()
}

// IsNotExist reports whether err means that the object does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist)
}

// DownloadFile fetches the object into localFile.
func (client *Client) DownloadFile(ctx context.Context, gcsFile, localFile string) error {
	bucket, object, err := split(gcsFile)
	if err != nil {
		return err
	}
	r, err := client.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to read gs://%v: %w", gcsFile, err)
	}
	defer r.Close()
	local, err := os.Create(localFile)
	if err != nil {
		return err
	}
	defer local.Close()
	if _, err := io.Copy(local, r); err != nil {
		return fmt.Errorf("failed to download gs://%v: %w", gcsFile, err)
	}
	return local.Close()
}

func (client *Client) UploadFile(ctx context.Context, localFile, gcsFile string) error {
	local, err := os.Open(localFile)
	if err != nil {
		return err
	}
	defer local.Close()
	bucket, object, err := split(gcsFile)
	if err != nil {
		return err
	}
	w := client.client.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, local); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload gs://%v: %w", gcsFile, err)
	}
	return w.Close()
}

// CopyObject performs a server-side copy between two objects.
func (client *Client) CopyObject(ctx context.Context, srcFile, dstFile string) error {
	srcBucket, srcObject, err := split(srcFile)
	if err != nil {
		return err
	}
	dstBucket, dstObject, err := split(dstFile)
	if err != nil {
		return err
	}
	src := client.client.Bucket(srcBucket).Object(srcObject)
	dst := client.client.Bucket(dstBucket).Object(dstObject)
	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return fmt.Errorf("failed to copy gs://%v to gs://%v: %w", srcFile, dstFile, err)
	}
	return nil
}

// ListObjects returns names of all objects with the given prefix
// ("bucket/path" form, same as the argument).
func (client *Client) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	bucket, object, err := split(prefix)
	if err != nil {
		return nil, err
	}
	var files []string
	it := client.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: object})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%v: %w", prefix, err)
		}
		files = append(files, bucket+"/"+attrs.Name)
	}
	return files, nil
}

func split(file string) (bucket, filename string, err error) {
	pos := strings.IndexByte(file, '/')
	if pos == -1 {
		return "", "", fmt.Errorf("invalid GCS file name: %v", file)
	}
	return file[:pos], file[pos+1:], nil
}
