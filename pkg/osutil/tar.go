// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// WalkTarArchive opens a (possibly compressed) tar archive and calls fn
// for every entry. Compression is selected by the file name suffix:
// .tar.gz/.tgz, .tar.xz/.txz or plain .tar.
func WalkTarArchive(archive string, fn func(hdr *tar.Header, r io.Reader) error) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()
	var reader io.Reader = f
	switch {
	case strings.HasSuffix(archive, ".tar.gz") || strings.HasSuffix(archive, ".tgz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip archive %v: %w", archive, err)
		}
		defer gz.Close()
		reader = gz
	case strings.HasSuffix(archive, ".tar.xz") || strings.HasSuffix(archive, ".txz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open xz archive %v: %w", archive, err)
		}
		reader = xzr
	case strings.HasSuffix(archive, ".tar"):
	default:
		return fmt.Errorf("unknown archive format: %v", archive)
	}
	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive %v: %w", archive, err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// ExtractTarArchive extracts the archive into dir preserving entry names
// and the executable bit. Entries pointing outside of dir and non-regular
// entries (symlinks, devices) are skipped.
func ExtractTarArchive(archive, dir string) error {
	if err := MkdirAll(dir); err != nil {
		return err
	}
	return WalkTarArchive(archive, func(hdr *tar.Header, r io.Reader) error {
		name := SanitizeArchivePath(hdr.Name)
		if name == "" {
			return nil
		}
		path := filepath.Join(dir, filepath.FromSlash(name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			return MkdirAll(path)
		case tar.TypeReg:
			if err := MkdirAll(filepath.Dir(path)); err != nil {
				return err
			}
			perm := os.FileMode(DefaultFilePerm)
			if hdr.FileInfo().Mode()&0111 != 0 {
				perm = DefaultExecPerm
			}
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, r); err != nil {
				f.Close()
				return fmt.Errorf("failed to extract %v from %v: %w", hdr.Name, archive, err)
			}
			return f.Close()
		}
		return nil
	})
}

// SanitizeArchivePath normalizes an archive entry name to a safe
// slash-separated relative path. Returns "" for entries that must not be
// materialized (absolute paths, paths escaping the extraction root).
func SanitizeArchivePath(name string) string {
	name = filepath.ToSlash(name)
	if name == "" || strings.HasPrefix(name, "/") {
		return ""
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return ""
	}
	if filepath.IsAbs(clean) {
		return ""
	}
	return filepath.ToSlash(clean)
}

// WriteTarArchive archives the contents of dir into the file.
// Compression is selected by the file name suffix, as in WalkTarArchive.
func WriteTarArchive(dir, file string) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	var writer io.Writer = f
	var closers []io.Closer
	switch {
	case strings.HasSuffix(file, ".tar.gz") || strings.HasSuffix(file, ".tgz"):
		gz := gzip.NewWriter(f)
		writer = gz
		closers = append(closers, gz)
	case strings.HasSuffix(file, ".tar.xz") || strings.HasSuffix(file, ".txz"):
		xzw, err := xz.NewWriter(f)
		if err != nil {
			return fmt.Errorf("failed to create xz archive %v: %w", file, err)
		}
		writer = xzw
		closers = append(closers, xzw)
	case strings.HasSuffix(file, ".tar"):
	default:
		return fmt.Errorf("unknown archive format: %v", file)
	}
	if err := tarDirectory(dir, writer); err != nil {
		return err
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return f.Close()
}

func tarDirectory(dir string, w io.Writer) error {
	tw := tar.NewWriter(w)
	err := filepath.Walk(dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil || !info.Mode().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	return tw.Close()
}
