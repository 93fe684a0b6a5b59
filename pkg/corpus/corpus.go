// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package corpus extracts fuzzer corpus snapshot archives into a
// content-addressed unit directory.
//
// Archives come in two producer conventions. Flat archives hold one
// unit per regular file (libFuzzer-style corpus directories). Queue
// layouts hold units only directly under a queue/ directory (AFL-style
// output trees); queue/.state and the other bookkeeping files are not
// units. Either way every unit lands in the destination directory under
// the hex SHA1 of its contents, so re-extraction and duplicates across
// producers are free.
package corpus

import (
	"archive/tar"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/fuzzmeasure/pkg/hash"
	"github.com/google/fuzzmeasure/pkg/osutil"
)

// layout selects which archive entries hold corpus units.
type layout interface {
	isUnit(name string) bool
}

// Extract materializes all units of the archive into destDir.
// Units whose digest is in the caller's known set or whose content is
// already present in destDir are skipped, so the accumulated corpus
// only grows. It returns the digests of newly added units.
func Extract(archive, destDir string, known map[string]bool) ([]string, error) {
	if err := osutil.MkdirAll(destDir); err != nil {
		return nil, err
	}
	lt, err := detectLayout(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to extract corpus %v: %w", archive, err)
	}
	var added []string
	seen := make(map[string]bool)
	err = osutil.WalkTarArchive(archive, func(hdr *tar.Header, r io.Reader) error {
		if hdr.Typeflag != tar.TypeReg || !lt.isUnit(hdr.Name) {
			return nil
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("failed to read %v: %w", hdr.Name, err)
		}
		digest := hash.String(data)
		if known[digest] || seen[digest] {
			return nil
		}
		file := UnitPath(destDir, digest)
		if osutil.IsExist(file) {
			return nil
		}
		if err := osutil.WriteFile(file, data); err != nil {
			return err
		}
		seen[digest] = true
		added = append(added, digest)
		return nil
	})
	if err != nil {
		return added, fmt.Errorf("failed to extract corpus %v: %w", archive, err)
	}
	return added, nil
}

// detectLayout scans entry names and picks the layout strategy:
// any queue/ directory in the archive makes it a queue layout.
func detectLayout(archive string) (layout, error) {
	queue := false
	err := osutil.WalkTarArchive(archive, func(hdr *tar.Header, r io.Reader) error {
		segments := splitEntry(hdr.Name)
		for _, segment := range segments[:max(len(segments)-1, 0)] {
			if segment == "queue" {
				queue = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if queue {
		return queueLayout{}, nil
	}
	return flatLayout{}, nil
}

// flatLayout: every regular file is a unit, except dotfile bookkeeping.
type flatLayout struct{}

func (flatLayout) isUnit(name string) bool {
	segments := splitEntry(name)
	return len(segments) > 0 && !strings.HasPrefix(segments[len(segments)-1], ".")
}

// queueLayout: only files directly under a queue/ directory are units.
type queueLayout struct{}

func (queueLayout) isUnit(name string) bool {
	segments := splitEntry(name)
	if len(segments) < 2 || strings.HasPrefix(segments[len(segments)-1], ".") {
		return false
	}
	return segments[len(segments)-2] == "queue"
}

func splitEntry(name string) []string {
	name = osutil.SanitizeArchivePath(name)
	if name == "" {
		return nil
	}
	return strings.Split(name, "/")
}

// ListUnits returns the digests of all units currently present in dir.
func ListUnits(dir string) ([]string, error) {
	names, err := osutil.ListDir(dir)
	if err != nil {
		return nil, err
	}
	var digests []string
	for _, name := range names {
		if hash.IsDigest(name) {
			digests = append(digests, name)
		}
	}
	return digests, nil
}

// UnitPath returns the location of a unit inside the corpus dir.
func UnitPath(dir, digest string) string {
	return filepath.Join(dir, digest)
}
