// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package measurer

import (
	"os/exec"
	"time"

	"github.com/google/fuzzmeasure/pkg/hash"
	"github.com/google/fuzzmeasure/pkg/osutil"
)

// Executor runs instrumented target binaries. The default implementation
// spawns real processes; tests substitute a fake that writes canned
// coverage dumps instead.
type Executor interface {
	Run(timeout time.Duration, cmd *exec.Cmd) ([]byte, error)
}

type osExecutor struct{}

func (osExecutor) Run(timeout time.Duration, cmd *exec.Cmd) ([]byte, error) {
	return osutil.Run(timeout, cmd)
}

// ArchiveComparer decides whether two local corpus archives hold the
// same corpus. Used as the second tier of unchanged-cycle detection,
// after the trial runner's own unchanged-cycles list.
type ArchiveComparer interface {
	Identical(prev, cur string) (bool, error)
}

// checksumComparer compares archives by content checksum. Trial runners
// re-upload the previous archive byte-identically when the corpus did
// not change, so checksum equality is exactly corpus equality.
type checksumComparer struct{}

func (checksumComparer) Identical(prev, cur string) (bool, error) {
	prevSig, err := hash.HashFile(prev)
	if err != nil {
		return false, err
	}
	curSig, err := hash.HashFile(cur)
	if err != nil {
		return false, err
	}
	return prevSig == curSig, nil
}
