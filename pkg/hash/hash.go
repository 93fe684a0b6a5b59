// Copyright 2026 fuzzmeasure project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package hash provides SHA1 content signatures.
// Corpus units are stored under the hex form of their signature,
// so equal contents collapse to a single file regardless of origin.
package hash

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
)

type Sig [sha1.Size]byte

func Hash(pieces ...[]byte) Sig {
	h := sha1.New()
	for _, data := range pieces {
		h.Write(data)
	}
	var sig Sig
	copy(sig[:], h.Sum(nil))
	return sig
}

func String(pieces ...[]byte) string {
	sig := Hash(pieces...)
	return sig.String()
}

func (sig *Sig) String() string {
	return hex.EncodeToString((*sig)[:])
}

// HashFile computes the signature of a file without loading it whole.
func HashFile(file string) (Sig, error) {
	f, err := os.Open(file)
	if err != nil {
		return Sig{}, err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return Sig{}, fmt.Errorf("failed to hash %v: %w", file, err)
	}
	var sig Sig
	copy(sig[:], h.Sum(nil))
	return sig, nil
}

func FromString(str string) (Sig, error) {
	bin, err := hex.DecodeString(str)
	if err != nil {
		return Sig{}, fmt.Errorf("failed to decode sig '%v': %w", str, err)
	}
	if len(bin) != len(Sig{}) {
		return Sig{}, fmt.Errorf("failed to decode sig '%v': bad len", str)
	}
	var sig Sig
	copy(sig[:], bin)
	return sig, nil
}

var digestRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// IsDigest reports whether name looks like the hex form of a signature.
func IsDigest(name string) bool {
	return digestRe.MatchString(name)
}
