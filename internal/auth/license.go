// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package auth

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/oops"
)

// licenseAlphabet omits 0/O and 1/I so keys survive being read aloud.
const licenseAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// Default and minimum random suffix lengths for license keys.
const (
	DefaultLicenseLength = 8
	MinLicenseLength     = 4
)

// LicenseGenerator produces candidate license keys. Uniqueness is enforced
// by the repository; callers retry on conflict.
type LicenseGenerator interface {
	Generate() (string, error)
}

// YearCodeGenerator produces keys of the form YYYY-XXXXXXXX where the year is
// the year of issue.
type YearCodeGenerator struct {
	length int
	now    func() time.Time
	rand   io.Reader
}

// NewYearCodeGenerator creates a generator with a random suffix of length
// characters. Lengths below MinLicenseLength are raised to it.
func NewYearCodeGenerator(length int) *YearCodeGenerator {
	if length < MinLicenseLength {
		length = MinLicenseLength
	}
	return &YearCodeGenerator{length: length, now: time.Now, rand: rand.Reader}
}

// Generate returns a new candidate key.
func (g *YearCodeGenerator) Generate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", oops.Code("LICENSE_ENTROPY_FAILED").Wrap(err)
	}

	var sb strings.Builder
	sb.Grow(5 + g.length)
	fmt.Fprintf(&sb, "%04d-", g.now().Year())
	for _, b := range buf {
		// 256 is a multiple of 32, so the modulo is unbiased.
		sb.WriteByte(licenseAlphabet[int(b)%len(licenseAlphabet)])
	}
	return sb.String(), nil
}
