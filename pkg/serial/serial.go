// Copyright 2026 Posworks. All rights reserved.
// Use of this source code is governed by a BSD-style license
// specified in the Github project LICENSE file.

// The serial package handles the format, checksum and generation of serial numbers.
// A serial number is made of four dash-separated groups: a product prefix,
// a four digit year, six random alphanumerics and a four character checksum.
package serial

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrFormat   = errors.New("invalid serial number format")
	ErrChecksum = errors.New("invalid serial number checksum")
)

// ambiguous characters (0/O, 1/I) are excluded from generated groups
const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var pattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,5}-[0-9]{4}-[A-Z0-9]{6}-[A-Z0-9]{4}$`)

// Normalize trims surrounding spaces and upper-cases a serial number.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// CheckFormat verifies that a normalized serial number matches the four-group pattern.
func CheckFormat(s string) error {
	if !pattern.MatchString(s) {
		return ErrFormat
	}
	return nil
}

// Checksum computes the check group of a serial number: a keyed mac over the
// first three groups, truncated to four characters of the serial charset.
func Checksum(base string, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	sum := mac.Sum(nil)

	var b strings.Builder
	for i := 0; i < 4; i++ {
		b.WriteByte(charset[int(sum[i])%len(charset)])
	}
	return b.String()
}

// CheckMAC verifies the check group of a normalized serial number.
// The format must have been checked beforehand.
func CheckMAC(s string, secret string) error {
	idx := strings.LastIndex(s, "-")
	if idx < 0 {
		return ErrFormat
	}
	if s[idx+1:] != Checksum(s[:idx], secret) {
		return ErrChecksum
	}
	return nil
}

// New generates a fresh serial number with the given prefix and the current year.
func New(prefix string, secret string) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range buf {
		b.WriteByte(charset[int(c)%len(charset)])
	}

	base := fmt.Sprintf("%s-%d-%s", strings.ToUpper(prefix), time.Now().Year(), b.String())
	return base + "-" + Checksum(base, secret), nil
}

// Derive builds a deterministic serial number from a seed, used for the
// emergency key an installation derives from its own fingerprint.
func Derive(prefix string, secret string, seed []byte) string {
	sum := sha256.Sum256(seed)
	var b strings.Builder
	for i := 0; i < 6; i++ {
		b.WriteByte(charset[int(sum[i])%len(charset)])
	}
	base := fmt.Sprintf("%s-%d-%s", strings.ToUpper(prefix), time.Now().Year(), b.String())
	return base + "-" + Checksum(base, secret)
}

// Mask redacts the middle groups of a serial number, keeping the prefix and
// the check group. Used when reporting a conflicting key to another customer.
func Mask(s string) string {
	groups := strings.Split(s, "-")
	if len(groups) != 4 {
		return "****"
	}
	return groups[0] + "-****-******-" + groups[3]
}
