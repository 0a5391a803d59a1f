// Package integrity implements C3: SHA-256 content digests encoded as the
// Subresource-Integrity-style string "sha256-<base64>", and the matching
// cache filename encoding. Digesting is a cryptographic primitive, not a
// library concern — every repo in the pack that touches content hashes
// reaches for crypto/sha256 directly, so this package does too.
package integrity

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const prefix = "sha256-"

// Digest computes the integrity string for b: "sha256-<standard-base64>".
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return prefix + base64.StdEncoding.EncodeToString(sum[:])
}

// Verify reports whether b's digest equals expected.
func Verify(b []byte, expected string) bool {
	return Digest(b) == expected
}

// FromHex converts a lowercase-hex SHA-256 checksum (as returned by the
// registry in getVersion) into the "sha256-<base64>" string used by the
// lockfile and cache.
func FromHex(hexSum string) (string, error) {
	raw, err := hex.DecodeString(hexSum)
	if err != nil {
		return "", errors.Wrapf(err, "decoding hex checksum %q", hexSum)
	}
	if len(raw) != sha256.Size {
		return "", errors.Errorf("checksum %q is not a sha256 digest (%d bytes)", hexSum, len(raw))
	}
	return prefix + base64.StdEncoding.EncodeToString(raw), nil
}

// CacheFilename returns the self-describing cache filename for an integrity
// string: "sha256-<hex>.tgz", lowercase hex, independently derivable from
// the string.
func CacheFilename(integrity string) (string, error) {
	raw, err := decode(integrity)
	if err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(raw) + ".tgz", nil
}

func decode(integrity string) ([]byte, error) {
	if !strings.HasPrefix(integrity, prefix) {
		return nil, errors.Errorf("integrity string %q missing %q prefix", integrity, prefix)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(integrity, prefix))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding integrity string %q", integrity)
	}
	if len(raw) != sha256.Size {
		return nil, errors.Errorf("integrity string %q is not a sha256 digest", integrity)
	}
	return raw, nil
}

// Equal reports whether two integrity strings refer to byte-identical
// content, independent of any incidental formatting differences.
func Equal(a, b string) bool {
	ra, erra := decode(a)
	rb, errb := decode(b)
	if erra != nil || errb != nil {
		return a == b
	}
	return fmt.Sprintf("%x", ra) == fmt.Sprintf("%x", rb)
}
