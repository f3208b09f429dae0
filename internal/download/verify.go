// SPDX-License-Identifier: MPL-2.0

package download

import (
	"crypto/sha1" //nolint:gosec // SHA-1 digests are still published by older catalogs.
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// ErrValidationFailure is returned when a downloaded file does not match its
// declared size or hash.
var ErrValidationFailure = errors.New("download validation failed")

type (
	// Algorithm names a supported digest.
	Algorithm string

	// Digest is a parsed "ALG:hex" hash declaration.
	Digest struct {
		Algorithm Algorithm
		Hex       string
	}

	// ValidationError describes a size or hash mismatch. It wraps
	// ErrValidationFailure so callers can use errors.Is for classification.
	ValidationError struct {
		Path     string
		Check    string
		Expected string
		Got      string
	}
)

// Supported algorithms.
const (
	SHA1       Algorithm = "SHA-1"
	SHA256     Algorithm = "SHA-256"
	SHA512     Algorithm = "SHA-512"
	SHA3_256   Algorithm = "SHA3-256"
	BLAKE2b256 Algorithm = "BLAKE2b-256"
)

// Error returns a human-readable description of the mismatch.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s verification failed for %s\nExpected: %s\nGot:      %s", e.Check, e.Path, e.Expected, e.Got)
}

// Unwrap returns ErrValidationFailure.
func (e *ValidationError) Unwrap() error { return ErrValidationFailure }

// ParseDigest parses "ALG:hex". Algorithm names are case-insensitive and may
// omit dashes ("sha256", "SHA-256"). A bare hex string is SHA-256.
func ParseDigest(s string) (Digest, error) {
	s = strings.TrimSpace(s)
	alg, value, found := strings.Cut(s, ":")
	if !found {
		alg, value = string(SHA256), s
	}

	d := Digest{Hex: strings.ToLower(value)}
	switch strings.ReplaceAll(strings.ToUpper(alg), "-", "") {
	case "SHA1":
		d.Algorithm = SHA1
	case "SHA256":
		d.Algorithm = SHA256
	case "SHA512":
		d.Algorithm = SHA512
	case "SHA3256":
		d.Algorithm = SHA3_256
	case "BLAKE2B256":
		d.Algorithm = BLAKE2b256
	default:
		return Digest{}, fmt.Errorf("unsupported hash algorithm %q", alg)
	}

	if _, err := hex.DecodeString(d.Hex); err != nil || len(d.Hex) != d.Algorithm.hexLen() {
		return Digest{}, fmt.Errorf("invalid %s digest %q", d.Algorithm, value)
	}
	return d, nil
}

// String renders the digest as "ALG:hex".
func (d Digest) String() string {
	return string(d.Algorithm) + ":" + d.Hex
}

func (a Algorithm) hexLen() int {
	switch a {
	case SHA1:
		return 40
	case SHA512:
		return 128
	default:
		return 64
	}
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case SHA1:
		return sha1.New() //nolint:gosec // See import.
	case SHA512:
		return sha512.New()
	case SHA3_256:
		return sha3.New256()
	case BLAKE2b256:
		h, _ := blake2b.New256(nil) //nolint:errcheck // Only fails for keys longer than 64 bytes.
		return h
	default:
		return sha256.New()
	}
}

// FileDigest computes the digest of the file at path with algorithm a. It
// streams the file to avoid loading it into memory.
func FileDigest(path string, a Algorithm) (_ string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }() // read-only file handle

	h := a.newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks the file at path against the declared size and hash. A
// non-positive expectedSize or an empty expectedHash skips that check. The
// file is never removed.
func Verify(path string, expectedSize int64, expectedHash string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("verifying %s: %w", path, err)
	}
	if expectedSize > 0 && info.Size() != expectedSize {
		return &ValidationError{
			Path:     path,
			Check:    "size",
			Expected: fmt.Sprint(expectedSize),
			Got:      fmt.Sprint(info.Size()),
		}
	}

	if expectedHash == "" {
		return nil
	}
	want, err := ParseDigest(expectedHash)
	if err != nil {
		return &ValidationError{Path: path, Check: "hash", Expected: expectedHash, Got: err.Error()}
	}
	got, err := FileDigest(path, want.Algorithm)
	if err != nil {
		return err
	}
	if got != want.Hex {
		return &ValidationError{Path: path, Check: "hash", Expected: want.String(), Got: string(want.Algorithm) + ":" + got}
	}
	return nil
}
