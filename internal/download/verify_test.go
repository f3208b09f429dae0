// SPDX-License-Identifier: MPL-2.0

package download

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "payload.zap")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseDigest(t *testing.T) {
	t.Parallel()

	hex64 := strings.Repeat("ab", 32)
	tests := []struct {
		in      string
		alg     Algorithm
		wantErr bool
	}{
		{in: "SHA-256:" + hex64, alg: SHA256},
		{in: "sha256:" + strings.ToUpper(hex64), alg: SHA256},
		{in: hex64, alg: SHA256},
		{in: "SHA-1:" + strings.Repeat("0", 40), alg: SHA1},
		{in: "SHA-512:" + strings.Repeat("f", 128), alg: SHA512},
		{in: "SHA3-256:" + hex64, alg: SHA3_256},
		{in: "blake2b-256:" + hex64, alg: BLAKE2b256},
		{in: "MD5:" + strings.Repeat("0", 32), wantErr: true},
		{in: "SHA-256:abc", wantErr: true},
		{in: "SHA-256:" + strings.Repeat("zz", 32), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			d, err := ParseDigest(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDigest(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDigest(%q) error: %v", tt.in, err)
			}
			if d.Algorithm != tt.alg || d.Hex != strings.ToLower(d.Hex) {
				t.Errorf("ParseDigest(%q) = %+v", tt.in, d)
			}
		})
	}
}

func TestVerify_AllAlgorithms(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "add-on bytes")
	for _, alg := range []Algorithm{SHA1, SHA256, SHA512, SHA3_256, BLAKE2b256} {
		sum, err := FileDigest(p, alg)
		if err != nil {
			t.Fatalf("FileDigest(%s) error: %v", alg, err)
		}
		if err := Verify(p, int64(len("add-on bytes")), string(alg)+":"+sum); err != nil {
			t.Errorf("Verify(%s) error: %v", alg, err)
		}
	}
}

func TestVerify_Mismatch(t *testing.T) {
	t.Parallel()

	content := "add-on bytes"
	p := writeFile(t, content)

	tests := []struct {
		name  string
		size  int64
		hash  string
		check string
	}{
		{name: "size", size: 999, check: "size"},
		{name: "hash", size: int64(len(content)), hash: "SHA-256:" + sha256Hex([]byte("other")), check: "hash"},
		{name: "unparsable hash", hash: "CRC32:1234", check: "hash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Verify(p, tt.size, tt.hash)
			if !errors.Is(err, ErrValidationFailure) {
				t.Fatalf("Verify() error = %v, want ErrValidationFailure", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Check != tt.check {
				t.Errorf("Verify() error = %#v", err)
			}
			if _, statErr := os.Stat(p); statErr != nil {
				t.Error("a file that fails validation must be kept")
			}
		})
	}
}

func TestVerify_NoExpectations(t *testing.T) {
	t.Parallel()

	if err := Verify(writeFile(t, "x"), 0, ""); err != nil {
		t.Errorf("Verify() without expectations error: %v", err)
	}
	if err := Verify(filepath.Join(t.TempDir(), "missing"), 0, ""); err == nil || errors.Is(err, ErrValidationFailure) {
		t.Errorf("Verify(missing) error = %v, want a plain stat error", err)
	}
}
