package bundlefs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// Digest is a content hash over every file of a bundle.
type Digest struct {
	algorithm string
	value     string
}

// ParseDigest parses a digest string (e.g., "sha256:abc123...").
func ParseDigest(s string) (Digest, error) {
	algorithm, value, ok := strings.Cut(s, ":")
	if !ok {
		return Digest{}, fmt.Errorf("invalid digest format: %s", s)
	}
	if algorithm != "sha256" {
		return Digest{}, fmt.Errorf("unsupported digest algorithm: %s", algorithm)
	}
	if _, err := hex.DecodeString(value); err != nil || len(value) != sha256.Size*2 {
		return Digest{}, fmt.Errorf("invalid digest value: %s", value)
	}
	return Digest{algorithm: algorithm, value: value}, nil
}

// ComputeDigest hashes the relative path and content of every regular file
// in fsys, in lexical walk order. Renaming a file changes the digest.
func ComputeDigest(fsys fs.FS) (Digest, error) {
	h := sha256.New()
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		f, err := fsys.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s\x00%d\x00", name, info.Size())
		if _, err := io.Copy(h, f); err != nil {
			return fmt.Errorf("hash %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return Digest{}, fmt.Errorf("failed to compute bundle digest: %w", err)
	}
	return Digest{algorithm: "sha256", value: hex.EncodeToString(h.Sum(nil))}, nil
}

// String returns the canonical digest string.
func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%s", d.algorithm, d.value)
}

// IsZero reports whether d was never computed.
func (d Digest) IsZero() bool {
	return d.value == ""
}

// Equals checks equality with another digest.
func (d Digest) Equals(other Digest) bool {
	return d.algorithm == other.algorithm && d.value == other.value
}
