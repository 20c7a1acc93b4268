package util

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// FileSHA256 hashes a source document; the manifest keys re-ingestion on it.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashToken returns the first n hex digits of the SHA-256 of parts joined by "|".
// n <= 0 or past the digest length returns the full digest.
func HashToken(n int, parts ...string) string {
	x := sha256.Sum256([]byte(strings.Join(parts, "|")))
	s := hex.EncodeToString(x[:])
	if n <= 0 || n > len(s) {
		return s
	}
	return s[:n]
}
