// Package hashing implements the canonical text normalization and
// content-addressing primitives captures are deduplicated on.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// maxFingerprintBytes bounds the audio fingerprint read per spec §4.1.
const maxFingerprintBytes = 4 * 1024 * 1024

// Normalize trims outer whitespace and converts CRLF/CR line endings to LF,
// preserving interior whitespace. It is deterministic and idempotent:
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// Hash returns the lowercase hex SHA-256 digest of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// AudioFingerprint hashes the first 4 MiB of the file at path (the whole
// file if it is shorter). An empty file hashes to the SHA-256 of the empty
// string.
func AudioFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, io.LimitReader(f, maxFingerprintBytes)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// EmailHash builds the canonical content hash for an email capture:
// hash("message_id:<id>\nbody:<normalize(body)>").
func EmailHash(messageID, body string) string {
	return Hash("message_id:" + messageID + "\nbody:" + Normalize(body))
}
