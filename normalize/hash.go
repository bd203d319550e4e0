package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

var digestRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Hash returns the lowercase hex SHA-256 digest of value, or the empty
// string for empty input. Callers must normalize before hashing.
func Hash(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// HashFields hashes every value of the map in place-preserving fashion:
// keys are kept, empty values stay empty, and values that already match the
// digest shape pass through untouched (externally pre-hashed fields).
func HashFields(fields map[string]string) map[string]string {
	hashed := make(map[string]string, len(fields))
	for k, v := range fields {
		if v == "" || IsValidDigest(v) {
			hashed[k] = v
			continue
		}
		hashed[k] = Hash(v)
	}
	return hashed
}

// IsValidDigest reports whether s has the 64-hex-character shape of a
// SHA-256 digest. Used defensively when accepting "already hashed" fields
// from outside.
func IsValidDigest(s string) bool {
	return digestRe.MatchString(s)
}
