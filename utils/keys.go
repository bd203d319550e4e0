package utils

import (
	"crypto/rand"
	"encoding/base64"
	"log"
	"time"
)

// GenerateHandoffKey creates a URL-safe random key for a hand-off entry
// when the client did not supply its own.
func GenerateHandoffKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Printf("ERROR: Failed to generate random bytes for handoff key: %v", err)
		return "fallback_key_" + time.Now().Format("20060102150405.000")
	}
	return base64.URLEncoding.EncodeToString(b)
}
