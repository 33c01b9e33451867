// Package util provides small shared helpers for id generation and
// environment parsing.
package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const randomSuffixBytes = 8

// GenerateSessionID returns a new unique session identifier.
func GenerateSessionID() string {
	return fmt.Sprintf("s_%s", randomSuffix())
}

// GenerateIntakeID returns a new unique intake record identifier.
func GenerateIntakeID() string {
	return fmt.Sprintf("i_%s", randomSuffix())
}

func randomSuffix() string {
	buf := make([]byte, randomSuffixBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure is effectively unreachable; fall back to a
		// timestamp so id generation never blocks the caller.
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
