// Package uid provides unique identifier generation for videoup.
package uid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewKey returns a fresh object key: a random (version 4) UUID drawn from
// crypto/rand. It holds no state and is safe for unlimited concurrent use.
func NewKey() string {
	return uuid.NewString()
}

// New generates a 32-character hex string suitable for tokens minted by
// the in-memory backend (upload IDs) using crypto/rand.
func New() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback: timestamp-based ID. Should never happen with crypto/rand.
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
