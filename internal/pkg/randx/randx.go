/*
Package randx provides cryptographically secure random identifiers.

It generates the per-session local connection identifiers published through the presence
store and the Base62 session ids embedded in session tokens.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// SessionIDLength is the fixed length of a generated session id.
	SessionIDLength = 16
)

// LocalID generates a fresh UUID v4 used as the media engine's local connection identifier.
func LocalID() string {
	return uuid.New().String()
}

// SessionID generates a Base62 session id of length SessionIDLength using crypto/rand.
func SessionID() (string, error) {
	result := make([]byte, SessionIDLength)

	for i := 0; i < SessionIDLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number for session id: %w", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// IsValidSessionID checks the length and alphabet of a session id.
func IsValidSessionID(id string) bool {
	if len(id) != SessionIDLength {
		return false
	}

	for _, char := range id {
		if !strings.ContainsRune(Base62Chars, char) {
			return false
		}
	}

	return true
}
