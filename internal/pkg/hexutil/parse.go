// Package hexutil validates the hex-encoded hashes exchanged with NodeCore.
//
// It lives in internal/pkg so both inbound adapters and application services can
// use it without importing each other.
package hexutil

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// VbkHashSize is the byte length of a VeriBlock block hash.
	VbkHashSize = 24
	// BtcHashSize is the byte length of a Bitcoin block hash.
	BtcHashSize = 32
)

// Normalize trims spaces, lower-cases a hash and strips an optional 0x prefix.
func Normalize(hash string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hash)), "0x")
}

// ValidateHash checks that hash decodes to exactly size bytes.
func ValidateHash(hash string, size int) error {
	hash = Normalize(hash)
	if len(hash) != size*2 {
		return fmt.Errorf("invalid hash length: got %d characters, expected %d", len(hash), size*2)
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return fmt.Errorf("malformed hash: %w", err)
	}
	return nil
}

// ValidateVbkHash checks a VeriBlock block hash.
func ValidateVbkHash(hash string) error {
	return ValidateHash(hash, VbkHashSize)
}

// CanonicalVbkHash validates a VeriBlock block hash and returns it in the
// upper-case, unprefixed form NodeCore reports. Lookups, cache keys and stored
// rows all use this form.
func CanonicalVbkHash(hash string) (string, error) {
	if err := ValidateVbkHash(hash); err != nil {
		return "", err
	}
	return strings.ToUpper(Normalize(hash)), nil
}
