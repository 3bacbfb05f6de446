// Package signature implements the SHA-512 request/callback signing used by
// Alatau Pay: the secret is prepended to the ';'-joined field values and the
// lowercase hex digest of the result is the signature.
package signature

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const separator = ";"

// Payload is a message whose signed field order is fixed by the protocol.
type Payload interface {
	SignFields() []string
}

// Generate signs fields in the given order.
func Generate(secret string, fields ...string) string {
	sum := sha512.Sum512([]byte(secret + strings.Join(fields, separator)))
	return hex.EncodeToString(sum[:])
}

// Sign signs a typed payload.
func Sign(p Payload, secret string) string {
	return Generate(secret, p.SignFields()...)
}

// Verify reports whether sig matches the payload. A mismatch is not an error.
func Verify(p Payload, secret, sig string) bool {
	if sig == "" {
		return false
	}
	expected := Sign(p, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1
}

// StripNewlines removes CR and LF from free-text fields.
func StripNewlines(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
