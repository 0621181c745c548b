// Package tracking generates customer-facing shipment tracking codes.
package tracking

import (
	"crypto/rand"
	"fmt"
)

// Prefix distinguishes locally issued tracking codes from any carrier number.
const Prefix = "SL-"

const (
	suffixLength = 10
	// Crockford base32: no I, L, O, U, so codes stay legible when read aloud.
	alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
)

// NewCode returns a short, human-legible, collision-resistant tracking code
// of the form SL-XXXXXXXXXX. It has no external dependency and never fails
// under a functioning OS entropy source.
func NewCode() string {
	buf := make([]byte, suffixLength)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("tracking: entropy source unavailable: %v", err))
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return Prefix + string(buf)
}
