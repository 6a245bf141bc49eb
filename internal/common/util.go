package common

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateRandByteArray returns size bytes from crypto/rand.
// It panics if the system random source fails, which is unrecoverable.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// RandomURLToken returns a URL-safe, unpadded base64 encoding of size
// random bytes. Suitable for OAuth state values and PKCE-like secrets.
func RandomURLToken(size int) string {
	return base64.RawURLEncoding.EncodeToString(GenerateRandByteArray(size))
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// Used for passwords and key material once they are no longer needed.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
