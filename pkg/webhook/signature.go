package webhook

import (
	"crypto/subtle"
)

// verifySecretToken compares the received header with the configured secret.
// An empty secret accepts every request.
func verifySecretToken(received, secret string) bool {
	if secret == "" {
		return true
	}

	// Timing-safe comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(received), []byte(secret)) == 1
}
