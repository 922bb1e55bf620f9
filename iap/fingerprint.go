package iap

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// Fingerprint returns a short, stable identifier for raw receipt bytes. It is
// what gets logged in place of the receipt.
func Fingerprint(receiptData []byte) string {
	sum := sha256.Sum256(receiptData)
	return base58.Encode(sum[:])
}
