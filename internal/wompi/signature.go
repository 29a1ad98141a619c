package wompi

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// IntegritySignature computes the checkout integrity hash: the hex SHA-256 of
// reference, amount in cents, currency and the integrity secret concatenated
// in that order.
func IntegritySignature(reference string, amountInCents int64, currency, secret string) string {
	sum := sha256.Sum256([]byte(reference + strconv.FormatInt(amountInCents, 10) + currency + secret))
	return hex.EncodeToString(sum[:])
}
