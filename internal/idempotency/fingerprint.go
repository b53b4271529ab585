package idempotency

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// Derive computes the fingerprint of a creation request from its four
// semantic fields. Decimal rendering trims trailing zeros, so 100 and
// 100.00 yield the same fingerprint.
func Derive(accountDebit, accountCredit string, transferTypeID int, amount decimal.Decimal) string {
	canonical := fmt.Sprintf("%s|%s|%d|%s", accountDebit, accountCredit, transferTypeID, amount.String())
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// LockKey reduces a fingerprint to the signed 64-bit key naming its
// advisory lock: the first 8 bytes of sha256(fingerprint), big-endian.
func LockKey(fingerprint string) int64 {
	sum := sha256.Sum256([]byte(fingerprint))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
