package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateOTP returns a random numeric code of the given length,
// zero-padded. Used as the suffix of human-readable order codes.
func GenerateOTP(digits int) string {
	if digits <= 0 {
		digits = 3
	}
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return fmt.Sprintf("%0*d", digits, 0)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64())
}
