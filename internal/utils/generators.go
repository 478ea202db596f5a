package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateTicketID returns PT-<unix seconds>-<6 random digits>.
func GenerateTicketID(now time.Time) string {
	randomNum, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		randomNum = big.NewInt(now.UnixNano() % 1000000)
	}
	return fmt.Sprintf("PT-%d-%06d", now.Unix(), randomNum.Int64())
}

// FormatBundleID renders a bundle sequence as BND-000042.
func FormatBundleID(seq int64) string {
	return fmt.Sprintf("BND-%06d", seq)
}
