package lifecycle

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	"ms-qrinventory/internal/apperr"
)

const serialPrefix = "QR"

var serialPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{10}$`)

// NewSerial returns a fresh serial: the QR prefix and ten random digits, so
// callers can dial any numeric tail of it as a suffix.
func NewSerial() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1e10))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%010d", serialPrefix, n.Int64()), nil
}

func ValidateSerial(serial string) error {
	if !serialPattern.MatchString(serial) {
		return apperr.Validation(apperr.ReasonInvalidSerial,
			fmt.Sprintf("malformed serial number %q", serial))
	}
	return nil
}
