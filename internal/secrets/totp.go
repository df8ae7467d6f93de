package secrets

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// KeyTOTP is the secret data key holding a base32 TOTP seed.
const KeyTOTP = "totp"

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// ApplyTOTP replaces the seed under KeyTOTP, if present, with the one-time
// code valid at now.
func ApplyTOTP(data map[string]string, now time.Time) error {
	seed, ok := data[KeyTOTP]
	if !ok {
		return nil
	}
	code, err := totp.GenerateCodeCustom(normalizeSeed(seed), now, totpOpts)
	if err != nil {
		return fmt.Errorf("generating totp code: %w", err)
	}
	data[KeyTOTP] = code
	return nil
}

// normalizeSeed accepts seeds the way authenticator apps print them: grouped
// with spaces, lower case, with or without padding.
func normalizeSeed(seed string) string {
	seed = strings.ToUpper(strings.Join(strings.Fields(seed), ""))
	return strings.TrimRight(seed, "=")
}
