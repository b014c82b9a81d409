package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// totpPeriod is the RFC 6238 time step in seconds.
	totpPeriod = 30
	// totpSecretSize is the raw secret length in bytes (160 bits).
	totpSecretSize = 20
	// totpSkew is the accepted clock drift in steps on each side.
	totpSkew = 1
)

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateTOTPSecret creates a fresh 160-bit TOTP secret and its
// otpauth://totp provisioning URI so any authenticator app can enroll it.
func GenerateTOTPSecret(issuer, accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// matchTOTPCode checks code against the secret for the current step and one
// step on each side. On success it returns the RFC 6238 counter that matched,
// so the caller can record it for replay rejection. Every candidate step is
// evaluated and compared in constant time.
func matchTOTPCode(secret, code string, now time.Time) (counter int64, ok bool) {
	base := now.Unix() / totpPeriod
	matched := int64(0)
	found := 0
	for skew := int64(-totpSkew); skew <= totpSkew; skew++ {
		c := base + skew
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(c*totpPeriod, 0), totpOpts)
		if err != nil {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			matched = c
			found = 1
		}
	}
	return matched, found == 1
}

// GenerateTOTPCode returns the code for the secret at the given time.
// Used by enrollment previews and tests.
func GenerateTOTPCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totpOpts)
}
