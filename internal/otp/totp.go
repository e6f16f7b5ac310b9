package otp

import (
	"time"

	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20
)

// Enrollment is a freshly generated TOTP secret and its otpauth URL.
type Enrollment struct {
	Secret string
	URL    string
}

// TOTP generates and validates time-based one-time codes.
type TOTP struct {
	issuer string
	skew   uint
}

// NewTOTP returns a TOTP helper. skew is the number of 30 second steps
// accepted on either side of the current one.
func NewTOTP(issuer string, skew uint) *TOTP {
	return &TOTP{issuer: issuer, skew: skew}
}

// GenerateSecret creates a new base32 secret labelled with account.
func (t *TOTP) GenerateSecret(account string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: account,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      pqotp.DigitsSix,
		Algorithm:   pqotp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// Validate reports whether code is valid for secret at now.
func (t *TOTP) Validate(code, secret string, now time.Time) bool {
	if !IsValidCodeFormat(code) || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), t.opts())
	return err == nil && ok
}

// Code returns the code for secret at now.
func (t *TOTP) Code(secret string, now time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, now.UTC(), t.opts())
}

func (t *TOTP) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      t.skew,
		Digits:    pqotp.DigitsSix,
		Algorithm: pqotp.AlgorithmSHA1,
	}
}
