package security

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpSkew   = 1
)

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTP wraps RFC 6238 codes: 30 second period, 6 digits, one step of clock skew.
type TOTP struct {
	issuer string
}

type TOTPSecret struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

func NewTOTP(issuer string) *TOTP {
	return &TOTP{issuer: issuer}
}

func (t *TOTP) GenerateSecret(account string) (*TOTPSecret, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: account,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret failed: %w", err)
	}
	return &TOTPSecret{Secret: key.Secret(), URL: key.URL()}, nil
}

// Verify checks code against the steps around now and returns the matched step. Steps at
// or before lastStep were already used and never match, so a code works once.
func (t *TOTP) Verify(code, secret string, now time.Time, lastStep int64) (int64, bool) {
	if code == "" || secret == "" {
		return 0, false
	}
	current := now.Unix() / totpPeriod
	for step := current + totpSkew; step >= current-totpSkew; step-- {
		if step <= lastStep {
			break
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0), totpOpts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

// Code returns the current code for secret. Used by tests and the setup flow preview.
func (t *TOTP) Code(secret string, now time.Time) (string, error) {
	return totp.GenerateCode(secret, now)
}
