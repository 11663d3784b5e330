package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"attendguard/utils"
)

var ErrInvalidAttendanceCode = errors.New("invalid attendance code")

// AttendanceCodes issues and checks the rotating codes organizers display in
// the room. A session without a secret does not require a code.
type AttendanceCodes struct {
	Clock  utils.Clock
	Period uint
	Skew   uint
}

func NewAttendanceCodes(clock utils.Clock) *AttendanceCodes {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &AttendanceCodes{Clock: clock, Period: 30, Skew: 1}
}

func (a *AttendanceCodes) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    a.Period,
		Skew:      a.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// NewSecret creates a secret for a session.
func (a *AttendanceCodes) NewSecret(sessionID string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "AttendGuard",
		AccountName: sessionID,
		Period:      a.Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate attendance code secret: %w", err)
	}
	return key.Secret(), nil
}

// Current returns the code valid right now for secret.
func (a *AttendanceCodes) Current(secret string) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, a.Clock.Now(), a.opts())
	if err != nil {
		return "", fmt.Errorf("failed to generate attendance code: %w", err)
	}
	return code, nil
}

// Verify checks code against secret. An empty secret accepts any code.
func (a *AttendanceCodes) Verify(secret, code string) error {
	if secret == "" {
		return nil
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidAttendanceCode
	}
	valid, err := totp.ValidateCustom(code, secret, a.Clock.Now(), a.opts())
	if err != nil || !valid {
		return ErrInvalidAttendanceCode
	}
	return nil
}
