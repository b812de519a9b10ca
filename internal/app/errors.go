package app

import (
	"fmt"
	"time"

	"adjusterhub/internal/apperr"
)

var (
	ErrInvalidInput = apperr.New(apperr.KindValidation, "invalid input")
	ErrForbidden    = apperr.New(apperr.KindAuthorization, "forbidden")

	ErrInvalidCredentials = apperr.WithCode(apperr.KindAuthentication, 40101, "Invalid credentials")
	ErrAccountLocked      = apperr.WithCode(apperr.KindAuthentication, 40102, "Account temporarily locked")
	ErrInvalidTwoFactor   = apperr.WithCode(apperr.KindAuthentication, 40103, "Invalid two-factor code")
	ErrSessionInvalid     = apperr.WithCode(apperr.KindAuthentication, 40104, "session expired or revoked")
	ErrTooManyAttempts    = apperr.WithCode(apperr.KindRateLimit, 42901, "Too many login attempts")
	ErrEmailExists        = apperr.WithCode(apperr.KindConflict, 40901, "email already registered")
	ErrTwoFactorEnabled   = apperr.WithCode(apperr.KindConflict, 40902, "two-factor already enabled")
	ErrTwoFactorNotSetup  = apperr.WithCode(apperr.KindValidation, 40001, "two-factor setup not started")
	ErrWeakPassword       = apperr.WithCode(apperr.KindValidation, 40002, "password too short")
	ErrFirmRequired       = apperr.WithCode(apperr.KindValidation, 40003, "firm code required for firm accounts")
	ErrUserNotFound       = apperr.New(apperr.KindNotFound, "user not found")
	ErrSessionNotFound    = apperr.New(apperr.KindNotFound, "session not found")
)

// RateLimitError is returned when a limiter rejects an attempt.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrTooManyAttempts.Message, e.Wait)
}

func (e *RateLimitError) Unwrap() error { return ErrTooManyAttempts }

func (e *RateLimitError) RetryAfter() time.Duration { return e.Wait }
