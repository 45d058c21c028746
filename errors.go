package goAccount

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAccountNotFound is returned when no account matches an identifier
	// or id. Account stores return it directly.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountLocked is matched by every *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountNotRecoverable is returned for accounts that are neither
	// active nor inside their recovery window.
	ErrAccountNotRecoverable = errors.New("account not recoverable")
	// ErrInvalidCredentials is matched by every *InvalidCredentialsError.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRecoveryWindowExpired is returned by Reactivate once the scheduled
	// deletion time has passed.
	ErrRecoveryWindowExpired = errors.New("recovery window expired")
	// ErrInvalidCode is returned for unknown, superseded, consumed or wrong
	// one-time codes.
	ErrInvalidCode = errors.New("invalid one-time code")
	// ErrCodeExpired is returned for a code presented after its expiry.
	ErrCodeExpired = errors.New("one-time code expired")
	// ErrStepUpRequired is returned when a protected operation is attempted
	// without a valid elevated ticket for its purpose.
	ErrStepUpRequired = errors.New("step-up verification required")
	// ErrStepUpRateLimited is returned when step-up attempts are throttled.
	ErrStepUpRateLimited = errors.New("step-up rate limited")
	// ErrInvalidPurpose is returned for empty or oversized purposes.
	ErrInvalidPurpose = errors.New("invalid step-up purpose")
	// ErrCodeDeliveryFailed is returned when the code notifier fails. No
	// code stays live in that case.
	ErrCodeDeliveryFailed = errors.New("one-time code delivery failed")
	// ErrNotEligibleForErasure is returned by MarkPendingErasure while the
	// account is still inside its recovery window or not deactivated.
	ErrNotEligibleForErasure = errors.New("account not eligible for erasure")
	// ErrInvalidRetention is returned for a negative retention period.
	ErrInvalidRetention = errors.New("invalid retention period")
	// ErrEngineNotReady is returned when a required dependency is missing.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable wraps backend failures and exhausted retries.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSessionInvalid is returned for unknown, expired or malformed
	// sessions and access tokens.
	ErrSessionInvalid = errors.New("session invalid")
)

// LockedError reports a refused login and how long the lockout still runs.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked: retry in %s", e.Remaining.Round(time.Second))
}

// Is matches ErrAccountLocked.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// InvalidCredentialsError reports a wrong secret and the attempts left
// before the account locks.
type InvalidCredentialsError struct {
	AttemptsRemaining int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials: %d attempts remaining", e.AttemptsRemaining)
}

// Is matches ErrInvalidCredentials.
func (e *InvalidCredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}
