package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goAccount/internal/audit"
	"github.com/MrEthical07/goAccount/internal/metrics"
)

// LoginSession is what the host issues once an attempt is admitted.
type LoginSession struct {
	SessionID   string
	AccountID   string
	AccessToken string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// LoginErrors carries host-level sentinel errors and constructors for the
// parameterized login failures.
type LoginErrors struct {
	EngineNotReady        error
	AccountNotFound       error
	AccountNotRecoverable error
	StoreUnavailable      error
	Locked                func(remaining time.Duration) error
	InvalidCredentials    func(attemptsRemaining int) error
}

// LoginDeps captures the login guard dependencies.
type LoginDeps struct {
	Threshold       int
	LockoutDuration time.Duration
	MaxStateRetries int
	RehashOnLogin   bool

	Now      func() time.Time
	Accounts AccountAccess

	VerifySecret     func(secret, hash string) (bool, error)
	NeedsRehash      func(hash string) (bool, error)
	HashSecret       func(secret string) (string, error)
	UpdateCredential func(ctx context.Context, accountID, hash string) error

	IssueSession func(ctx context.Context, accountID string, now time.Time) (*LoginSession, error)

	MetricInc func(metrics.MetricID)
	EmitAudit EmitAuditFunc
	Warn      func(string, ...any)

	Errors LoginErrors
}

// RunLogin decides a single login attempt.
//
// Failure state is only ever written through compare-and-set against the
// counter value this attempt observed. A lost race re-reads the account and
// re-decides with the same clock reading, so an attempt that reports
// InvalidCredentials has incremented the counter exactly once.
func RunLogin(ctx context.Context, identifier, secret string, deps LoginDeps) (*LoginSession, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(metrics.MetricID) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}
	if deps.Accounts.GetByLookup == nil ||
		deps.Accounts.GetByID == nil ||
		deps.Accounts.CompareAndSetFails == nil ||
		deps.Accounts.SetStatus == nil ||
		deps.VerifySecret == nil ||
		deps.IssueSession == nil ||
		deps.Errors.Locked == nil ||
		deps.Errors.InvalidCredentials == nil ||
		deps.Threshold <= 0 ||
		deps.LockoutDuration <= 0 {
		return nil, deps.Errors.EngineNotReady
	}
	maxRetries := deps.MaxStateRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	now := deps.Now()

	account, err := deps.Accounts.GetByLookup(ctx, identifier)
	if err != nil {
		return nil, loginLookupFailure(ctx, identifier, err, deps)
	}

	var (
		verifiedHash string
		matched      bool
		retries      int
	)
	for {
		reactivating := false
		switch {
		case account.Status == StatusActive:
		case account.inGrace(now):
			reactivating = true
		default:
			deps.MetricInc(metrics.MetricLoginNotRecoverable)
			deps.EmitAudit(ctx, audit.EventLoginFailure, false, account.ID, "", deps.Errors.AccountNotRecoverable, reasonMeta("not_recoverable"))
			return nil, deps.Errors.AccountNotRecoverable
		}

		if account.lockedAt(now) {
			remaining := account.LockedUntil.Sub(now)
			deps.MetricInc(metrics.MetricLoginLocked)
			deps.EmitAudit(ctx, audit.EventLoginLocked, false, account.ID, "", nil, reasonMeta("locked"))
			return nil, deps.Errors.Locked(remaining)
		}

		if account.CredentialHash != verifiedHash || verifiedHash == "" {
			ok, verr := deps.VerifySecret(secret, account.CredentialHash)
			if verr != nil {
				deps.Warn("login credential verification failed", "account_id", account.ID, "error", verr)
				ok = false
			}
			verifiedHash = account.CredentialHash
			matched = ok
		}

		stored := account.FailedAttempts
		effective := stored
		if account.LockedUntil != nil {
			// lapsed lockout: the window has passed, the counter starts over
			effective = 0
		}

		var (
			applied bool
			casErr  error
		)
		if matched {
			switch {
			case reactivating:
				// the reset must not erase failures recorded after this read
				applied, casErr = deps.Accounts.SetStatus(ctx, account.ID, StatusDeactivated, StatusChange{
					Status:                 StatusActive,
					ResetFailures:          true,
					ExpectedFailedAttempts: &stored,
				})
			case stored != 0 || account.LockedUntil != nil:
				applied, casErr = deps.Accounts.CompareAndSetFails(ctx, account.ID, stored, 0, nil)
			default:
				applied = true
			}
			if casErr != nil {
				return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, casErr)
			}
			if applied {
				if reactivating {
					deps.MetricInc(metrics.MetricAccountReactivated)
					deps.EmitAudit(ctx, audit.EventAccountReactivated, true, account.ID, "", nil, reasonMeta("login"))
				}
				return admitLogin(ctx, account, secret, now, deps)
			}
		} else {
			next := effective + 1
			var lockedUntil *time.Time
			if next >= deps.Threshold {
				until := now.Add(deps.LockoutDuration)
				lockedUntil = &until
			}
			applied, casErr = deps.Accounts.CompareAndSetFails(ctx, account.ID, stored, next, lockedUntil)
			if casErr != nil {
				return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, casErr)
			}
			if applied {
				if lockedUntil != nil {
					deps.MetricInc(metrics.MetricLockoutTriggered)
					deps.EmitAudit(ctx, audit.EventLoginLocked, false, account.ID, "", nil, func() map[string]string {
						return map[string]string{"reason": "threshold_reached"}
					})
					return nil, deps.Errors.Locked(deps.LockoutDuration)
				}
				remaining := deps.Threshold - next
				deps.MetricInc(metrics.MetricLoginFailure)
				deps.EmitAudit(ctx, audit.EventLoginFailure, false, account.ID, "", nil, reasonMeta("credential_mismatch"))
				return nil, deps.Errors.InvalidCredentials(remaining)
			}
		}

		retries++
		deps.MetricInc(metrics.MetricStateRetry)
		if retries > maxRetries {
			deps.Warn("login state retries exhausted", "account_id", account.ID, "retries", retries-1)
			return nil, fmt.Errorf("%w: failure state contention", deps.Errors.StoreUnavailable)
		}
		account, err = deps.Accounts.GetByID(ctx, account.ID)
		if err != nil {
			return nil, loginLookupFailure(ctx, identifier, err, deps)
		}
	}
}

func admitLogin(ctx context.Context, account *AccountRecord, secret string, now time.Time, deps LoginDeps) (*LoginSession, error) {
	if deps.Accounts.RecordLogin != nil {
		if err := deps.Accounts.RecordLogin(ctx, account.ID, now); err != nil {
			deps.Warn("record last login failed", "account_id", account.ID, "error", err)
		}
	}

	if deps.RehashOnLogin && deps.NeedsRehash != nil && deps.HashSecret != nil && deps.UpdateCredential != nil {
		if stale, err := deps.NeedsRehash(account.CredentialHash); err == nil && stale {
			if hash, err := deps.HashSecret(secret); err == nil {
				if err := deps.UpdateCredential(ctx, account.ID, hash); err != nil {
					deps.Warn("credential rehash update failed", "account_id", account.ID, "error", err)
				} else {
					deps.MetricInc(metrics.MetricPasswordRehashed)
				}
			} else {
				deps.Warn("credential rehash failed", "account_id", account.ID, "error", err)
			}
		}
	}

	sess, err := deps.IssueSession(ctx, account.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	deps.MetricInc(metrics.MetricLoginSuccess)
	deps.MetricInc(metrics.MetricSessionCreated)
	deps.EmitAudit(ctx, audit.EventLoginSuccess, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"session_id": sess.SessionID}
	})
	return sess, nil
}

func loginLookupFailure(ctx context.Context, identifier string, err error, deps LoginDeps) error {
	if errors.Is(err, deps.Errors.AccountNotFound) {
		deps.MetricInc(metrics.MetricLoginNotFound)
		deps.EmitAudit(ctx, audit.EventLoginFailure, false, "", "", deps.Errors.AccountNotFound, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "account_not_found",
			}
		})
		return deps.Errors.AccountNotFound
	}
	return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
}

func reasonMeta(reason string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": reason}
	}
}
