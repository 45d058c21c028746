package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goAccount/internal/audit"
	"github.com/MrEthical07/goAccount/internal/metrics"
)

// LifecycleErrors carries host-level sentinel errors for lifecycle flows.
type LifecycleErrors struct {
	EngineNotReady        error
	AccountNotFound       error
	AccountNotRecoverable error
	RecoveryWindowExpired error
	NotEligibleForErasure error
	InvalidRetention      error
	StoreUnavailable      error
}

// LifecycleDeps captures dependencies of the account state machine flows.
type LifecycleDeps struct {
	DefaultRetention time.Duration
	MaxStateRetries  int

	Now      func() time.Time
	Accounts AccountAccess

	// RevokeAccess drops every session and elevated ticket of an account.
	RevokeAccess func(ctx context.Context, accountID string) error

	MetricInc func(metrics.MetricID)
	EmitAudit EmitAuditFunc
	Warn      func(string, ...any)

	Errors LifecycleErrors
}

func (d *LifecycleDeps) fill() bool {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MetricInc == nil {
		d.MetricInc = func(metrics.MetricID) {}
	}
	if d.EmitAudit == nil {
		d.EmitAudit = noopAudit
	}
	if d.Warn == nil {
		d.Warn = noopWarn
	}
	if d.MaxStateRetries < 1 {
		d.MaxStateRetries = 1
	}
	return d.Accounts.GetByID != nil && d.Accounts.SetStatus != nil
}

func (d *LifecycleDeps) load(ctx context.Context, accountID string) (*AccountRecord, error) {
	account, err := d.Accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, d.Errors.AccountNotFound) {
			return nil, d.Errors.AccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", d.Errors.StoreUnavailable, err)
	}
	return account, nil
}

// retry records a lost status race and reports whether another attempt is
// allowed.
func (d *LifecycleDeps) retry(accountID string, retries *int) error {
	*retries++
	d.MetricInc(metrics.MetricStateRetry)
	if *retries > d.MaxStateRetries {
		d.Warn("account status retries exhausted", "account_id", accountID, "retries", *retries-1)
		return fmt.Errorf("%w: status contention", d.Errors.StoreUnavailable)
	}
	return nil
}

// RunDeactivate moves an active account into its grace window and returns
// the scheduled deletion time. Deactivating an already deactivated account
// returns the existing schedule unchanged.
func RunDeactivate(ctx context.Context, accountID string, retention time.Duration, deps LifecycleDeps) (time.Time, error) {
	if !deps.fill() {
		return time.Time{}, deps.Errors.EngineNotReady
	}
	if retention < 0 {
		return time.Time{}, deps.Errors.InvalidRetention
	}
	if retention == 0 {
		retention = deps.DefaultRetention
	}
	if retention <= 0 {
		return time.Time{}, deps.Errors.InvalidRetention
	}

	now := deps.Now()
	account, err := deps.load(ctx, accountID)
	if err != nil {
		return time.Time{}, err
	}

	var retries int
	for {
		var (
			expected uint8
			applied  bool
		)
		scheduled := now.Add(retention)

		switch account.Status {
		case StatusDeactivated:
			if account.ScheduledDeletionAt != nil {
				return *account.ScheduledDeletionAt, nil
			}
			// deactivated without a schedule: write one
			expected = StatusDeactivated
		case StatusActive:
			expected = StatusActive
		default:
			return time.Time{}, deps.Errors.AccountNotRecoverable
		}

		deactivatedAt := now
		if account.DeactivatedAt != nil && expected == StatusDeactivated {
			deactivatedAt = *account.DeactivatedAt
		}
		applied, err = deps.Accounts.SetStatus(ctx, account.ID, expected, StatusChange{
			Status:              StatusDeactivated,
			DeactivatedAt:       &deactivatedAt,
			ScheduledDeletionAt: &scheduled,
		})
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
		if applied {
			if deps.RevokeAccess != nil {
				if err := deps.RevokeAccess(ctx, account.ID); err != nil {
					deps.Warn("revoke access on deactivation failed", "account_id", account.ID, "error", err)
				}
			}
			deps.MetricInc(metrics.MetricAccountDeactivated)
			deps.EmitAudit(ctx, audit.EventAccountDeactivated, true, account.ID, "", nil, func() map[string]string {
				return map[string]string{
					"scheduled_deletion_at": scheduled.UTC().Format(time.RFC3339),
				}
			})
			return scheduled, nil
		}

		if err := deps.retry(account.ID, &retries); err != nil {
			return time.Time{}, err
		}
		if account, err = deps.load(ctx, accountID); err != nil {
			return time.Time{}, err
		}
	}
}

// RunReactivate returns a deactivated account to Active while its grace
// window is open. An account that is already active is left as is.
func RunReactivate(ctx context.Context, accountID string, deps LifecycleDeps) error {
	if !deps.fill() {
		return deps.Errors.EngineNotReady
	}

	now := deps.Now()
	account, err := deps.load(ctx, accountID)
	if err != nil {
		return err
	}

	var retries int
	for {
		switch account.Status {
		case StatusActive:
			return nil
		case StatusDeactivated:
			if !account.inGrace(now) {
				return deps.Errors.RecoveryWindowExpired
			}
		default:
			return deps.Errors.AccountNotRecoverable
		}

		applied, err := deps.Accounts.SetStatus(ctx, account.ID, StatusDeactivated, StatusChange{
			Status:        StatusActive,
			ResetFailures: true,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
		if applied {
			deps.MetricInc(metrics.MetricAccountReactivated)
			deps.EmitAudit(ctx, audit.EventAccountReactivated, true, account.ID, "", nil, reasonMeta("explicit"))
			return nil
		}

		if err := deps.retry(account.ID, &retries); err != nil {
			return err
		}
		if account, err = deps.load(ctx, accountID); err != nil {
			return err
		}
	}
}

// RunEligibility reports whether the grace window of a deactivated account
// has passed.
func RunEligibility(ctx context.Context, accountID string, deps LifecycleDeps) (bool, error) {
	if !deps.fill() {
		return false, deps.Errors.EngineNotReady
	}

	now := deps.Now()
	account, err := deps.load(ctx, accountID)
	if err != nil {
		return false, err
	}
	return eligibleAt(account, now), nil
}

// RunMarkPendingErasure claims an eligible account for the retention job by
// moving it to PendingPermanentDeletion. Marking an account that is already
// pending is a no-op.
func RunMarkPendingErasure(ctx context.Context, accountID string, deps LifecycleDeps) error {
	if !deps.fill() {
		return deps.Errors.EngineNotReady
	}

	now := deps.Now()
	account, err := deps.load(ctx, accountID)
	if err != nil {
		return err
	}

	var retries int
	for {
		if account.Status == StatusPendingPermanentDeletion {
			return nil
		}
		if !eligibleAt(account, now) {
			return deps.Errors.NotEligibleForErasure
		}

		applied, err := deps.Accounts.SetStatus(ctx, account.ID, StatusDeactivated, StatusChange{
			Status:        StatusPendingPermanentDeletion,
			DeactivatedAt: account.DeactivatedAt,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
		if applied {
			deps.MetricInc(metrics.MetricErasureMarked)
			deps.EmitAudit(ctx, audit.EventAccountPendingErasure, true, account.ID, "", nil, nil)
			return nil
		}

		if err := deps.retry(account.ID, &retries); err != nil {
			return err
		}
		if account, err = deps.load(ctx, accountID); err != nil {
			return err
		}
	}
}

func eligibleAt(account *AccountRecord, now time.Time) bool {
	return account.Status == StatusDeactivated &&
		account.ScheduledDeletionAt != nil &&
		!account.ScheduledDeletionAt.After(now)
}
