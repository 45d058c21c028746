package goAccount

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goAccount/internal/flows"
)

// Deactivate moves an active account into its recovery window and returns
// the scheduled deletion time. A zero retention uses
// Config.Lifecycle.DefaultRetention. Deactivating an already deactivated
// account returns the existing schedule unchanged. Every session and
// elevated ticket of the account is revoked. Like Login, status contention
// beyond the retry budget surfaces as ErrStoreUnavailable.
func (e *Engine) Deactivate(ctx context.Context, accountID string, retention time.Duration) (time.Time, error) {
	if e == nil {
		return time.Time{}, ErrEngineNotReady
	}
	return flows.RunDeactivate(ctx, accountID, retention, e.flowDeps.Lifecycle)
}

// Reactivate restores a deactivated account while its recovery window is
// still open. Reactivating an active account is a no-op.
func (e *Engine) Reactivate(ctx context.Context, accountID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunReactivate(ctx, accountID, e.flowDeps.Lifecycle)
}

// IsEligibleForErasure reports whether a deactivated account's recovery
// window has closed. The engine never erases accounts itself.
func (e *Engine) IsEligibleForErasure(ctx context.Context, accountID string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	return flows.RunEligibility(ctx, accountID, e.flowDeps.Lifecycle)
}

// MarkPendingErasure claims an eligible account for the external retention
// job. Once marked, the account can no longer log in or be reactivated.
func (e *Engine) MarkPendingErasure(ctx context.Context, accountID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunMarkPendingErasure(ctx, accountID, e.flowDeps.Lifecycle)
}

func (e *Engine) revokeAccess(ctx context.Context, accountID string) error {
	n, sessErr := e.sessionStore.DeleteAllForAccount(ctx, accountID)
	if sessErr == nil && n > 0 {
		for i := 0; i < n; i++ {
			e.metricInc(MetricSessionRevoked)
		}
	}
	_, ticketErr := e.ticketStore.RevokeAccount(ctx, accountID)
	return errors.Join(sessErr, ticketErr)
}
