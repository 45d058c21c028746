package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goAccount/internal"
	"github.com/MrEthical07/goAccount/internal/audit"
	"github.com/MrEthical07/goAccount/internal/limiters"
	"github.com/MrEthical07/goAccount/internal/metrics"
	"github.com/MrEthical07/goAccount/internal/stores"
)

// maxPurposeLen bounds purpose strings, which become part of Redis keys.
const maxPurposeLen = 64

// TicketResult is a freshly minted or verified elevated-trust ticket.
type TicketResult struct {
	ID        string
	AccountID string
	Purpose   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// StepUpErrors carries host-level sentinel errors for the step-up gate.
type StepUpErrors struct {
	EngineNotReady        error
	AccountNotFound       error
	AccountNotRecoverable error
	InvalidCredentials    error
	InvalidPurpose        error
	InvalidCode           error
	CodeExpired           error
	StepUpRequired        error
	RateLimited           error
	CodeDelivery          error
	StoreUnavailable      error
}

// StepUpDeps captures dependencies of the two-step re-authentication gate.
type StepUpDeps struct {
	CodeDigits int
	CodeTTL    time.Duration
	TicketTTL  time.Duration

	Now      func() time.Time
	Accounts AccountAccess

	VerifySecret func(secret, hash string) (bool, error)

	NewCode     func(digits int) (string, error)
	IssueCode   func(ctx context.Context, accountID, purpose string, codeHash [32]byte, now time.Time, ttl time.Duration) error
	ConsumeCode func(ctx context.Context, accountID, purpose string, codeHash [32]byte, now time.Time) error
	DeleteCode  func(ctx context.Context, accountID, purpose string) error
	DeliverCode func(ctx context.Context, accountID, purpose, code string) error

	// Throttle is optional; a nil limiter admits every attempt.
	Throttle *limiters.StepUpLimiter

	NewTicketID  func() (string, error)
	SaveTicket   func(ctx context.Context, ticketID string, record *stores.Ticket) error
	LoadTicket   func(ctx context.Context, ticketID string, now time.Time) (*stores.Ticket, error)
	DeleteTicket func(ctx context.Context, ticketID string) (bool, error)

	MetricInc func(metrics.MetricID)
	EmitAudit EmitAuditFunc
	Warn      func(string, ...any)

	Errors StepUpErrors
}

func (d *StepUpDeps) fill() {
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
	if d.NewCode == nil {
		d.NewCode = internal.NewOTP
	}
	if d.NewTicketID == nil {
		d.NewTicketID = func() (string, error) {
			id, err := internal.NewTicketID()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		}
	}
}

// ValidPurpose reports whether purpose can scope a code or ticket.
func ValidPurpose(purpose string) bool {
	return purpose != "" && len(purpose) <= maxPurposeLen
}

func (d *StepUpDeps) activeAccount(ctx context.Context, accountID string) (*AccountRecord, error) {
	account, err := d.Accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, d.Errors.AccountNotFound) {
			return nil, d.Errors.AccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", d.Errors.StoreUnavailable, err)
	}
	if account.Status != StatusActive {
		return nil, d.Errors.AccountNotRecoverable
	}
	return account, nil
}

func (d *StepUpDeps) throttleErr(ctx context.Context, err error, accountID, purpose string) error {
	if errors.Is(err, limiters.ErrStepUpRateLimited) {
		d.MetricInc(metrics.MetricStepUpRateLimited)
		d.EmitAudit(ctx, audit.EventStepUpCodeFailure, false, accountID, purpose, d.Errors.RateLimited, reasonMeta("rate_limited"))
		return d.Errors.RateLimited
	}
	return fmt.Errorf("%w: %v", d.Errors.StoreUnavailable, err)
}

// RunRequestStepUp performs the password step. On success a new one-time
// code replaces any live code for (accountID, purpose) and is handed to the
// notifier. A wrong secret issues nothing.
func RunRequestStepUp(ctx context.Context, accountID, purpose, secret string, deps StepUpDeps) error {
	deps.fill()
	if deps.Accounts.GetByID == nil ||
		deps.VerifySecret == nil ||
		deps.IssueCode == nil ||
		deps.DeliverCode == nil ||
		deps.CodeTTL <= 0 {
		return deps.Errors.EngineNotReady
	}
	if !ValidPurpose(purpose) {
		return deps.Errors.InvalidPurpose
	}

	now := deps.Now()

	if err := deps.Throttle.CheckPassword(ctx, accountID); err != nil {
		return deps.throttleErr(ctx, err, accountID, purpose)
	}

	account, err := deps.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := deps.VerifySecret(secret, account.CredentialHash)
	if err != nil {
		deps.Warn("step-up credential verification failed", "account_id", account.ID, "error", err)
		ok = false
	}
	if !ok {
		if err := deps.Throttle.RecordPasswordFailure(ctx, account.ID); err != nil {
			deps.Warn("step-up password failure not recorded", "account_id", account.ID, "error", err)
		}
		deps.MetricInc(metrics.MetricStepUpPasswordFailure)
		deps.EmitAudit(ctx, audit.EventStepUpPasswordFailure, false, account.ID, purpose, deps.Errors.InvalidCredentials, nil)
		return deps.Errors.InvalidCredentials
	}
	if err := deps.Throttle.ResetPassword(ctx, account.ID); err != nil {
		deps.Warn("step-up password window reset failed", "account_id", account.ID, "error", err)
	}

	code, err := deps.NewCode(deps.CodeDigits)
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if err := deps.IssueCode(ctx, account.ID, purpose, internal.HashCode(account.ID, purpose, code), now, deps.CodeTTL); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if err := deps.Throttle.ResetCode(ctx, account.ID, purpose); err != nil {
		deps.Warn("step-up code window reset failed", "account_id", account.ID, "error", err)
	}

	if err := deps.DeliverCode(ctx, account.ID, purpose, code); err != nil {
		if deps.DeleteCode != nil {
			if derr := deps.DeleteCode(ctx, account.ID, purpose); derr != nil {
				deps.Warn("undelivered code not removed", "account_id", account.ID, "error", derr)
			}
		}
		return fmt.Errorf("%w: %v", deps.Errors.CodeDelivery, err)
	}

	deps.MetricInc(metrics.MetricStepUpRequested)
	deps.EmitAudit(ctx, audit.EventStepUpRequested, true, account.ID, purpose, nil, nil)
	return nil
}

// RunConfirmStepUp performs the code step and mints an elevated ticket for
// purpose. A wrong code leaves the live code untouched; it only counts
// toward the confirm throttle.
func RunConfirmStepUp(ctx context.Context, accountID, purpose, code string, deps StepUpDeps) (*TicketResult, error) {
	deps.fill()
	if deps.Accounts.GetByID == nil ||
		deps.ConsumeCode == nil ||
		deps.SaveTicket == nil ||
		deps.TicketTTL <= 0 {
		return nil, deps.Errors.EngineNotReady
	}
	if !ValidPurpose(purpose) {
		return nil, deps.Errors.InvalidPurpose
	}

	now := deps.Now()

	if err := deps.Throttle.CheckCode(ctx, accountID, purpose); err != nil {
		return nil, deps.throttleErr(ctx, err, accountID, purpose)
	}

	account, err := deps.activeAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	err = deps.ConsumeCode(ctx, account.ID, purpose, internal.HashCode(account.ID, purpose, code), now)
	if err != nil {
		var result error
		switch {
		case errors.Is(err, stores.ErrCodeExpired):
			deps.MetricInc(metrics.MetricStepUpCodeExpired)
			result = deps.Errors.CodeExpired
		case errors.Is(err, stores.ErrCodeNotFound),
			errors.Is(err, stores.ErrCodeConsumed),
			errors.Is(err, stores.ErrCodeMismatch):
			if rerr := deps.Throttle.RecordCodeFailure(ctx, account.ID, purpose); rerr != nil {
				deps.Warn("step-up code failure not recorded", "account_id", account.ID, "error", rerr)
			}
			deps.MetricInc(metrics.MetricStepUpConfirmFailure)
			result = deps.Errors.InvalidCode
		default:
			return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
		deps.EmitAudit(ctx, audit.EventStepUpCodeFailure, false, account.ID, purpose, result, nil)
		return nil, result
	}
	if err := deps.Throttle.ResetCode(ctx, account.ID, purpose); err != nil {
		deps.Warn("step-up code window reset failed", "account_id", account.ID, "error", err)
	}

	ticketID, err := deps.NewTicketID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	expiresAt := now.Add(deps.TicketTTL)
	record := &stores.Ticket{
		AccountID: account.ID,
		Purpose:   purpose,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: expiresAt.UnixMilli(),
	}
	if err := deps.SaveTicket(ctx, ticketID, record); err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	deps.MetricInc(metrics.MetricStepUpConfirmSuccess)
	deps.EmitAudit(ctx, audit.EventStepUpConfirmed, true, account.ID, purpose, nil, func() map[string]string {
		return map[string]string{"expires_at": expiresAt.UTC().Format(time.RFC3339)}
	})
	return &TicketResult{
		ID:        ticketID,
		AccountID: account.ID,
		Purpose:   purpose,
		IssuedAt:  time.UnixMilli(record.IssuedAt),
		ExpiresAt: time.UnixMilli(record.ExpiresAt),
	}, nil
}

// RunVerifyTicket admits a caller presenting ticketID for a protected
// operation. Any mismatch or expiry reports StepUpRequired.
func RunVerifyTicket(ctx context.Context, accountID, purpose, ticketID string, deps StepUpDeps) (*TicketResult, error) {
	deps.fill()
	if deps.LoadTicket == nil {
		return nil, deps.Errors.EngineNotReady
	}

	now := deps.Now()
	reject := func(reason string) (*TicketResult, error) {
		deps.MetricInc(metrics.MetricTicketRejected)
		deps.EmitAudit(ctx, audit.EventTicketRejected, false, accountID, purpose, deps.Errors.StepUpRequired, reasonMeta(reason))
		return nil, deps.Errors.StepUpRequired
	}

	if !ValidPurpose(purpose) || accountID == "" {
		return reject("invalid_scope")
	}
	if _, err := internal.ParseTicketID(ticketID); err != nil {
		return reject("malformed")
	}

	record, err := deps.LoadTicket(ctx, ticketID, now)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrTicketNotFound):
			return reject("unknown")
		case errors.Is(err, stores.ErrTicketExpired):
			return reject("expired")
		default:
			return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
	}
	if record.AccountID != accountID {
		return reject("account_mismatch")
	}
	if record.Purpose != purpose {
		return reject("purpose_mismatch")
	}

	return &TicketResult{
		ID:        ticketID,
		AccountID: record.AccountID,
		Purpose:   record.Purpose,
		IssuedAt:  time.UnixMilli(record.IssuedAt),
		ExpiresAt: time.UnixMilli(record.ExpiresAt),
	}, nil
}

// RunRevokeTicket deletes a ticket. Revoking an unknown ticket is not an
// error.
func RunRevokeTicket(ctx context.Context, ticketID string, deps StepUpDeps) error {
	deps.fill()
	if deps.DeleteTicket == nil {
		return deps.Errors.EngineNotReady
	}
	if _, err := internal.ParseTicketID(ticketID); err != nil {
		return nil
	}
	if _, err := deps.DeleteTicket(ctx, ticketID); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	return nil
}
