package goAccount

import (
	"context"
	"time"

	"github.com/MrEthical07/goAccount/internal/audit"
	"github.com/MrEthical07/goAccount/internal/flows"
	"github.com/MrEthical07/goAccount/internal/limiters"
	"github.com/MrEthical07/goAccount/internal/metrics"
	"github.com/MrEthical07/goAccount/internal/stores"
	"github.com/MrEthical07/goAccount/jwt"
	"github.com/MrEthical07/goAccount/password"
	"github.com/MrEthical07/goAccount/session"
	"go.uber.org/zap"
)

// Engine runs the login guard, the account lifecycle state machine and the
// step-up gate. It is safe for concurrent use once built.
type Engine struct {
	config        Config
	accounts      AccountStore
	notifier      CodeNotifier
	logger        *zap.Logger
	now           func() time.Time
	passwordHash  *password.Argon2
	jwtManager    *jwt.Manager
	sessionStore  *session.Store
	codeStore     *stores.OneTimeCodeStore
	ticketStore   *stores.TicketStore
	stepUpLimiter *limiters.StepUpLimiter
	metrics       *metrics.Metrics
	audit         *audit.Dispatcher

	flowDeps flows.Deps
}

// Close flushes pending audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, keysAndValues ...any) {
	e.logger.Sugar().Warnw(msg, keysAndValues...)
}

// initFlowDeps binds the flow dependency sets to this engine's stores.
func (e *Engine) initFlowDeps() {
	accounts := flows.AccountAccess{
		GetByLookup: func(ctx context.Context, identifier string) (*flows.AccountRecord, error) {
			a, err := e.accounts.GetAccountByLookup(ctx, identifier)
			if err != nil {
				return nil, err
			}
			return toFlowAccount(a), nil
		},
		GetByID: func(ctx context.Context, accountID string) (*flows.AccountRecord, error) {
			a, err := e.accounts.GetAccountByID(ctx, accountID)
			if err != nil {
				return nil, err
			}
			return toFlowAccount(a), nil
		},
		CompareAndSetFails: e.accounts.CompareAndUpdateFailureState,
		SetStatus: func(ctx context.Context, accountID string, expected uint8, change flows.StatusChange) (bool, error) {
			return e.accounts.SetStatus(ctx, accountID, AccountStatus(expected), StatusChange{
				Status:              AccountStatus(change.Status),
				DeactivatedAt:       change.DeactivatedAt,
				ScheduledDeletionAt: change.ScheduledDeletionAt,
				ResetFailures:       change.ResetFailures,

				ExpectedFailedAttempts: change.ExpectedFailedAttempts,
			})
		},
		RecordLogin: e.accounts.RecordLogin,
	}

	var updateCredential func(context.Context, string, string) error
	if updater, ok := e.accounts.(CredentialUpdater); ok {
		updateCredential = updater.UpdateCredentialHash
	}

	e.flowDeps = flows.Deps{
		Login: flows.LoginDeps{
			Threshold:        e.config.Lockout.Threshold,
			LockoutDuration:  e.config.Lockout.Duration,
			MaxStateRetries:  e.config.Lockout.MaxStateRetries,
			RehashOnLogin:    e.config.Password.UpgradeOnLogin,
			Now:              e.now,
			Accounts:         accounts,
			VerifySecret:     e.passwordHash.Verify,
			NeedsRehash:      e.passwordHash.NeedsUpgrade,
			HashSecret:       e.passwordHash.Hash,
			UpdateCredential: updateCredential,
			IssueSession:     e.issueSession,
			MetricInc:        e.metricInc,
			EmitAudit:        e.emitAudit,
			Warn:             e.warn,
			Errors: flows.LoginErrors{
				EngineNotReady:        ErrEngineNotReady,
				AccountNotFound:       ErrAccountNotFound,
				AccountNotRecoverable: ErrAccountNotRecoverable,
				StoreUnavailable:      ErrStoreUnavailable,
				Locked: func(remaining time.Duration) error {
					return &LockedError{Remaining: remaining}
				},
				InvalidCredentials: func(attemptsRemaining int) error {
					return &InvalidCredentialsError{AttemptsRemaining: attemptsRemaining}
				},
			},
		},
		Lifecycle: flows.LifecycleDeps{
			DefaultRetention: e.config.Lifecycle.DefaultRetention,
			MaxStateRetries:  e.config.Lockout.MaxStateRetries,
			Now:              e.now,
			Accounts:         accounts,
			RevokeAccess:     e.revokeAccess,
			MetricInc:        e.metricInc,
			EmitAudit:        e.emitAudit,
			Warn:             e.warn,
			Errors: flows.LifecycleErrors{
				EngineNotReady:        ErrEngineNotReady,
				AccountNotFound:       ErrAccountNotFound,
				AccountNotRecoverable: ErrAccountNotRecoverable,
				RecoveryWindowExpired: ErrRecoveryWindowExpired,
				NotEligibleForErasure: ErrNotEligibleForErasure,
				InvalidRetention:      ErrInvalidRetention,
				StoreUnavailable:      ErrStoreUnavailable,
			},
		},
		StepUp: flows.StepUpDeps{
			CodeDigits:   e.config.OneTimeCode.Digits,
			CodeTTL:      e.config.OneTimeCode.TTL,
			TicketTTL:    e.config.StepUp.TicketTTL,
			Now:          e.now,
			Accounts:     accounts,
			VerifySecret: e.passwordHash.Verify,
			IssueCode: func(ctx context.Context, accountID, purpose string, codeHash [32]byte, now time.Time, ttl time.Duration) error {
				_, err := e.codeStore.Issue(ctx, accountID, purpose, codeHash, now, ttl)
				return err
			},
			ConsumeCode: func(ctx context.Context, accountID, purpose string, codeHash [32]byte, now time.Time) error {
				_, err := e.codeStore.Consume(ctx, accountID, purpose, codeHash, now)
				return err
			},
			DeleteCode:   e.codeStore.Delete,
			DeliverCode:  e.notifier.DeliverCode,
			Throttle:     e.stepUpLimiter,
			SaveTicket:   e.ticketStore.Save,
			LoadTicket:   e.ticketStore.Get,
			DeleteTicket: e.ticketStore.Delete,
			MetricInc:    e.metricInc,
			EmitAudit:    e.emitAudit,
			Warn:         e.warn,
			Errors: flows.StepUpErrors{
				EngineNotReady:        ErrEngineNotReady,
				AccountNotFound:       ErrAccountNotFound,
				AccountNotRecoverable: ErrAccountNotRecoverable,
				InvalidCredentials:    ErrInvalidCredentials,
				InvalidPurpose:        ErrInvalidPurpose,
				InvalidCode:           ErrInvalidCode,
				CodeExpired:           ErrCodeExpired,
				StepUpRequired:        ErrStepUpRequired,
				RateLimited:           ErrStepUpRateLimited,
				CodeDelivery:          ErrCodeDeliveryFailed,
				StoreUnavailable:      ErrStoreUnavailable,
			},
		},
	}
}

func toFlowAccount(a *Account) *flows.AccountRecord {
	return &flows.AccountRecord{
		ID:                  a.ID,
		CredentialHash:      a.CredentialHash,
		Status:              uint8(a.Status),
		FailedAttempts:      a.FailedAttempts,
		LockedUntil:         a.LockedUntil,
		DeactivatedAt:       a.DeactivatedAt,
		ScheduledDeletionAt: a.ScheduledDeletionAt,
	}
}

// HashCredential hashes a secret with the engine's argon2id parameters, for
// hosts that create accounts.
func (e *Engine) HashCredential(secret string) (string, error) {
	if e == nil || e.passwordHash == nil {
		return "", ErrEngineNotReady
	}
	return e.passwordHash.Hash(secret)
}
