package goAccount

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goAccount/internal/audit"
	internalmetrics "github.com/MrEthical07/goAccount/internal/metrics"
	"go.uber.org/zap"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus uint8

const (
	AccountActive AccountStatus = iota
	AccountDeactivated
	AccountPendingPermanentDeletion
)

// String returns the storage name of the status.
func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountDeactivated:
		return "deactivated"
	case AccountPendingPermanentDeletion:
		return "pending_permanent_deletion"
	default:
		return "unknown"
	}
}

// ParseAccountStatus maps a storage name back to its status.
func ParseAccountStatus(s string) (AccountStatus, bool) {
	switch s {
	case "active":
		return AccountActive, true
	case "deactivated":
		return AccountDeactivated, true
	case "pending_permanent_deletion":
		return AccountPendingPermanentDeletion, true
	default:
		return 0, false
	}
}

// Account is the stored account record the engine decides on.
//
// ScheduledDeletionAt is set exactly when Status is AccountDeactivated. A
// LockedUntil in the past is treated as absent.
type Account struct {
	ID                  string
	CredentialHash      string
	Status              AccountStatus
	FailedAttempts      int
	LockedUntil         *time.Time
	DeactivatedAt       *time.Time
	ScheduledDeletionAt *time.Time
	LastLoginAt         *time.Time
}

// StatusChange is applied by AccountStore.SetStatus. ResetFailures clears
// failed_attempts and locked_until in the same write. When
// ExpectedFailedAttempts is set, the write also requires the stored counter
// to equal it.
type StatusChange struct {
	Status                 AccountStatus
	DeactivatedAt          *time.Time
	ScheduledDeletionAt    *time.Time
	ResetFailures          bool
	ExpectedFailedAttempts *int
}

// AccountStore is the durable account record. Every mutation is
// conditional so concurrent requests for one account serialize in the
// store.
type AccountStore interface {
	// GetAccountByLookup resolves a username, email or phone to at most one
	// account, or returns ErrAccountNotFound.
	GetAccountByLookup(ctx context.Context, identifier string) (*Account, error)
	GetAccountByID(ctx context.Context, accountID string) (*Account, error)
	// CompareAndUpdateFailureState writes the counter and lock only when the
	// stored counter still equals expectedFailedAttempts.
	CompareAndUpdateFailureState(ctx context.Context, accountID string, expectedFailedAttempts, newFailedAttempts int, newLockedUntil *time.Time) (bool, error)
	// SetStatus applies change only when the stored status equals expected.
	SetStatus(ctx context.Context, accountID string, expected AccountStatus, change StatusChange) (bool, error)
	RecordLogin(ctx context.Context, accountID string, at time.Time) error
}

// CredentialUpdater is implemented by stores that accept rehashed
// credentials after a successful login.
type CredentialUpdater interface {
	UpdateCredentialHash(ctx context.Context, accountID, hash string) error
}

// CodeNotifier delivers a one-time code to the account holder. Delivery
// channels are the host's concern.
type CodeNotifier interface {
	DeliverCode(ctx context.Context, accountID, purpose, code string) error
}

// CodeNotifierFunc adapts a function to CodeNotifier.
type CodeNotifierFunc func(ctx context.Context, accountID, purpose, code string) error

func (f CodeNotifierFunc) DeliverCode(ctx context.Context, accountID, purpose, code string) error {
	return f(ctx, accountID, purpose, code)
}

// Purpose scopes a step-up code and the ticket it yields.
type Purpose string

const (
	PurposeSecuritySettings Purpose = "security-settings"
	PurposeAccountDeletion  Purpose = "account-deletion"
)

// Session is an issued login session.
type Session struct {
	SessionID   string
	AccountID   string
	AccessToken string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// ElevatedTicket proves a recent step-up for one account and purpose.
type ElevatedTicket struct {
	ID        string
	AccountID string
	Purpose   Purpose
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuditEvent is the audit record emitted for every decision.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards audit events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink logs audit events through zap.
type ZapSink = internalaudit.ZapSink

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink creates a ZapSink that logs under the "audit" name.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}

// MetricID identifies a counter or histogram.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess          = internalmetrics.MetricLoginSuccess
	MetricLoginFailure          = internalmetrics.MetricLoginFailure
	MetricLoginLocked           = internalmetrics.MetricLoginLocked
	MetricLockoutTriggered      = internalmetrics.MetricLockoutTriggered
	MetricLoginNotFound         = internalmetrics.MetricLoginNotFound
	MetricLoginNotRecoverable   = internalmetrics.MetricLoginNotRecoverable
	MetricStateRetry            = internalmetrics.MetricStateRetry
	MetricAccountReactivated    = internalmetrics.MetricAccountReactivated
	MetricAccountDeactivated    = internalmetrics.MetricAccountDeactivated
	MetricErasureMarked         = internalmetrics.MetricErasureMarked
	MetricStepUpRequested       = internalmetrics.MetricStepUpRequested
	MetricStepUpPasswordFailure = internalmetrics.MetricStepUpPasswordFailure
	MetricStepUpRateLimited     = internalmetrics.MetricStepUpRateLimited
	MetricStepUpConfirmSuccess  = internalmetrics.MetricStepUpConfirmSuccess
	MetricStepUpConfirmFailure  = internalmetrics.MetricStepUpConfirmFailure
	MetricStepUpCodeExpired     = internalmetrics.MetricStepUpCodeExpired
	MetricTicketRejected        = internalmetrics.MetricTicketRejected
	MetricSessionCreated        = internalmetrics.MetricSessionCreated
	MetricSessionRevoked        = internalmetrics.MetricSessionRevoked
	MetricPasswordRehashed      = internalmetrics.MetricPasswordRehashed
	MetricLoginLatency          = internalmetrics.MetricLoginLatency

	// MetricIDCount is the number of metric slots.
	MetricIDCount = internalmetrics.MetricIDCount
)
