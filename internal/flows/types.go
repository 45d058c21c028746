package flows

import (
	"context"
	"time"
)

// Account status values. They mirror the root AccountStatus enum.
const (
	StatusActive uint8 = iota
	StatusDeactivated
	StatusPendingPermanentDeletion
)

// AccountRecord is the flow-local view of a stored account.
type AccountRecord struct {
	ID                  string
	CredentialHash      string
	Status              uint8
	FailedAttempts      int
	LockedUntil         *time.Time
	DeactivatedAt       *time.Time
	ScheduledDeletionAt *time.Time
}

// lockedAt reports whether a lockout is in force at now.
func (a *AccountRecord) lockedAt(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// inGrace reports whether a deactivated account can still be recovered.
func (a *AccountRecord) inGrace(now time.Time) bool {
	return a.Status == StatusDeactivated &&
		a.ScheduledDeletionAt != nil &&
		a.ScheduledDeletionAt.After(now)
}

// StatusChange is the flow-local form of a conditional status write.
type StatusChange struct {
	Status              uint8
	DeactivatedAt       *time.Time
	ScheduledDeletionAt *time.Time
	ResetFailures       bool
	// ExpectedFailedAttempts, when set, makes the write conditional on the
	// stored counter as well as the status.
	ExpectedFailedAttempts *int
}

// AccountAccess groups the account store calls shared by all flows.
type AccountAccess struct {
	GetByLookup        func(context.Context, string) (*AccountRecord, error)
	GetByID            func(context.Context, string) (*AccountRecord, error)
	CompareAndSetFails func(ctx context.Context, accountID string, expected, next int, lockedUntil *time.Time) (bool, error)
	SetStatus          func(ctx context.Context, accountID string, expected uint8, change StatusChange) (bool, error)
	RecordLogin        func(ctx context.Context, accountID string, at time.Time) error
}

// EmitAuditFunc records one audit event. meta is evaluated lazily.
type EmitAuditFunc func(ctx context.Context, event string, success bool, accountID, purpose string, err error, meta func() map[string]string)

func noopAudit(context.Context, string, bool, string, string, error, func() map[string]string) {}

func noopWarn(string, ...any) {}
