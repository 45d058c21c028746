package flows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	errNotReady        = errors.New("not ready")
	errNotFound        = errors.New("account not found")
	errNotRecoverable  = errors.New("not recoverable")
	errWindowExpired   = errors.New("recovery window expired")
	errNotEligible     = errors.New("not eligible")
	errInvalidRetain   = errors.New("invalid retention")
	errUnavailable     = errors.New("store unavailable")
	errLocked          = errors.New("locked")
	errInvalidCreds    = errors.New("invalid credentials")
	errInvalidPurpose  = errors.New("invalid purpose")
	errInvalidCode     = errors.New("invalid code")
	errCodeExpired     = errors.New("code expired")
	errStepUpRequired  = errors.New("step-up required")
	errRateLimited     = errors.New("rate limited")
	errDeliveryFailure = errors.New("delivery failed")
)

type lockedErr struct{ remaining time.Duration }

func (e *lockedErr) Error() string        { return fmt.Sprintf("locked for %s", e.remaining) }
func (e *lockedErr) Is(target error) bool { return target == errLocked }

type invalidCredsErr struct{ remaining int }

func (e *invalidCredsErr) Error() string {
	return fmt.Sprintf("invalid credentials, %d left", e.remaining)
}
func (e *invalidCredsErr) Is(target error) bool { return target == errInvalidCreds }

// fakeAccounts is an in-memory account table with compare-and-set writes.
type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]AccountRecord
	logins   map[string]time.Time

	// beforeCAS runs once before the next failure-state write is applied.
	beforeCAS func(*AccountRecord)
	casCalls  int
	forceLose bool
}

func newFakeAccounts(records ...AccountRecord) *fakeAccounts {
	f := &fakeAccounts{accounts: map[string]AccountRecord{}, logins: map[string]time.Time{}}
	for _, r := range records {
		f.accounts[r.ID] = r
	}
	return f
}

func (f *fakeAccounts) get(id string) AccountRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[id]
}

func (f *fakeAccounts) access() AccountAccess {
	return AccountAccess{
		GetByLookup: func(_ context.Context, identifier string) (*AccountRecord, error) {
			return f.byID(identifier)
		},
		GetByID: func(_ context.Context, id string) (*AccountRecord, error) {
			return f.byID(id)
		},
		CompareAndSetFails: func(_ context.Context, id string, expected, next int, lockedUntil *time.Time) (bool, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.casCalls++
			rec, ok := f.accounts[id]
			if !ok {
				return false, errNotFound
			}
			if f.beforeCAS != nil {
				hook := f.beforeCAS
				f.beforeCAS = nil
				hook(&rec)
				f.accounts[id] = rec
			}
			if f.forceLose || rec.FailedAttempts != expected {
				return false, nil
			}
			rec.FailedAttempts = next
			rec.LockedUntil = copyTime(lockedUntil)
			f.accounts[id] = rec
			return true, nil
		},
		SetStatus: func(_ context.Context, id string, expected uint8, change StatusChange) (bool, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			rec, ok := f.accounts[id]
			if !ok {
				return false, errNotFound
			}
			if rec.Status != expected {
				return false, nil
			}
			if change.ExpectedFailedAttempts != nil && rec.FailedAttempts != *change.ExpectedFailedAttempts {
				return false, nil
			}
			rec.Status = change.Status
			rec.DeactivatedAt = copyTime(change.DeactivatedAt)
			rec.ScheduledDeletionAt = copyTime(change.ScheduledDeletionAt)
			if change.ResetFailures {
				rec.FailedAttempts = 0
				rec.LockedUntil = nil
			}
			f.accounts[id] = rec
			return true, nil
		},
		RecordLogin: func(_ context.Context, id string, at time.Time) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.logins[id] = at
			return nil
		},
	}
}

func (f *fakeAccounts) byID(id string) (*AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.accounts[id]
	if !ok {
		return nil, errNotFound
	}
	rec.LockedUntil = copyTime(rec.LockedUntil)
	rec.DeactivatedAt = copyTime(rec.DeactivatedAt)
	rec.ScheduledDeletionAt = copyTime(rec.ScheduledDeletionAt)
	return &rec, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func verifyPlain(secret, hash string) (bool, error) {
	return hash == "plain:"+secret, nil
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
