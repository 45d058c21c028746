// Package memory is an in-process AccountStore for tests, demos and
// single-instance deployments. Conditional writes are serialized by one
// mutex, which gives the same compare-and-set semantics as the SQL stores.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/google/uuid"
)

// ErrIdentifierTaken is returned when a lookup identifier already belongs
// to another account.
var ErrIdentifierTaken = errors.New("identifier already in use")

// Store keeps accounts in memory.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*goAccount.Account
	lookup   map[string]string
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*goAccount.Account),
		lookup:   make(map[string]string),
	}
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// CreateAccount stores a new active account reachable through every
// identifier (username, email, phone) and returns it.
func (s *Store) CreateAccount(_ context.Context, credentialHash string, identifiers ...string) (*goAccount.Account, error) {
	if len(identifiers) == 0 {
		return nil, errors.New("at least one identifier required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		key := normalizeIdentifier(id)
		if key == "" {
			return nil, errors.New("empty identifier")
		}
		if _, ok := s.lookup[key]; ok {
			return nil, ErrIdentifierTaken
		}
		keys = append(keys, key)
	}

	account := &goAccount.Account{
		ID:             uuid.NewString(),
		CredentialHash: credentialHash,
		Status:         goAccount.AccountActive,
	}
	s.accounts[account.ID] = account
	for _, key := range keys {
		s.lookup[key] = account.ID
	}
	return cloneAccount(account), nil
}

// Put stores account as-is, replacing any record with the same id. Tests
// use it to seed arbitrary states.
func (s *Store) Put(account goAccount.Account, identifiers ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = cloneAccount(&account)
	for _, id := range identifiers {
		s.lookup[normalizeIdentifier(id)] = account.ID
	}
}

// Delete erases an account and its identifiers.
func (s *Store) Delete(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return goAccount.ErrAccountNotFound
	}
	delete(s.accounts, accountID)
	for key, id := range s.lookup {
		if id == accountID {
			delete(s.lookup, key)
		}
	}
	return nil
}

func (s *Store) GetAccountByLookup(_ context.Context, identifier string) (*goAccount.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.lookup[normalizeIdentifier(identifier)]
	if !ok {
		return nil, goAccount.ErrAccountNotFound
	}
	account, ok := s.accounts[id]
	if !ok {
		return nil, goAccount.ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

func (s *Store) GetAccountByID(_ context.Context, accountID string) (*goAccount.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return nil, goAccount.ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

func (s *Store) CompareAndUpdateFailureState(_ context.Context, accountID string, expectedFailedAttempts, newFailedAttempts int, newLockedUntil *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return false, goAccount.ErrAccountNotFound
	}
	if account.FailedAttempts != expectedFailedAttempts {
		return false, nil
	}
	account.FailedAttempts = newFailedAttempts
	account.LockedUntil = cloneTime(newLockedUntil)
	return true, nil
}

func (s *Store) SetStatus(_ context.Context, accountID string, expected goAccount.AccountStatus, change goAccount.StatusChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return false, goAccount.ErrAccountNotFound
	}
	if account.Status != expected {
		return false, nil
	}
	if change.ExpectedFailedAttempts != nil && account.FailedAttempts != *change.ExpectedFailedAttempts {
		return false, nil
	}
	account.Status = change.Status
	account.DeactivatedAt = cloneTime(change.DeactivatedAt)
	account.ScheduledDeletionAt = cloneTime(change.ScheduledDeletionAt)
	if change.ResetFailures {
		account.FailedAttempts = 0
		account.LockedUntil = nil
	}
	return true, nil
}

func (s *Store) RecordLogin(_ context.Context, accountID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return goAccount.ErrAccountNotFound
	}
	account.LastLoginAt = &at
	return nil
}

func (s *Store) UpdateCredentialHash(_ context.Context, accountID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return goAccount.ErrAccountNotFound
	}
	account.CredentialHash = hash
	return nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

func cloneAccount(a *goAccount.Account) *goAccount.Account {
	out := *a
	out.LockedUntil = cloneTime(a.LockedUntil)
	out.DeactivatedAt = cloneTime(a.DeactivatedAt)
	out.ScheduledDeletionAt = cloneTime(a.ScheduledDeletionAt)
	out.LastLoginAt = cloneTime(a.LastLoginAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var (
	_ goAccount.AccountStore      = (*Store)(nil)
	_ goAccount.CredentialUpdater = (*Store)(nil)
)
