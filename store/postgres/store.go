// Package postgres is an AccountStore on PostgreSQL through pgxpool.
// Conditional writes are single UPDATE statements guarded on the expected
// value, so concurrent engines share one serialization point.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdentifierTaken is returned when a lookup identifier already belongs
// to another account.
var ErrIdentifierTaken = errors.New("identifier already in use")

const uniqueViolation = "23505"

type Store struct {
	db *pgxpool.Pool
}

// Connect opens a pool for dsn and runs migrations.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &Store{db: pool}, nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) Close() {
	s.db.Close()
}

const selectAccount = `
	SELECT id::text, credential_hash, status, failed_attempts, locked_until,
	       deactivated_at, scheduled_deletion_at, last_login_at
	FROM accounts`

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (s *Store) CreateAccount(ctx context.Context, credentialHash string, identifiers ...string) (*goAccount.Account, error) {
	if len(identifiers) == 0 {
		return nil, errors.New("at least one identifier required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := uuid.NewString()
	if _, err := tx.Exec(ctx,
		`INSERT INTO accounts (id, credential_hash, status) VALUES ($1, $2, 'active')`,
		id, credentialHash,
	); err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	for _, raw := range identifiers {
		key := normalizeIdentifier(raw)
		if key == "" {
			return nil, errors.New("empty identifier")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO account_identifiers (identifier, account_id) VALUES ($1, $2)`, key, id,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil, ErrIdentifierTaken
			}
			return nil, fmt.Errorf("insert identifier: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &goAccount.Account{ID: id, CredentialHash: credentialHash, Status: goAccount.AccountActive}, nil
}

func (s *Store) GetAccountByLookup(ctx context.Context, identifier string) (*goAccount.Account, error) {
	row := s.db.QueryRow(ctx, selectAccount+`
		WHERE id = (SELECT account_id FROM account_identifiers WHERE identifier = $1)`,
		normalizeIdentifier(identifier))
	return scanAccount(row)
}

func (s *Store) GetAccountByID(ctx context.Context, accountID string) (*goAccount.Account, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, goAccount.ErrAccountNotFound
	}
	row := s.db.QueryRow(ctx, selectAccount+` WHERE id = $1`, accountID)
	return scanAccount(row)
}

func (s *Store) CompareAndUpdateFailureState(ctx context.Context, accountID string, expectedFailedAttempts, newFailedAttempts int, newLockedUntil *time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE accounts SET failed_attempts = $1, locked_until = $2
		 WHERE id = $3 AND failed_attempts = $4`,
		newFailedAttempts, newLockedUntil, accountID, expectedFailedAttempts,
	)
	if err != nil {
		return false, err
	}
	return s.applied(ctx, accountID, tag)
}

func (s *Store) SetStatus(ctx context.Context, accountID string, expected goAccount.AccountStatus, change goAccount.StatusChange) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE accounts SET
			status = $1,
			deactivated_at = $2,
			scheduled_deletion_at = $3,
			failed_attempts = CASE WHEN $4 THEN 0 ELSE failed_attempts END,
			locked_until = CASE WHEN $4 THEN NULL ELSE locked_until END
		 WHERE id = $5 AND status = $6
		   AND ($7::int IS NULL OR failed_attempts = $7)`,
		change.Status.String(),
		change.DeactivatedAt,
		change.ScheduledDeletionAt,
		change.ResetFailures,
		accountID,
		expected.String(),
		change.ExpectedFailedAttempts,
	)
	if err != nil {
		return false, err
	}
	return s.applied(ctx, accountID, tag)
}

func (s *Store) RecordLogin(ctx context.Context, accountID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE accounts SET last_login_at = $1 WHERE id = $2`, at, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return goAccount.ErrAccountNotFound
	}
	return nil
}

func (s *Store) UpdateCredentialHash(ctx context.Context, accountID, hash string) error {
	tag, err := s.db.Exec(ctx, `UPDATE accounts SET credential_hash = $1 WHERE id = $2`, hash, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return goAccount.ErrAccountNotFound
	}
	return nil
}

// DueForErasure lists deactivated accounts whose scheduled deletion time is
// at or before now, oldest first.
func (s *Store) DueForErasure(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id::text FROM accounts
		 WHERE status = 'deactivated' AND scheduled_deletion_at <= $1
		 ORDER BY scheduled_deletion_at LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) applied(ctx context.Context, accountID string, tag pgconn.CommandTag) (bool, error) {
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, goAccount.ErrAccountNotFound
	}
	return false, nil
}

func scanAccount(row pgx.Row) (*goAccount.Account, error) {
	var (
		a      goAccount.Account
		status string
	)
	err := row.Scan(
		&a.ID,
		&a.CredentialHash,
		&status,
		&a.FailedAttempts,
		&a.LockedUntil,
		&a.DeactivatedAt,
		&a.ScheduledDeletionAt,
		&a.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goAccount.ErrAccountNotFound
		}
		return nil, err
	}
	parsed, ok := goAccount.ParseAccountStatus(status)
	if !ok {
		return nil, fmt.Errorf("account %s: unknown status %q", a.ID, status)
	}
	a.Status = parsed
	return &a, nil
}

var (
	_ goAccount.AccountStore      = (*Store)(nil)
	_ goAccount.CredentialUpdater = (*Store)(nil)
)
