// Package sqlite is an AccountStore on SQLite through the pure-Go
// modernc.org/sqlite driver. Schema changes ship as embedded goose
// migrations and run on Open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/google/uuid"
	"github.com/vinovest/sqlx"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrIdentifierTaken is returned when a lookup identifier already belongs
// to another account.
var ErrIdentifierTaken = errors.New("identifier already in use")

// Store implements goAccount.AccountStore.
type Store struct {
	db *sqlx.DB
}

type accountRow struct {
	ID                  string        `db:"id"`
	CredentialHash      string        `db:"credential_hash"`
	Status              string        `db:"status"`
	FailedAttempts      int           `db:"failed_attempts"`
	LockedUntil         sql.NullInt64 `db:"locked_until"`
	DeactivatedAt       sql.NullInt64 `db:"deactivated_at"`
	ScheduledDeletionAt sql.NullInt64 `db:"scheduled_deletion_at"`
	LastLoginAt         sql.NullInt64 `db:"last_login_at"`
}

const selectAccount = `SELECT id, credential_hash, status, failed_attempts, locked_until,
	deactivated_at, scheduled_deletion_at, last_login_at FROM accounts`

// Open connects to dsn, applies SQLite pragmas and runs migrations.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = "./data/accounts.db"
	}
	inMemory := strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")

	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, err
		}
	}
	dsn = addDefaultParams(dsn)

	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if inMemory {
		// every connection to :memory: is its own database
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
	}
	conn.SetConnMaxLifetime(time.Hour)

	if err := configureSQLite(context.Background(), conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := RunMigrations(conn.DB); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Store{db: conn}, nil
}

// New wraps an already migrated connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func addDefaultParams(dsn string) string {
	params := []string{
		"_txlock=immediate",
		"_pragma=busy_timeout(5000)",
		"_pragma=foreign_keys(1)",
	}
	for _, p := range params {
		if strings.Contains(dsn, p) {
			continue
		}
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + p
	}
	return dsn
}

func configureSQLite(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return err
		}
	}
	return nil
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// CreateAccount inserts an active account reachable through every
// identifier.
func (s *Store) CreateAccount(ctx context.Context, credentialHash string, identifiers ...string) (*goAccount.Account, error) {
	if len(identifiers) == 0 {
		return nil, errors.New("at least one identifier required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (id, credential_hash, status, created_at) VALUES (?, ?, 'active', ?)`,
		id, credentialHash, time.Now().UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}

	for _, raw := range identifiers {
		key := normalizeIdentifier(raw)
		if key == "" {
			return nil, errors.New("empty identifier")
		}
		var taken int
		if err := tx.GetContext(ctx, &taken, `SELECT COUNT(*) FROM account_identifiers WHERE identifier = ?`, key); err != nil {
			return nil, err
		}
		if taken > 0 {
			return nil, ErrIdentifierTaken
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO account_identifiers (identifier, account_id) VALUES (?, ?)`, key, id,
		); err != nil {
			return nil, fmt.Errorf("insert identifier: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &goAccount.Account{ID: id, CredentialHash: credentialHash, Status: goAccount.AccountActive}, nil
}

func (s *Store) GetAccountByLookup(ctx context.Context, identifier string) (*goAccount.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, selectAccount+
		` WHERE id = (SELECT account_id FROM account_identifiers WHERE identifier = ?)`,
		normalizeIdentifier(identifier))
	return scanAccount(&row, err)
}

func (s *Store) GetAccountByID(ctx context.Context, accountID string) (*goAccount.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, selectAccount+` WHERE id = ?`, accountID)
	return scanAccount(&row, err)
}

func (s *Store) CompareAndUpdateFailureState(ctx context.Context, accountID string, expectedFailedAttempts, newFailedAttempts int, newLockedUntil *time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET failed_attempts = ?, locked_until = ? WHERE id = ? AND failed_attempts = ?`,
		newFailedAttempts, toMillis(newLockedUntil), accountID, expectedFailedAttempts,
	)
	return s.applied(ctx, accountID, res, err)
}

func (s *Store) SetStatus(ctx context.Context, accountID string, expected goAccount.AccountStatus, change goAccount.StatusChange) (bool, error) {
	query := `UPDATE accounts SET status = ?, deactivated_at = ?, scheduled_deletion_at = ?`
	if change.ResetFailures {
		query += `, failed_attempts = 0, locked_until = NULL`
	}
	query += ` WHERE id = ? AND status = ?`
	args := []any{
		change.Status.String(),
		toMillis(change.DeactivatedAt),
		toMillis(change.ScheduledDeletionAt),
		accountID,
		expected.String(),
	}
	if change.ExpectedFailedAttempts != nil {
		query += ` AND failed_attempts = ?`
		args = append(args, *change.ExpectedFailedAttempts)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	return s.applied(ctx, accountID, res, err)
}

func (s *Store) RecordLogin(ctx context.Context, accountID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET last_login_at = ? WHERE id = ?`, at.UnixMilli(), accountID)
	return requireRow(res, err)
}

func (s *Store) UpdateCredentialHash(ctx context.Context, accountID, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET credential_hash = ? WHERE id = ?`, hash, accountID)
	return requireRow(res, err)
}

// Delete erases an account and, through the foreign key, its identifiers.
func (s *Store) Delete(ctx context.Context, accountID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, accountID)
	return requireRow(res, err)
}

// DueForErasure lists deactivated accounts whose scheduled deletion time is
// at or before now, oldest first.
func (s *Store) DueForErasure(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		`SELECT id FROM accounts WHERE status = 'deactivated' AND scheduled_deletion_at <= ?
		 ORDER BY scheduled_deletion_at LIMIT ?`,
		now.UnixMilli(), limit,
	)
	return ids, err
}

// applied turns an UPDATE result into the compare-and-set outcome,
// distinguishing a lost race from a missing account.
func (s *Store) applied(ctx context.Context, accountID string, res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	if err := s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM accounts WHERE id = ?`, accountID); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, goAccount.ErrAccountNotFound
	}
	return false, nil
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return goAccount.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row *accountRow, err error) (*goAccount.Account, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goAccount.ErrAccountNotFound
		}
		return nil, err
	}
	status, ok := goAccount.ParseAccountStatus(row.Status)
	if !ok {
		return nil, fmt.Errorf("account %s: unknown status %q", row.ID, row.Status)
	}
	return &goAccount.Account{
		ID:                  row.ID,
		CredentialHash:      row.CredentialHash,
		Status:              status,
		FailedAttempts:      row.FailedAttempts,
		LockedUntil:         fromMillis(row.LockedUntil),
		DeactivatedAt:       fromMillis(row.DeactivatedAt),
		ScheduledDeletionAt: fromMillis(row.ScheduledDeletionAt),
		LastLoginAt:         fromMillis(row.LastLoginAt),
	}, nil
}

func toMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

var (
	_ goAccount.AccountStore      = (*Store)(nil)
	_ goAccount.CredentialUpdater = (*Store)(nil)
)
