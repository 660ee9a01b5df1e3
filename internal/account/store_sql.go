package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// SQLStore persists accounts in Postgres.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open connection pool.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Create inserts a new account.
func (s *SQLStore) Create(ctx context.Context, acc Account) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, role, login_id, credential_hash, device_fingerprint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, acc.ID, string(acc.Role), acc.LoginID, acc.CredentialHash, acc.DeviceFingerprint, acc.CreatedAt)
	return err
}

// GetByID returns an account by primary key, nil when absent.
func (s *SQLStore) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.get(ctx, `SELECT id, role, login_id, credential_hash, device_fingerprint, created_at
		FROM accounts WHERE id = $1`, id)
}

// GetByLoginID returns an account by login identifier, nil when absent.
func (s *SQLStore) GetByLoginID(ctx context.Context, loginID string) (*Account, error) {
	return s.get(ctx, `SELECT id, role, login_id, credential_hash, device_fingerprint, created_at
		FROM accounts WHERE login_id = $1`, loginID)
}

func (s *SQLStore) get(ctx context.Context, query, arg string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	var acc Account
	var role string
	if err := row.Scan(&acc.ID, &role, &acc.LoginID, &acc.CredentialHash, &acc.DeviceFingerprint, &acc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	acc.Role = Role(role)
	return &acc, nil
}

// BindFingerprint sets the fingerprint iff it is currently NULL. The single
// conditional UPDATE is what serializes concurrent first logins.
func (s *SQLStore) BindFingerprint(ctx context.Context, accountID, fingerprint string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET device_fingerprint = $2
		WHERE id = $1 AND device_fingerprint IS NULL
	`, accountID, fingerprint)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ClearFingerprint removes the device lock.
func (s *SQLStore) ClearFingerprint(ctx context.Context, accountID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET device_fingerprint = NULL WHERE id = $1
	`, accountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}
