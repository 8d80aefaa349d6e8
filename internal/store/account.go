package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/accountd-io/authserver/types"
)

const uniqueViolation = pq.ErrorCode("23505")

const accountColumns = `id, username, email, role, status, password_hash, refresh_token, created_at, updated_at, last_login`

// AccountRepository handles persistence for accounts.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE email = $1`
	return r.queryOne(ctx, query, email)
}

// GetByUsername expects the username to already be normalized to
// lowercase; rows are stored normalized.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (types.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE username = $1`
	return r.queryOne(ctx, query, username)
}

// Create inserts a new account. A unique-constraint violation on email
// or username is reported as ErrDuplicate.
func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	const query = `
		INSERT INTO accounts (id, username, email, role, status, password_hash, refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		account.ID,
		account.Username,
		account.Email,
		account.Role,
		account.Status,
		account.PasswordHash,
		account.RefreshToken,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return types.Account{}, ErrDuplicate
		}
		return types.Account{}, err
	}
	return account, nil
}

// SetRefreshToken overwrites the stored refresh token, superseding any
// prior session, and records the login time.
func (r *AccountRepository) SetRefreshToken(ctx context.Context, id, token string, lastLogin time.Time) (types.Account, error) {
	const query = `
		UPDATE accounts
		SET refresh_token = $2,
			last_login = $3,
			updated_at = $4
		WHERE id = $1
		RETURNING ` + accountColumns
	return r.queryOne(ctx, query, id, token, lastLogin, time.Now())
}

// ClearRefreshToken removes the stored refresh token. Clearing an
// already empty token is not an error.
func (r *AccountRepository) ClearRefreshToken(ctx context.Context, id string) (types.Account, error) {
	const query = `
		UPDATE accounts
		SET refresh_token = NULL,
			updated_at = $2
		WHERE id = $1
		RETURNING ` + accountColumns
	return r.queryOne(ctx, query, id, time.Now())
}

// SetPasswordHash replaces the stored password hash.
func (r *AccountRepository) SetPasswordHash(ctx context.Context, id, hash string) (types.Account, error) {
	const query = `
		UPDATE accounts
		SET password_hash = $2,
			updated_at = $3
		WHERE id = $1
		RETURNING ` + accountColumns
	return r.queryOne(ctx, query, id, hash, time.Now())
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM accounts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountRepository) queryOne(ctx context.Context, query string, args ...any) (types.Account, error) {
	var (
		account      types.Account
		refreshToken sql.NullString
		lastLogin    sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.Role,
		&account.Status,
		&account.PasswordHash,
		&refreshToken,
		&account.CreatedAt,
		&account.UpdatedAt,
		&lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	if refreshToken.Valid {
		account.RefreshToken = refreshToken.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		account.LastLogin = &t
	}
	return account, nil
}
