package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation = "23505"

	emailConstraint = "accounts_email_key"

	accountColumns = `id, name, email, password_hash, is_verified,
		verification_code_hash, verification_code_expires_at,
		reset_token_hash, reset_token_expires_at,
		last_login, created_at, updated_at`
)

// DBTX is the subset of pgxpool.Pool used by PostgresStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	DB DBTX
}

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) Create(ctx context.Context, acct *Account) (*Account, error) {
	query := `
		INSERT INTO accounts (id, name, email, password_hash, verification_code_hash, verification_code_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING ` + accountColumns

	row := s.DB.QueryRow(ctx, query,
		acct.ID, acct.Name, acct.Email, acct.PasswordHash,
		acct.VerificationCodeHash, acct.VerificationCodeExpiresAt, acct.CreatedAt,
	)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == emailConstraint {
				return nil, ErrDuplicateAccount
			}
			return nil, ErrTokenCollision
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return s.scanOne(row, "find account by email")
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Account, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return s.scanOne(row, "find account by id")
}

func (s *PostgresStore) SetVerificationCode(ctx context.Context, id, codeHash string, expiresAt, now time.Time) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE accounts
		SET verification_code_hash = $2, verification_code_expires_at = $3, updated_at = $4
		WHERE id = $1 AND is_verified = FALSE
	`, id, codeHash, expiresAt, now)
	return affected(tag, err, "set verification code")
}

func (s *PostgresStore) ConsumeVerificationCode(ctx context.Context, codeHash string, now time.Time) (*Account, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE accounts
		SET is_verified = TRUE, verification_code_hash = NULL, verification_code_expires_at = NULL, updated_at = $2
		WHERE verification_code_hash = $1 AND verification_code_expires_at > $2
		RETURNING `+accountColumns, codeHash, now)
	return s.scanOne(row, "consume verification code")
}

func (s *PostgresStore) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE accounts
		SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = $4
		WHERE id = $1
	`, id, tokenHash, expiresAt, now)
	return affected(tag, err, "set reset token")
}

func (s *PostgresStore) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*Account, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE accounts
		SET password_hash = $2, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = $3
		WHERE reset_token_hash = $1 AND reset_token_expires_at > $3
		RETURNING `+accountColumns, tokenHash, passwordHash, now)
	return s.scanOne(row, "consume reset token")
}

func (s *PostgresStore) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := s.DB.Exec(ctx, `UPDATE accounts SET last_login = $2, updated_at = $2 WHERE id = $1`, id, at)
	return affected(tag, err, "touch last login")
}

func (s *PostgresStore) scanOne(row pgx.Row, op string) (*Account, error) {
	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acct, nil
}

func affected(tag pgconn.CommandTag, err error, op string) error {
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrTokenCollision
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		acct                Account
		codeHash, resetHash sql.NullString
		codeExp, resetExp   sql.NullTime
		lastLogin           sql.NullTime
	)
	if err := row.Scan(
		&acct.ID,
		&acct.Name,
		&acct.Email,
		&acct.PasswordHash,
		&acct.IsVerified,
		&codeHash,
		&codeExp,
		&resetHash,
		&resetExp,
		&lastLogin,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	); err != nil {
		return nil, err
	}
	acct.VerificationCodeHash = nullString(codeHash)
	acct.VerificationCodeExpiresAt = nullTime(codeExp)
	acct.ResetTokenHash = nullString(resetHash)
	acct.ResetTokenExpiresAt = nullTime(resetExp)
	acct.LastLogin = nullTime(lastLogin)
	return &acct, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
