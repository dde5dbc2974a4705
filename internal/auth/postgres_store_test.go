package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scanColumns = []string{
	"id", "name", "email", "password_hash", "is_verified",
	"verification_code_hash", "verification_code_expires_at",
	"reset_token_hash", "reset_token_expires_at",
	"last_login", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestPostgresStore_CreateMapsUniqueViolations(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		constraint string
		want       error
	}{
		{"accounts_email_key", ErrDuplicateAccount},
		{"accounts_verification_code_key", ErrTokenCollision},
	}
	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectQuery(`INSERT INTO accounts`).
				WithArgs("id-1", "Ann", "a@x.com", "hash", pgxmock.AnyArg(), pgxmock.AnyArg(), now).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tc.constraint})

			_, err := store.Create(ctx, pendingAccount("id-1", "a@x.com", "h", now.Add(time.Hour)).withCreated(now))
			assert.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_FindByEmail(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE email = \$1`).
		WithArgs("a@x.com").
		WillReturnRows(mock.NewRows(scanColumns).
			AddRow("id-1", "Ann", "a@x.com", "hash", false, "code-hash", nil, nil, nil, nil, created, created))

	acct, err := store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "id-1", acct.ID)
	assert.False(t, acct.IsVerified)
	require.NotNil(t, acct.VerificationCodeHash)
	assert.Equal(t, "code-hash", *acct.VerificationCodeHash)
	assert.Nil(t, acct.ResetTokenHash)
	assert.Nil(t, acct.LastLogin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_NoRowsIsNotFound(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE accounts\s+SET is_verified = TRUE`).
		WithArgs(HashString("123456"), now).
		WillReturnRows(mock.NewRows(scanColumns))

	_, err := store.ConsumeVerificationCode(ctx, HashString("123456"), now)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConsumeResetToken(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE accounts\s+SET password_hash = \$2, reset_token_hash = NULL`).
		WithArgs(HashString("tok"), "new-hash", now).
		WillReturnRows(mock.NewRows(scanColumns).
			AddRow("id-1", "Ann", "a@x.com", "new-hash", true, nil, nil, nil, nil, nil, now, now))

	acct, err := store.ConsumeResetToken(ctx, HashString("tok"), "new-hash", now)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", acct.PasswordHash)
	assert.True(t, acct.IsVerified)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdatesReportMissingRows(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE accounts SET last_login`).
		WithArgs("gone", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`UPDATE accounts\s+SET verification_code_hash = \$2`).
		WithArgs("id-1", "h", now.Add(time.Hour), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE accounts\s+SET reset_token_hash = \$2`).
		WithArgs("id-1", "r", now.Add(time.Hour), now).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_reset_token_key"})

	assert.ErrorIs(t, store.TouchLastLogin(ctx, "gone", now), ErrNotFound)
	assert.NoError(t, store.SetVerificationCode(ctx, "id-1", "h", now.Add(time.Hour), now))
	assert.ErrorIs(t, store.SetResetToken(ctx, "id-1", "r", now.Add(time.Hour), now), ErrTokenCollision)
	require.NoError(t, mock.ExpectationsWereMet())
}
