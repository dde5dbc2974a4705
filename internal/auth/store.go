package auth

import (
	"context"
	"time"
)

// CredentialStore persists accounts. Every mutating method is a single atomic
// operation so concurrent callers get one winner.
//
// Create fails with ErrDuplicateAccount when the email is taken and with
// ErrTokenCollision when the pending code digest is already held by another
// account. Lookups and conditional updates that match nothing return
// ErrNotFound.
type CredentialStore interface {
	Create(ctx context.Context, acct *Account) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)

	// SetVerificationCode replaces the pending code of an unverified account.
	SetVerificationCode(ctx context.Context, id, codeHash string, expiresAt, now time.Time) error
	// ConsumeVerificationCode marks the holder of an unexpired code verified
	// and clears the code.
	ConsumeVerificationCode(ctx context.Context, codeHash string, now time.Time) (*Account, error)

	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error
	// ConsumeResetToken swaps in passwordHash for the holder of an unexpired
	// token and clears the token.
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*Account, error)

	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
