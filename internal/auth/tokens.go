package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"time"
)

const (
	VerificationCodeTTL = 24 * time.Hour
	ResetTokenTTL       = time.Hour

	verificationCodeDigits = 6
	resetTokenBytes        = 20
)

var codeSpace = big.NewInt(1_000_000)

// TokenIssuer produces the secrets mailed to users: six digit verification
// codes and URL-safe reset tokens.
type TokenIssuer struct {
	rand io.Reader
}

func NewTokenIssuer() *TokenIssuer {
	return &TokenIssuer{rand: rand.Reader}
}

func (t *TokenIssuer) reader() io.Reader {
	if t == nil || t.rand == nil {
		return rand.Reader
	}
	return t.rand
}

// NewVerificationCode returns a zero-padded decimal code, for example "004217".
func (t *TokenIssuer) NewVerificationCode() (string, error) {
	n, err := rand.Int(t.reader(), codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", verificationCodeDigits, n.Int64()), nil
}

// NewOpaqueToken returns a lowercase hex token safe to embed in a URL path.
func (t *TokenIssuer) NewOpaqueToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(t.reader(), b); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func ExpiryFrom(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}

// expired treats the expiry instant itself as past.
func expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || !now.Before(*expiresAt)
}
