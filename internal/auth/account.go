package auth

import (
	"strings"
	"time"
)

// Account is the persisted credential record. Code and token fields hold
// SHA-256 digests, never the values that were mailed out.
type Account struct {
	ID                        string
	Name                      string
	Email                     string
	PasswordHash              string
	IsVerified                bool
	VerificationCodeHash      *string
	VerificationCodeExpiresAt *time.Time
	ResetTokenHash            *string
	ResetTokenExpiresAt       *time.Time
	LastLogin                 *time.Time
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// PublicUser is the only account shape that leaves the server.
type PublicUser struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	IsVerified bool       `json:"isVerified"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (a *Account) Public() PublicUser {
	return PublicUser{
		ID:         a.ID,
		Name:       a.Name,
		Email:      a.Email,
		IsVerified: a.IsVerified,
		LastLogin:  a.LastLogin,
		CreatedAt:  a.CreatedAt,
	}
}

func (a *Account) clone() *Account {
	cp := *a
	cp.VerificationCodeHash = clonePtr(a.VerificationCodeHash)
	cp.VerificationCodeExpiresAt = clonePtr(a.VerificationCodeExpiresAt)
	cp.ResetTokenHash = clonePtr(a.ResetTokenHash)
	cp.ResetTokenExpiresAt = clonePtr(a.ResetTokenExpiresAt)
	cp.LastLogin = clonePtr(a.LastLogin)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// NormalizeEmail is the identity form of an address: trimmed and lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
