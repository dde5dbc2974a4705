package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local CredentialStore for tests and the
// development server.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*Account
	byEmail map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, acct *Account) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[acct.Email]; ok {
		return nil, ErrDuplicateAccount
	}
	if acct.VerificationCodeHash != nil && m.codeHeld(*acct.VerificationCodeHash, "") {
		return nil, ErrTokenCollision
	}
	stored := acct.clone()
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	m.byID[stored.ID] = stored
	m.byEmail[stored.Email] = stored.ID
	return stored.clone(), nil
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return m.byID[id].clone(), nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return acct.clone(), nil
}

func (m *MemoryStore) SetVerificationCode(_ context.Context, id, codeHash string, expiresAt, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.byID[id]
	if !ok || acct.IsVerified {
		return ErrNotFound
	}
	if m.codeHeld(codeHash, id) {
		return ErrTokenCollision
	}
	acct.VerificationCodeHash = &codeHash
	acct.VerificationCodeExpiresAt = &expiresAt
	acct.UpdatedAt = now
	return nil
}

func (m *MemoryStore) ConsumeVerificationCode(_ context.Context, codeHash string, now time.Time) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, acct := range m.byID {
		if acct.VerificationCodeHash == nil || !hashEqual(*acct.VerificationCodeHash, codeHash) {
			continue
		}
		if expired(acct.VerificationCodeExpiresAt, now) {
			return nil, ErrNotFound
		}
		acct.IsVerified = true
		acct.VerificationCodeHash = nil
		acct.VerificationCodeExpiresAt = nil
		acct.UpdatedAt = now
		return acct.clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SetResetToken(_ context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	for otherID, other := range m.byID {
		if otherID != id && other.ResetTokenHash != nil && *other.ResetTokenHash == tokenHash {
			return ErrTokenCollision
		}
	}
	acct.ResetTokenHash = &tokenHash
	acct.ResetTokenExpiresAt = &expiresAt
	acct.UpdatedAt = now
	return nil
}

func (m *MemoryStore) ConsumeResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, acct := range m.byID {
		if acct.ResetTokenHash == nil || !hashEqual(*acct.ResetTokenHash, tokenHash) {
			continue
		}
		if expired(acct.ResetTokenExpiresAt, now) {
			return nil, ErrNotFound
		}
		acct.PasswordHash = passwordHash
		acct.ResetTokenHash = nil
		acct.ResetTokenExpiresAt = nil
		acct.UpdatedAt = now
		return acct.clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	acct.LastLogin = &at
	acct.UpdatedAt = at
	return nil
}

// Delete removes an account. The auth flows never call it; it exists for
// operators and tests.
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acct, ok := m.byID[id]; ok {
		delete(m.byEmail, acct.Email)
		delete(m.byID, id)
	}
}

func (m *MemoryStore) codeHeld(codeHash, exceptID string) bool {
	for id, acct := range m.byID {
		if id != exceptID && acct.VerificationCodeHash != nil && *acct.VerificationCodeHash == codeHash {
			return true
		}
	}
	return false
}
