package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultSessionTTL = 7 * 24 * time.Hour
	sessionIssuer     = "attendance"
)

// Session is a signed, self-contained credential bound to one account.
type Session struct {
	Token     string
	AccountID string
	ExpiresAt time.Time
}

type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionIssuer signs and verifies HS256 session tokens. Nothing is stored
// server side; expiry is carried in the token.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock returns a copy that reads time from now.
func (i *SessionIssuer) WithClock(now func() time.Time) *SessionIssuer {
	cp := *i
	cp.now = now
	return &cp
}

func (i *SessionIssuer) TTL() time.Duration { return i.ttl }

func (i *SessionIssuer) Issue(accountID string) (Session, error) {
	if accountID == "" {
		return Session{}, errors.New("issue session: empty account id")
	}
	now := i.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{Token: token, AccountID: accountID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Parse returns the account id of a valid, unexpired token. Any failure is
// reported as ErrUnauthenticated.
func (i *SessionIssuer) Parse(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthenticated
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	claims := &SessionClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Session{}, ErrUnauthenticated
	}
	return Session{Token: token, AccountID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}
