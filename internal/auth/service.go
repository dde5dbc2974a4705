package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendance/internal/email"
	"attendance/internal/i18n"
)

// ErrPendingVerification accompanies ErrDuplicateAccount when the existing
// account has not confirmed its email yet.
var ErrPendingVerification = errors.New("account awaiting email verification")

const (
	// attempts at drawing a code or token no other account holds
	issueAttempts = 5

	backgroundTimeout = 30 * time.Second
	dummyPassword     = "attendance-timing-equalizer"
)

type Options struct {
	Store    CredentialStore
	Hasher   PasswordHasher
	Tokens   *TokenIssuer
	Sessions *SessionIssuer
	Mailer   email.Mailer
	From     email.Address
	// BaseURL is the client origin reset links point at.
	BaseURL string
	Logger  *slog.Logger
	Now     func() time.Time
}

// Service drives the account lifecycle: unverified, verified and
// authenticated.
type Service struct {
	store    CredentialStore
	hasher   PasswordHasher
	tokens   *TokenIssuer
	sessions *SessionIssuer
	mailer   email.Mailer
	from     email.Address
	baseURL  string
	logger   *slog.Logger
	now      func() time.Time

	bg sync.WaitGroup

	dummyOnce sync.Once
	dummyHash string
}

func NewService(opts Options) *Service {
	s := &Service{
		store:    opts.Store,
		hasher:   opts.Hasher,
		tokens:   opts.Tokens,
		sessions: opts.Sessions,
		mailer:   opts.Mailer,
		from:     opts.From,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if s.hasher == nil {
		s.hasher = NewBcryptHasher()
	}
	if s.tokens == nil {
		s.tokens = NewTokenIssuer()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) Sessions() *SessionIssuer { return s.sessions }

func (s *Service) Signup(ctx context.Context, in SignupInput) (*Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return nil, newValidationError(err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var (
		created *Account
		code    string
	)
	for attempt := 0; attempt < issueAttempts; attempt++ {
		code, err = s.tokens.NewVerificationCode()
		if err != nil {
			return nil, err
		}
		now := s.now()
		codeHash := HashString(code)
		expiresAt := ExpiryFrom(now, VerificationCodeTTL)
		created, err = s.store.Create(ctx, &Account{
			ID:                        uuid.NewString(),
			Name:                      in.Name,
			Email:                     in.Email,
			PasswordHash:              passwordHash,
			VerificationCodeHash:      &codeHash,
			VerificationCodeExpiresAt: &expiresAt,
			CreatedAt:                 now,
			UpdatedAt:                 now,
		})
		if !errors.Is(err, ErrTokenCollision) {
			break
		}
	}
	switch {
	case errors.Is(err, ErrDuplicateAccount):
		if existing, findErr := s.store.FindByEmail(ctx, in.Email); findErr == nil && !existing.IsVerified {
			return nil, fmt.Errorf("%w: %w", ErrDuplicateAccount, ErrPendingVerification)
		}
		return nil, ErrDuplicateAccount
	case err != nil:
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("account created", "account_id", created.ID)

	if err := s.sendVerification(ctx, created, code, in.Locale); err != nil {
		return created, err
	}
	return created, nil
}

func (s *Service) VerifyEmail(ctx context.Context, code, locale string) (*Account, Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, Session{}, ErrInvalidOrExpiredCode
	}

	acct, err := s.store.ConsumeVerificationCode(ctx, HashString(code), s.now())
	if errors.Is(err, ErrNotFound) {
		return nil, Session{}, ErrInvalidOrExpiredCode
	}
	if err != nil {
		return nil, Session{}, err
	}

	sess, err := s.sessions.Issue(acct.ID)
	if err != nil {
		return nil, Session{}, err
	}
	s.logger.Info("email verified", "account_id", acct.ID)

	name, to := acct.Name, acct.Email
	s.background(ctx, "welcome email", func(ctx context.Context) error {
		content := i18n.WelcomeEmail(locale, name)
		return s.send(ctx, to, name, content)
	})
	return acct, sess, nil
}

// Login authenticates regardless of the verified flag; route guards decide
// what an unverified account may see.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (*Account, Session, error) {
	emailAddr = NormalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return nil, Session{}, ErrInvalidCredentials
	}

	acct, err := s.store.FindByEmail(ctx, emailAddr)
	if errors.Is(err, ErrNotFound) {
		s.hasher.Compare(s.equalizerHash(), password)
		return nil, Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return nil, Session{}, err
	}
	if !s.hasher.Compare(acct.PasswordHash, password) {
		return nil, Session{}, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.store.TouchLastLogin(ctx, acct.ID, now); err != nil {
		return nil, Session{}, err
	}
	acct.LastLogin = &now

	sess, err := s.sessions.Issue(acct.ID)
	if err != nil {
		return nil, Session{}, err
	}
	s.logger.Info("login succeeded", "account_id", acct.ID)
	return acct, sess, nil
}

// Logout has nothing to revoke; the credential dies with the cookie.
func (s *Service) Logout(_ context.Context, accountID string) {
	if accountID != "" {
		s.logger.Info("logged out", "account_id", accountID)
	}
}

// ForgotPassword succeeds silently for unknown addresses.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr, locale string) error {
	in := emailInput{Email: NormalizeEmail(emailAddr)}
	if err := in.Validate(); err != nil {
		return newValidationError(err)
	}

	acct, err := s.store.FindByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	var token string
	for attempt := 0; attempt < issueAttempts; attempt++ {
		token, err = s.tokens.NewOpaqueToken()
		if err != nil {
			return err
		}
		now := s.now()
		err = s.store.SetResetToken(ctx, acct.ID, HashString(token), ExpiryFrom(now, ResetTokenTTL), now)
		if !errors.Is(err, ErrTokenCollision) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := s.ResetLink(token)
	content := i18n.PasswordResetEmail(locale, link, int(ResetTokenTTL.Hours()))
	if err := s.send(ctx, acct.Email, acct.Name, content); err != nil {
		s.logger.Error("reset email failed", "account_id", acct.ID, "error", err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}
	s.logger.Info("password reset requested", "account_id", acct.ID)
	return nil
}

func (s *Service) ResetLink(token string) string {
	return s.baseURL + "/reset-password/" + token
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword, locale string) (*Account, error) {
	in := resetInput{Token: strings.TrimSpace(token), Password: newPassword}
	if in.Token == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	if err := in.Validate(); err != nil {
		return nil, newValidationError(err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acct, err := s.store.ConsumeResetToken(ctx, HashString(in.Token), passwordHash, s.now())
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("password reset", "account_id", acct.ID)

	name, to := acct.Name, acct.Email
	s.background(ctx, "reset confirmation email", func(ctx context.Context) error {
		return s.send(ctx, to, name, i18n.PasswordResetSuccessEmail(locale))
	})
	return acct, nil
}

// ResendVerification replaces the pending code of an unverified account.
// Unknown and already verified addresses succeed without effect.
func (s *Service) ResendVerification(ctx context.Context, emailAddr, locale string) error {
	in := emailInput{Email: NormalizeEmail(emailAddr)}
	if err := in.Validate(); err != nil {
		return newValidationError(err)
	}

	acct, err := s.store.FindByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if acct.IsVerified {
		return nil
	}

	var code string
	for attempt := 0; attempt < issueAttempts; attempt++ {
		code, err = s.tokens.NewVerificationCode()
		if err != nil {
			return err
		}
		now := s.now()
		err = s.store.SetVerificationCode(ctx, acct.ID, HashString(code), ExpiryFrom(now, VerificationCodeTTL), now)
		if !errors.Is(err, ErrTokenCollision) {
			break
		}
	}
	if errors.Is(err, ErrNotFound) {
		// verified in the meantime
		return nil
	}
	if err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}
	return s.sendVerification(ctx, acct, code, locale)
}

// CheckAuth resolves a session token to its account.
func (s *Service) CheckAuth(ctx context.Context, token string) (*Account, error) {
	sess, err := s.sessions.Parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	acct, err := s.store.FindByID(ctx, sess.AccountID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Wait blocks until background mail has been handed off.
func (s *Service) Wait() {
	s.bg.Wait()
}

func (s *Service) sendVerification(ctx context.Context, acct *Account, code, locale string) error {
	content := i18n.VerificationEmail(locale, code, int(VerificationCodeTTL.Hours()))
	if err := s.send(ctx, acct.Email, acct.Name, content); err != nil {
		s.logger.Error("verification email failed", "account_id", acct.ID, "error", err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}
	return nil
}

func (s *Service) send(ctx context.Context, to, name string, content i18n.EmailContent) error {
	if s.mailer == nil {
		return email.ErrNotConfigured
	}
	_, err := s.mailer.Send(ctx, email.Message{
		From:    s.from,
		To:      []email.Address{{Name: name, Email: to}},
		Subject: content.Subject,
		HTML:    content.HTML,
	})
	return err
}

func (s *Service) background(ctx context.Context, what string, fn func(context.Context) error) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn(what+" failed", "error", err)
		}
	}()
}

func (s *Service) equalizerHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(dummyPassword)
	})
	return s.dummyHash
}
