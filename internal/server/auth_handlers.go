package server

import (
	"errors"
	"net/http"

	"attendance/internal/auth"
	"attendance/internal/i18n"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, s.trustedProxies)
	if s.throttled(w, r, auth.SignupLimit, "Too many signup attempts. Try again later.", ip) {
		return
	}

	acct, err := s.Auth.Signup(ctx, auth.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Locale:   i18n.LocaleFromRequest(r),
	})
	if err != nil {
		if acct != nil {
			s.audit(r, auth.AuditSignup, acct.ID, outcomeOf(err))
		}
		s.writeAuthError(w, "signup", err)
		return
	}

	s.Metrics.recordOutcome("signup", "success")
	s.audit(r, auth.AuditSignup, acct.ID, "success")
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "User created successfully",
		"user":    acct.Public(),
	})
}

type verifyEmailRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, s.trustedProxies)
	if s.throttled(w, r, auth.VerifyLimit, "Too many verification attempts. Try again later.", ip) {
		return
	}

	acct, sess, err := s.Auth.VerifyEmail(ctx, req.Code, i18n.LocaleFromRequest(r))
	if err != nil {
		s.writeAuthError(w, "verify_email", err)
		return
	}
	if s.RateLimiter != nil {
		s.RateLimiter.Reset(ctx, auth.VerifyLimit, ip)
	}

	auth.SetSessionCookie(w, sess, s.cookie)
	s.Metrics.recordOutcome("verify_email", "success")
	s.audit(r, auth.AuditVerifyEmail, acct.ID, "success")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Email verified successfully",
		"user":    acct.Public(),
	})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	var cooldownKey string
	if s.RateLimiter != nil {
		cooldownKey = s.RateLimiter.CooldownKey(req.Email)
		if ttl := s.RateLimiter.CooldownTTL(ctx, cooldownKey); ttl > 0 {
			s.Metrics.recordRateLimit("resend_cooldown")
			writeThrottled(w, "Please wait before requesting another code.", ttl)
			return
		}
	}

	if err := s.Auth.ResendVerification(ctx, req.Email, i18n.LocaleFromRequest(r)); err != nil {
		s.writeAuthError(w, "resend_verification", err)
		return
	}
	if s.RateLimiter != nil {
		s.RateLimiter.SetCooldown(ctx, cooldownKey, auth.EmailCooldown)
	}

	s.Metrics.recordOutcome("resend_verification", "success")
	s.audit(r, auth.AuditResend, "", "success")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "If the account is awaiting verification, a new code has been sent.",
		"cooldown": int64(auth.EmailCooldown.Seconds()),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, s.trustedProxies)
	if s.RateLimiter != nil {
		blocked, ttl, err := s.RateLimiter.Blocked(ctx, auth.LoginLimit, ip)
		if err != nil {
			s.Logger.Error("login: rate limit check failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if blocked {
			s.Metrics.recordRateLimit(auth.LoginLimit.Name)
			writeThrottled(w, "Too many failed login attempts. Try again later.", ttl)
			return
		}
	}

	acct, sess, err := s.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			if s.RateLimiter != nil {
				if _, _, hitErr := s.RateLimiter.Hit(ctx, auth.LoginLimit, ip); hitErr != nil {
					s.Logger.Warn("login: record failure", "error", hitErr)
				}
			}
			s.audit(r, auth.AuditLoginFailure, "", "invalid_credentials")
		}
		s.writeAuthError(w, "login", err)
		return
	}
	if s.RateLimiter != nil {
		s.RateLimiter.Reset(ctx, auth.LoginLimit, ip)
	}

	auth.SetSessionCookie(w, sess, s.cookie)
	s.Metrics.recordOutcome("login", "success")
	s.audit(r, auth.AuditLoginSuccess, acct.ID, "success")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged in successfully",
		"user":    acct.Public(),
	})
}

// handleLogout is public: clearing an absent or expired cookie succeeds too.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var accountID string
	if sess, err := s.Auth.Sessions().Parse(auth.SessionTokenFromRequest(r)); err == nil {
		accountID = sess.AccountID
	}
	s.Auth.Logout(r.Context(), accountID)
	auth.ClearSessionCookie(w, s.cookie)

	s.Metrics.recordOutcome("logout", "success")
	if accountID != "" {
		s.audit(r, auth.AuditLogout, accountID, "success")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	acct := accountFromContext(r.Context())
	if acct == nil {
		writeError(w, http.StatusUnauthorized, "Unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    acct.Public(),
	})
}

// throttled counts one attempt against l for every subject and writes a 429
// when any is over. Limiter failures become a 500.
func (s *Server) throttled(w http.ResponseWriter, r *http.Request, l auth.Limit, message string, subjects ...string) bool {
	if s.RateLimiter == nil {
		return false
	}
	locked, ttl, err := s.RateLimiter.HitAll(r.Context(), l, subjects...)
	if err != nil {
		s.Logger.Error("rate limit check failed", "limit", l.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return true
	}
	if locked {
		s.Metrics.recordRateLimit(l.Name)
		writeThrottled(w, message, ttl)
		return true
	}
	return false
}

func (s *Server) audit(r *http.Request, eventType, accountID, outcome string) {
	if s.Audit == nil {
		return
	}
	err := s.Audit.Log(r.Context(), auth.AuditEvent{
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIP(r, s.trustedProxies),
		UserAgent: r.UserAgent(),
		Meta:      map[string]interface{}{"outcome": outcome},
	})
	if err != nil {
		s.Logger.Warn("audit log failed", "event", eventType, "error", err)
	}
}
