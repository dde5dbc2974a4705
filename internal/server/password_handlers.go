package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"attendance/internal/auth"
	"attendance/internal/i18n"
)

const forgotPasswordMessage = "Password reset link sent to your email"

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ip := clientIP(r, s.trustedProxies)
	if s.throttled(w, r, auth.ForgotLimit, "Too many reset requests. Try again later.", auth.NormalizeEmail(req.Email), ip) {
		return
	}

	if err := s.Auth.ForgotPassword(r.Context(), req.Email, i18n.LocaleFromRequest(r)); err != nil {
		s.writeAuthError(w, "forgot_password", err)
		return
	}

	s.Metrics.recordOutcome("forgot_password", "success")
	s.audit(r, auth.AuditForgot, "", "success")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": forgotPasswordMessage,
	})
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acct, err := s.Auth.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password, i18n.LocaleFromRequest(r))
	if err != nil {
		s.writeAuthError(w, "reset_password", err)
		return
	}

	s.Metrics.recordOutcome("reset_password", "success")
	s.audit(r, auth.AuditResetPassword, acct.ID, "success")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Password reset successful",
	})
}
